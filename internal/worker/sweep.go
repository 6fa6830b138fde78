package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reconciler re-dispatches tickets stuck in ANALYZING. Implemented by the
// orchestrator.
type Reconciler interface {
	ReconcileStuck(ctx context.Context, deadline time.Duration) (int, error)
}

// StartSweep runs the reconciliation sweep on the pool until the service
// context is cancelled.
func StartSweep(pool *Pool, reconciler Reconciler, interval, deadline time.Duration, logger *zap.Logger) error {
	return pool.Submit(func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				count, err := reconciler.ReconcileStuck(ctx, deadline)
				if err != nil {
					logger.Warn("reconciliation sweep failed", zap.Error(err))
					continue
				}
				if count > 0 {
					logger.Info("reconciliation sweep re-dispatched tickets", zap.Int("count", count))
				}
			}
		}
	})
}
