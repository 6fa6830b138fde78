// Package worker runs the out-of-band side of the ticket lifecycle: engine
// dispatch and the reconciliation sweep. All goroutines go through an ants
// pool with panic recovery; nothing is spawned naked.
package worker

import (
	"context"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Pool wraps ants.Pool with a service lifecycle context for detached tasks.
type Pool struct {
	pool   *ants.Pool
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// NewPool creates a pool of the given size. Tasks submitted after Shutdown
// are rejected by ants.
func NewPool(ctx context.Context, size int, logger *zap.Logger) (*Pool, error) {
	serviceCtx, cancel := context.WithCancel(ctx)

	panicHandler := func(p interface{}) {
		logger.Error("worker panic recovered",
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}
	antsPool, err := ants.NewPool(size,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Pool{pool: antsPool, ctx: serviceCtx, cancel: cancel, logger: logger}, nil
}

// Submit runs task on the pool with the service lifecycle context. A task
// queued past shutdown is skipped.
func (p *Pool) Submit(task func(ctx context.Context)) error {
	return p.pool.Submit(func() {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("task skipped: pool shutting down")
			return
		default:
		}
		task(p.ctx)
	})
}

// Shutdown cancels the lifecycle context and waits for running tasks.
func (p *Pool) Shutdown() {
	p.cancel()
	const shutdownTimeout = 30 * time.Second
	if err := p.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		p.logger.Warn("worker pool shutdown timeout", zap.Error(err))
	}
}
