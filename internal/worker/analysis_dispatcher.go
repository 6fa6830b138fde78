package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/geonhos/poc-voc-auto-processing/internal/domain"
	"github.com/geonhos/poc-voc-auto-processing/internal/engine"
)

// Reporter receives engine results. Implemented by the orchestrator.
type Reporter interface {
	ReportDecision(ctx context.Context, ticketID string, attemptVersion int64, analysis *domain.Analysis) error
	ReportFailure(ctx context.Context, ticketID string, attemptVersion int64, cause error) error
}

// AnalysisDispatcher runs engine calls on the worker pool and feeds results
// back through the Reporter. Dispatch is fire-and-forget for the caller.
type AnalysisDispatcher struct {
	pool     *Pool
	analyzer engine.Analyzer
	reporter Reporter
	timeout  time.Duration
	logger   *zap.Logger
}

// NewAnalysisDispatcher constructs the dispatcher.
func NewAnalysisDispatcher(pool *Pool, analyzer engine.Analyzer, reporter Reporter, timeout time.Duration, logger *zap.Logger) *AnalysisDispatcher {
	return &AnalysisDispatcher{
		pool:     pool,
		analyzer: analyzer,
		reporter: reporter,
		timeout:  timeout,
		logger:   logger,
	}
}

// Dispatch queues one engine call for the given analysis attempt. A queue
// failure is returned to the caller, who leaves the ticket in ANALYZING.
func (d *AnalysisDispatcher) Dispatch(attemptVersion int64, req engine.Request) error {
	return d.pool.Submit(func(ctx context.Context) {
		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		analysis, err := d.analyzer.Analyze(callCtx, req)
		switch {
		case err == nil:
			if reportErr := d.reporter.ReportDecision(ctx, req.TicketID, attemptVersion, analysis); reportErr != nil {
				d.logger.Error("reporting engine decision failed",
					zap.String("ticket_id", req.TicketID),
					zap.Int64("attempt_version", attemptVersion),
					zap.Error(reportErr),
				)
			}
		case engine.IsTerminal(err):
			if reportErr := d.reporter.ReportFailure(ctx, req.TicketID, attemptVersion, err); reportErr != nil {
				d.logger.Error("reporting engine failure failed",
					zap.String("ticket_id", req.TicketID),
					zap.Int64("attempt_version", attemptVersion),
					zap.Error(reportErr),
				)
			}
		default:
			// Channel failure: the ticket stays ANALYZING. The sweep or an
			// admin retry re-dispatches it.
			d.logger.Warn("engine unavailable",
				zap.String("ticket_id", req.TicketID),
				zap.Int64("attempt_version", attemptVersion),
				zap.Error(err),
			)
		}
	})
}
