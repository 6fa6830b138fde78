package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/geonhos/poc-voc-auto-processing/internal/domain"
	"github.com/geonhos/poc-voc-auto-processing/internal/engine"
)

type stubAnalyzer struct {
	analysis *domain.Analysis
	err      error
}

func (a *stubAnalyzer) Analyze(ctx context.Context, req engine.Request) (*domain.Analysis, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.analysis, nil
}

type recordingReporter struct {
	mu        sync.Mutex
	decisions []int64
	failures  []int64
	lastCause error
}

func (r *recordingReporter) ReportDecision(ctx context.Context, ticketID string, attemptVersion int64, analysis *domain.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, attemptVersion)
	return nil
}

func (r *recordingReporter) ReportFailure(ctx context.Context, ticketID string, attemptVersion int64, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, attemptVersion)
	r.lastCause = cause
	return nil
}

func (r *recordingReporter) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.decisions), len(r.failures)
}

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	pool, err := NewPool(context.Background(), 4, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Shutdown)
	return pool
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func testRequest() engine.Request {
	return engine.Request{
		TicketID:     "VOC-20260301-0001",
		RawText:      "앱이 실행 직후 꺼져요",
		CustomerName: "윤지우",
		Channel:      domain.ChannelSlack,
		ReceivedAt:   time.Now().Add(-time.Hour),
	}
}

func TestDispatchReportsDecision(t *testing.T) {
	pool := newTestPool(t)
	reporter := &recordingReporter{}
	analyzer := &stubAnalyzer{analysis: &domain.Analysis{
		Summary:    "crash on startup after bad config push",
		Urgency:    domain.UrgencyHigh,
		Confidence: 0.9,
		AnalyzedAt: time.Now(),
	}}
	d := NewAnalysisDispatcher(pool, analyzer, reporter, time.Second, zap.NewNop())

	require.NoError(t, d.Dispatch(2, testRequest()))
	waitFor(t, func() bool {
		decisions, _ := reporter.counts()
		return decisions == 1
	}, "decision was never reported")

	require.Equal(t, int64(2), reporter.decisions[0])
	_, failures := reporter.counts()
	require.Equal(t, 0, failures)
}

func TestDispatchReportsTerminalFailure(t *testing.T) {
	pool := newTestPool(t)
	reporter := &recordingReporter{}
	analyzer := &stubAnalyzer{err: &engine.TerminalError{Code: "NO_SIGNAL", Message: "cannot decide"}}
	d := NewAnalysisDispatcher(pool, analyzer, reporter, time.Second, zap.NewNop())

	require.NoError(t, d.Dispatch(2, testRequest()))
	waitFor(t, func() bool {
		_, failures := reporter.counts()
		return failures == 1
	}, "failure was never reported")

	require.Equal(t, int64(2), reporter.failures[0])
	require.True(t, engine.IsTerminal(reporter.lastCause))
}

func TestDispatchSwallowsTransportErrors(t *testing.T) {
	pool := newTestPool(t)
	reporter := &recordingReporter{}
	analyzer := &stubAnalyzer{err: errors.New("connection refused")}
	d := NewAnalysisDispatcher(pool, analyzer, reporter, time.Second, zap.NewNop())

	require.NoError(t, d.Dispatch(2, testRequest()))

	// Neither callback fires; the caller's ticket stays ANALYZING and the
	// sweep picks it up later.
	time.Sleep(50 * time.Millisecond)
	decisions, failures := reporter.counts()
	require.Equal(t, 0, decisions)
	require.Equal(t, 0, failures)
}

type countingReconciler struct {
	mu    sync.Mutex
	calls int
}

func (r *countingReconciler) ReconcileStuck(ctx context.Context, deadline time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return 0, nil
}

func (r *countingReconciler) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestSweepRunsUntilShutdown(t *testing.T) {
	pool, err := NewPool(context.Background(), 2, zap.NewNop())
	require.NoError(t, err)

	reconciler := &countingReconciler{}
	require.NoError(t, StartSweep(pool, reconciler, 10*time.Millisecond, time.Minute, zap.NewNop()))

	waitFor(t, func() bool { return reconciler.callCount() >= 3 }, "sweep never ticked")

	pool.Shutdown()
	settled := reconciler.callCount()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, settled, reconciler.callCount())
}
