package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/geonhos/poc-voc-auto-processing/internal/domain"
	"github.com/geonhos/poc-voc-auto-processing/internal/engine"
	"github.com/geonhos/poc-voc-auto-processing/internal/events"
	"github.com/geonhos/poc-voc-auto-processing/internal/observability"
	"github.com/geonhos/poc-voc-auto-processing/internal/repository"
	"github.com/geonhos/poc-voc-auto-processing/internal/sequence"
	apperrors "github.com/geonhos/poc-voc-auto-processing/pkg/util/errorutil"
)

type dispatchCall struct {
	attemptVersion int64
	req            engine.Request
}

type captureDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	err   error
}

func (d *captureDispatcher) Dispatch(attemptVersion int64, req engine.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.calls = append(d.calls, dispatchCall{attemptVersion: attemptVersion, req: req})
	return nil
}

func (d *captureDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func (d *captureDispatcher) lastCall() dispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[len(d.calls)-1]
}

type fixture struct {
	orch       *Orchestrator
	repo       *repository.MemoryTicketRepository
	dispatcher *captureDispatcher
	events     events.Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := repository.NewMemoryTicketRepository()
	dispatcher := &captureDispatcher{}
	eventBus := events.NewInMemoryDispatcher(nil)
	orch := NewOrchestrator(OrchestratorDependencies{
		TicketRepo:      repo,
		IDGenerator:     sequence.NewLocalGenerator(),
		Events:          eventBus,
		Metrics:         observability.NewMetrics(),
		ConfidenceFloor: 0.7,
	})
	orch.BindDispatcher(dispatcher)
	return &fixture{orch: orch, repo: repo, dispatcher: dispatcher, events: eventBus}
}

func validIntake() IntakeInput {
	return IntakeInput{
		RawText:      "로그인이 안 돼요",
		CustomerName: "김민수",
		Channel:      domain.ChannelEmail,
		ReceivedAt:   time.Now().Add(-time.Hour),
	}
}

func decisionWithConfidence(confidence float64) *domain.Analysis {
	return &domain.Analysis{
		Summary:        "login failures after session key rotation",
		Urgency:        domain.UrgencyHigh,
		AffectedSystem: "auth-service",
		Confidence:     confidence,
		Reason: domain.DecisionReason{
			RootCause: "expired signing keys",
			Evidence:  []string{"spike in 401 responses"},
			Breakdown: domain.ConfidenceBreakdown{
				ErrorPatternClarity: confidence,
				LogCorrelation:      confidence,
			},
		},
		Proposal: &domain.ActionProposal{
			Type:        domain.ActionCodeFix,
			Title:       "rotate session keys",
			Description: "re-issue signing keys and invalidate stale sessions",
		},
		AnalyzedAt: time.Now(),
	}
}

func TestIntakeCreatesAnalyzingTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.orch.Intake(ctx, validIntake())
	require.NoError(t, err)

	require.Regexp(t, `^VOC-\d{8}-\d{4}$`, ticket.TicketID)
	require.Equal(t, domain.TicketStatusAnalyzing, ticket.Status)
	require.Nil(t, ticket.Analysis)

	// Create then dispatch-analysis: two accepted writes.
	require.Equal(t, int64(2), ticket.Version)
	require.Equal(t, 1, f.dispatcher.callCount())
	call := f.dispatcher.lastCall()
	require.Equal(t, ticket.Version, call.attemptVersion)
	require.Equal(t, ticket.TicketID, call.req.TicketID)
	require.Equal(t, "로그인이 안 돼요", call.req.RawText)
}

func TestIntakeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	longText := func(n int) string {
		out := make([]rune, n)
		for i := range out {
			out[i] = 'x'
		}
		return string(out)
	}

	testCases := []struct {
		name   string
		mutate func(*IntakeInput)
	}{
		{"empty customer name", func(in *IntakeInput) { in.CustomerName = "  " }},
		{"customer name too long", func(in *IntakeInput) { in.CustomerName = longText(101) }},
		{"empty raw text", func(in *IntakeInput) { in.RawText = "" }},
		{"raw text too long", func(in *IntakeInput) { in.RawText = longText(5001) }},
		{"unknown channel", func(in *IntakeInput) { in.Channel = "phone" }},
		{"future received_at", func(in *IntakeInput) { in.ReceivedAt = time.Now().Add(time.Hour) }},
		{"zero received_at", func(in *IntakeInput) { in.ReceivedAt = time.Time{} }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			input := validIntake()
			tc.mutate(&input)
			_, err := f.orch.Intake(ctx, input)
			require.True(t, apperrors.HasCode(err, "VALIDATION_FAILED"), "got %v", err)
		})
	}

	// Nothing was dispatched for rejected intakes.
	require.Equal(t, 0, f.dispatcher.callCount())
}

func TestIntakeAllowsBoundaryLengths(t *testing.T) {
	f := newFixture(t)
	input := validIntake()
	runes := make([]rune, 5000)
	for i := range runes {
		runes[i] = '가'
	}
	input.RawText = string(runes)

	_, err := f.orch.Intake(context.Background(), input)
	require.NoError(t, err)
}

func TestEndToEndConfirmFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.orch.Intake(ctx, validIntake())
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusAnalyzing, ticket.Status)

	attempt := f.dispatcher.lastCall().attemptVersion
	require.NoError(t, f.orch.ReportDecision(ctx, ticket.TicketID, attempt, decisionWithConfidence(0.85)))

	current, err := f.orch.Get(ctx, ticket.TicketID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusWaitingConfirm, current.Status)
	require.NotNil(t, current.Analysis)
	require.InDelta(t, 0.85, current.Analysis.Confidence, 1e-9)

	assignee := "박지현"
	confirmed, err := f.orch.Confirm(ctx, ticket.TicketID, current.Version, &assignee)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusDone, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)
	require.Equal(t, "박지현", *confirmed.Assignee)
	require.Nil(t, confirmed.RejectReason)
	require.Nil(t, confirmed.ManualResolution)

	// A second confirm with the stale version is a conflict, not a no-op.
	_, err = f.orch.Confirm(ctx, ticket.TicketID, current.Version, nil)
	require.True(t, apperrors.HasCode(err, "STALE_VERSION"), "got %v", err)
}

func TestLowConfidenceRoutesToManual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.orch.Intake(ctx, validIntake())
	require.NoError(t, err)
	attempt := f.dispatcher.lastCall().attemptVersion

	require.NoError(t, f.orch.ReportDecision(ctx, ticket.TicketID, attempt, decisionWithConfidence(0.55)))

	current, err := f.orch.Get(ctx, ticket.TicketID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusManualRequired, current.Status)

	// Empty resolution is rejected before touching state.
	_, err = f.orch.CompleteManual(ctx, ticket.TicketID, current.Version, "   ", nil)
	require.True(t, apperrors.HasCode(err, "VALIDATION_FAILED"), "got %v", err)

	done, err := f.orch.CompleteManual(ctx, ticket.TicketID, current.Version, "reached the customer, reissued the session manually", nil)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusDone, done.Status)
	require.NotNil(t, done.ManualResolution)
	require.Nil(t, done.ConfirmedAt)
	require.Nil(t, done.RejectReason)
}

func TestEngineFailureRoutesToManual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.orch.Intake(ctx, validIntake())
	require.NoError(t, err)
	attempt := f.dispatcher.lastCall().attemptVersion

	cause := &engine.TerminalError{Code: "NO_SIGNAL", Message: "insufficient evidence"}
	require.NoError(t, f.orch.ReportFailure(ctx, ticket.TicketID, attempt, cause))

	current, err := f.orch.Get(ctx, ticket.TicketID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusManualRequired, current.Status)
	require.Nil(t, current.Analysis)
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.orch.Intake(ctx, validIntake())
	require.NoError(t, err)
	attempt := f.dispatcher.lastCall().attemptVersion
	require.NoError(t, f.orch.ReportDecision(ctx, ticket.TicketID, attempt, decisionWithConfidence(0.9)))
	current, err := f.orch.Get(ctx, ticket.TicketID)
	require.NoError(t, err)

	_, err = f.orch.Reject(ctx, ticket.TicketID, current.Version, "", nil)
	require.True(t, apperrors.HasCode(err, "VALIDATION_FAILED"), "got %v", err)

	rejected, err := f.orch.Reject(ctx, ticket.TicketID, current.Version, "customer agreed to wait", nil)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusRejected, rejected.Status)
	require.Equal(t, "customer agreed to wait", *rejected.RejectReason)
	require.Nil(t, rejected.ConfirmedAt)
}

func TestRetryClearsAnalysisAndRedispatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.orch.Intake(ctx, validIntake())
	require.NoError(t, err)
	firstAttempt := f.dispatcher.lastCall().attemptVersion
	require.NoError(t, f.orch.ReportDecision(ctx, ticket.TicketID, firstAttempt, decisionWithConfidence(0.75)))

	current, err := f.orch.Get(ctx, ticket.TicketID)
	require.NoError(t, err)

	retried, err := f.orch.Retry(ctx, ticket.TicketID, current.Version)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusAnalyzing, retried.Status)
	require.Nil(t, retried.Analysis)

	require.Equal(t, 2, f.dispatcher.callCount())
	secondAttempt := f.dispatcher.lastCall().attemptVersion
	require.Greater(t, secondAttempt, firstAttempt)
	require.Equal(t, retried.Version, secondAttempt)
}

func TestStaleCallbackIsDiscarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	superseded := 0
	f.events.Subscribe(events.EventAnalysisSuperseded, func(ctx context.Context, e events.Event) error {
		superseded++
		return nil
	})

	ticket, err := f.orch.Intake(ctx, validIntake())
	require.NoError(t, err)
	firstAttempt := f.dispatcher.lastCall().attemptVersion

	// Admin retries before the first attempt's callback lands.
	require.NoError(t, f.orch.ReportDecision(ctx, ticket.TicketID, firstAttempt, decisionWithConfidence(0.9)))
	current, err := f.orch.Get(ctx, ticket.TicketID)
	require.NoError(t, err)
	retried, err := f.orch.Retry(ctx, ticket.TicketID, current.Version)
	require.NoError(t, err)

	// Late callback from the superseded attempt: no-op.
	require.NoError(t, f.orch.ReportDecision(ctx, ticket.TicketID, firstAttempt, decisionWithConfidence(0.99)))
	after, err := f.orch.Get(ctx, ticket.TicketID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusAnalyzing, after.Status)
	require.Equal(t, retried.Version, after.Version)
	require.Nil(t, after.Analysis)
	require.Equal(t, 1, superseded)
}

func TestMalformedDecisionIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.orch.Intake(ctx, validIntake())
	require.NoError(t, err)
	attempt := f.dispatcher.lastCall().attemptVersion

	testCases := []struct {
		name   string
		mutate func(*domain.Analysis)
	}{
		{"unknown urgency", func(a *domain.Analysis) { a.Urgency = "critical" }},
		{"confidence above one", func(a *domain.Analysis) { a.Confidence = 1.5 }},
		{"negative confidence", func(a *domain.Analysis) { a.Confidence = -0.1 }},
		{"empty summary", func(a *domain.Analysis) { a.Summary = "  " }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			analysis := decisionWithConfidence(0.9)
			tc.mutate(analysis)
			err := f.orch.ReportDecision(ctx, ticket.TicketID, attempt, analysis)
			require.True(t, apperrors.HasCode(err, "VALIDATION_FAILED"), "got %v", err)
		})
	}

	err = f.orch.ReportDecision(ctx, ticket.TicketID, attempt, nil)
	require.True(t, apperrors.HasCode(err, "VALIDATION_FAILED"), "got %v", err)

	// Nothing landed: the ticket is still awaiting a valid decision.
	current, err := f.orch.Get(ctx, ticket.TicketID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusAnalyzing, current.Status)
	require.Equal(t, attempt, current.Version)
	require.Nil(t, current.Analysis)
}

func TestStaleCallbackNeverRegressesTerminalStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.orch.Intake(ctx, validIntake())
	require.NoError(t, err)
	attempt := f.dispatcher.lastCall().attemptVersion
	require.NoError(t, f.orch.ReportDecision(ctx, ticket.TicketID, attempt, decisionWithConfidence(0.9)))
	current, err := f.orch.Get(ctx, ticket.TicketID)
	require.NoError(t, err)
	_, err = f.orch.Confirm(ctx, ticket.TicketID, current.Version, nil)
	require.NoError(t, err)

	// Duplicate delivery of the original callback after DONE.
	require.NoError(t, f.orch.ReportDecision(ctx, ticket.TicketID, attempt, decisionWithConfidence(0.9)))
	require.NoError(t, f.orch.ReportFailure(ctx, ticket.TicketID, attempt, errors.New("late failure")))

	after, err := f.orch.Get(ctx, ticket.TicketID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusDone, after.Status)
}

func TestInvalidTransitionNamesStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.orch.Intake(ctx, validIntake())
	require.NoError(t, err)

	// Confirm while still ANALYZING, with the correct version.
	_, err = f.orch.Confirm(ctx, ticket.TicketID, ticket.Version, nil)
	require.True(t, apperrors.HasCode(err, "INVALID_TRANSITION"), "got %v", err)

	domainErr := apperrors.ToDomainError(err)
	require.Equal(t, domain.TicketStatusAnalyzing, domainErr.Details["actual_status"])
	require.Contains(t, domainErr.Details, "expected_status")
}

func TestNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.Get(ctx, "VOC-19700101-0001")
	require.True(t, apperrors.HasCode(err, "NOT_FOUND"), "got %v", err)

	_, err = f.orch.Confirm(ctx, "VOC-19700101-0001", 1, nil)
	require.True(t, apperrors.HasCode(err, "NOT_FOUND"), "got %v", err)
}

func TestGetNeverMutates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.orch.Intake(ctx, validIntake())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		got, err := f.orch.Get(ctx, ticket.TicketID)
		require.NoError(t, err)
		require.Equal(t, ticket.Version, got.Version)
		require.Equal(t, domain.TicketStatusAnalyzing, got.Status)
	}
}

func TestConcurrentConfirmExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.orch.Intake(ctx, validIntake())
	require.NoError(t, err)
	attempt := f.dispatcher.lastCall().attemptVersion
	require.NoError(t, f.orch.ReportDecision(ctx, ticket.TicketID, attempt, decisionWithConfidence(0.9)))
	current, err := f.orch.Get(ctx, ticket.TicketID)
	require.NoError(t, err)

	const writers = 2
	errs := make([]error, writers)
	var wg sync.WaitGroup
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start.Wait()
			_, errs[i] = f.orch.Confirm(ctx, ticket.TicketID, current.Version, nil)
		}(i)
	}
	start.Done()
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case apperrors.HasCode(err, "STALE_VERSION"):
			conflicts++
			// The conflict names the version the winning write produced.
			details := apperrors.ToDomainError(err).Details
			require.Equal(t, current.Version, details["expected_version"])
			require.Equal(t, current.Version+1, details["actual_version"])
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, 1, conflicts)
}

func TestDispatchFailureLeavesTicketAnalyzing(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("engine unreachable")
	ctx := context.Background()

	ticket, err := f.orch.Intake(ctx, validIntake())
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusAnalyzing, ticket.Status)
}

func TestReconcileStuckRedispatchesAtCurrentVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	now := time.Now()
	f.repo.SetClock(func() time.Time { return now })
	f.orch.SetClock(func() time.Time { return now })

	ticket, err := f.orch.Intake(ctx, validIntake())
	require.NoError(t, err)
	require.Equal(t, 1, f.dispatcher.callCount())

	// Ten minutes later the callback still has not arrived.
	later := now.Add(10 * time.Minute)
	f.orch.SetClock(func() time.Time { return later })

	count, err := f.orch.ReconcileStuck(ctx, 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, 2, f.dispatcher.callCount())
	require.Equal(t, ticket.Version, f.dispatcher.lastCall().attemptVersion)

	// A recently updated ticket is left alone.
	count, err = f.orch.ReconcileStuck(ctx, 20*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

// TestRandomTriggerSequencesStayInsideTransitionTable drives one ticket with
// random admin actions and engine callbacks and checks that every accepted
// write is a declared (from, to) pair.
func TestRandomTriggerSequencesStayInsideTransitionTable(t *testing.T) {
	allowed := map[string]bool{
		"OPEN>ANALYZING":            true,
		"WAITING_CONFIRM>ANALYZING": true,
		"MANUAL_REQUIRED>ANALYZING": true,
		"ANALYZING>WAITING_CONFIRM": true,
		"ANALYZING>MANUAL_REQUIRED": true,
		"WAITING_CONFIRM>DONE":      true,
		"WAITING_CONFIRM>REJECTED":  true,
		"MANUAL_REQUIRED>DONE":      true,
	}

	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 20; round++ {
		f := newFixture(t)
		ctx := context.Background()

		var pairs []string
		f.events.Subscribe(events.EventStatusChanged, func(ctx context.Context, e events.Event) error {
			payload := e.Payload.(events.StatusChangedPayload)
			pairs = append(pairs, fmt.Sprintf("%s>%s", payload.OldStatus, payload.NewStatus))
			return nil
		})

		ticket, err := f.orch.Intake(ctx, validIntake())
		require.NoError(t, err)

		for step := 0; step < 40; step++ {
			current, err := f.orch.Get(ctx, ticket.TicketID)
			require.NoError(t, err)
			version := current.Version

			var opErr error
			switch rng.Intn(6) {
			case 0:
				_, opErr = f.orch.Confirm(ctx, ticket.TicketID, version, nil)
			case 1:
				_, opErr = f.orch.Reject(ctx, ticket.TicketID, version, "not actionable", nil)
			case 2:
				_, opErr = f.orch.Retry(ctx, ticket.TicketID, version)
			case 3:
				_, opErr = f.orch.CompleteManual(ctx, ticket.TicketID, version, "handled offline", nil)
			case 4:
				opErr = f.orch.ReportDecision(ctx, ticket.TicketID, version, decisionWithConfidence(rng.Float64()))
			case 5:
				opErr = f.orch.ReportFailure(ctx, ticket.TicketID, version, errors.New("cannot decide"))
			}
			if opErr != nil {
				require.True(t,
					apperrors.HasCode(opErr, "INVALID_TRANSITION") ||
						apperrors.HasCode(opErr, "STALE_VERSION"),
					"unexpected error: %v", opErr)
			}
		}

		for _, pair := range pairs {
			require.True(t, allowed[pair], "undeclared transition %s", pair)
		}
	}
}
