package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/geonhos/poc-voc-auto-processing/internal/domain"
	"github.com/geonhos/poc-voc-auto-processing/internal/engine"
	"github.com/geonhos/poc-voc-auto-processing/internal/events"
	"github.com/geonhos/poc-voc-auto-processing/internal/observability"
	"github.com/geonhos/poc-voc-auto-processing/internal/repository"
	"github.com/geonhos/poc-voc-auto-processing/internal/sequence"
	apperrors "github.com/geonhos/poc-voc-auto-processing/pkg/util/errorutil"
)

// receivedAtSkew is how far in the future received_at may be before intake
// rejects it, allowing for clock drift between hosts.
const receivedAtSkew = time.Minute

// AnalysisDispatcher hands an analysis request to the engine out-of-band.
// The attempt version is the ticket version at which ANALYZING was entered;
// the eventual callback must present it.
type AnalysisDispatcher interface {
	Dispatch(attemptVersion int64, req engine.Request) error
}

// Orchestrator owns the ticket state machine. It is the only writer of
// ticket records: every mutation is validated against the transition table
// and committed through a version compare-and-swap.
type Orchestrator struct {
	tickets         repository.TicketRepository
	ids             sequence.Generator
	dispatcher      AnalysisDispatcher
	events          events.Dispatcher
	metrics         *observability.Metrics
	logger          *zap.Logger
	confidenceFloor float64
	clock           func() time.Time
}

// OrchestratorDependencies bundles collaborators for construction.
type OrchestratorDependencies struct {
	TicketRepo      repository.TicketRepository
	IDGenerator     sequence.Generator
	Events          events.Dispatcher
	Metrics         *observability.Metrics
	Logger          *zap.Logger
	ConfidenceFloor float64
}

// IntakeInput describes a new VOC complaint.
type IntakeInput struct {
	RawText      string
	CustomerName string
	Channel      domain.Channel
	ReceivedAt   time.Time
}

// NewOrchestrator constructs the orchestrator.
func NewOrchestrator(deps OrchestratorDependencies) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		tickets:         deps.TicketRepo,
		ids:             deps.IDGenerator,
		events:          deps.Events,
		metrics:         deps.Metrics,
		logger:          logger,
		confidenceFloor: deps.ConfidenceFloor,
		clock:           time.Now,
	}
}

// BindDispatcher wires the analysis dispatcher after construction; the
// dispatcher itself needs the orchestrator for callbacks.
func (o *Orchestrator) BindDispatcher(d AnalysisDispatcher) {
	o.dispatcher = d
}

// SetClock overrides the timestamp source, for tests.
func (o *Orchestrator) SetClock(clock func() time.Time) {
	o.clock = clock
}

// Intake creates a ticket from a complaint and dispatches analysis. The
// returned ticket is already in ANALYZING: the intent is recorded
// synchronously, the engine call happens out-of-band.
func (o *Orchestrator) Intake(ctx context.Context, input IntakeInput) (*domain.Ticket, error) {
	if err := validateIntake(input, o.clock()); err != nil {
		return nil, err
	}

	id, err := o.ids.Next(ctx, o.clock())
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}

	ticket := &domain.Ticket{
		TicketID:     id,
		Status:       domain.TicketStatusOpen,
		RawText:      input.RawText,
		CustomerName: strings.TrimSpace(input.CustomerName),
		Channel:      input.Channel,
		ReceivedAt:   input.ReceivedAt,
	}
	if err := o.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	o.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.TicketID,
		Payload: events.TicketCreatedPayload{
			CustomerName: ticket.CustomerName,
			Channel:      ticket.Channel,
		},
	})

	if err := o.startAnalysis(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// Get returns a ticket by id. Reads never mutate state or version.
func (o *Orchestrator) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := o.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapRepoError(err, ticketID, 0)
	}
	return ticket, nil
}

// ReportDecision is the engine's completion callback. It is idempotent: a
// callback whose attempt version no longer matches the stored version has
// been superseded (an admin retried, or the write already landed) and is
// logged and discarded, never applied.
func (o *Orchestrator) ReportDecision(ctx context.Context, ticketID string, attemptVersion int64, analysis *domain.Analysis) error {
	if err := validateDecision(analysis); err != nil {
		return err
	}
	ticket, err := o.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return mapRepoError(err, ticketID, 0)
	}
	if ticket.Status != domain.TicketStatusAnalyzing || ticket.Version != attemptVersion {
		o.discardCallback(ctx, ticket, attemptVersion)
		return nil
	}

	next := domain.TicketStatusWaitingConfirm
	outcome := "accepted"
	if analysis.Confidence < o.confidenceFloor {
		next = domain.TicketStatusManualRequired
		outcome = "manual_required"
	}

	ticket.Analysis = analysis
	if err := o.commitTransition(ctx, ticket, domain.TriggerEngineDecision, next, attemptVersion); err != nil {
		if apperrors.HasCode(err, "STALE_VERSION") {
			// Lost the race to another writer; the callback is stale now.
			o.rereadAndDiscard(ctx, ticketID, attemptVersion)
			return nil
		}
		return err
	}
	o.metrics.RecordAnalysisOutcome(outcome)
	o.publish(ctx, events.Event{
		Type:     events.EventAnalysisCompleted,
		TicketID: ticket.TicketID,
		Payload: events.AnalysisCompletedPayload{
			Confidence: analysis.Confidence,
			Urgency:    analysis.Urgency,
			NewStatus:  next,
		},
	})
	return nil
}

// ReportFailure is the engine's terminal-failure callback; same idempotency
// rules as ReportDecision. The ticket moves to MANUAL_REQUIRED with no
// analysis fields.
func (o *Orchestrator) ReportFailure(ctx context.Context, ticketID string, attemptVersion int64, cause error) error {
	ticket, err := o.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return mapRepoError(err, ticketID, 0)
	}
	if ticket.Status != domain.TicketStatusAnalyzing || ticket.Version != attemptVersion {
		o.discardCallback(ctx, ticket, attemptVersion)
		return nil
	}

	o.logger.Warn("analysis failed, routing to manual handling",
		zap.String("ticket_id", ticketID),
		zap.Int64("attempt_version", attemptVersion),
		zap.Error(cause),
	)
	ticket.Analysis = nil
	if err := o.commitTransition(ctx, ticket, domain.TriggerEngineFailure, domain.TicketStatusManualRequired, attemptVersion); err != nil {
		if apperrors.HasCode(err, "STALE_VERSION") {
			o.rereadAndDiscard(ctx, ticketID, attemptVersion)
			return nil
		}
		return err
	}
	o.metrics.RecordAnalysisOutcome("failed")
	return nil
}

// Confirm applies the admin confirm action: WAITING_CONFIRM -> DONE.
func (o *Orchestrator) Confirm(ctx context.Context, ticketID string, version int64, assignee *string) (*domain.Ticket, error) {
	ticket, err := o.loadForAction(ctx, ticketID, version, domain.TriggerAdminConfirm)
	if err != nil {
		return nil, err
	}
	now := o.clock()
	ticket.ConfirmedAt = &now
	applyAssignee(ticket, assignee)
	if err := o.commitTransition(ctx, ticket, domain.TriggerAdminConfirm, domain.TicketStatusDone, version); err != nil {
		return nil, err
	}
	return ticket, nil
}

// Reject applies the admin reject action: WAITING_CONFIRM -> REJECTED.
func (o *Orchestrator) Reject(ctx context.Context, ticketID string, version int64, rejectReason string, assignee *string) (*domain.Ticket, error) {
	rejectReason = strings.TrimSpace(rejectReason)
	if rejectReason == "" {
		return nil, apperrors.NewValidationError("reject_reason required", nil)
	}
	if utf8.RuneCountInString(rejectReason) > 1000 {
		return nil, apperrors.NewValidationError("reject_reason exceeds 1000 characters", nil)
	}

	ticket, err := o.loadForAction(ctx, ticketID, version, domain.TriggerAdminReject)
	if err != nil {
		return nil, err
	}
	ticket.RejectReason = &rejectReason
	applyAssignee(ticket, assignee)
	if err := o.commitTransition(ctx, ticket, domain.TriggerAdminReject, domain.TicketStatusRejected, version); err != nil {
		return nil, err
	}
	return ticket, nil
}

// Retry re-dispatches analysis: WAITING_CONFIRM or MANUAL_REQUIRED ->
// ANALYZING. Prior analysis fields are cleared; any in-flight engine call
// for an earlier attempt is invalidated by the version bump.
func (o *Orchestrator) Retry(ctx context.Context, ticketID string, version int64) (*domain.Ticket, error) {
	ticket, err := o.loadForAction(ctx, ticketID, version, domain.TriggerAdminRetry)
	if err != nil {
		return nil, err
	}
	ticket.Analysis = nil
	if err := o.commitTransition(ctx, ticket, domain.TriggerAdminRetry, domain.TicketStatusAnalyzing, version); err != nil {
		return nil, err
	}
	o.submitToEngine(ticket)
	return ticket, nil
}

// CompleteManual applies the admin manual-completion action:
// MANUAL_REQUIRED -> DONE.
func (o *Orchestrator) CompleteManual(ctx context.Context, ticketID string, version int64, resolution string, assignee *string) (*domain.Ticket, error) {
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return nil, apperrors.NewValidationError("manual_resolution required", nil)
	}
	if utf8.RuneCountInString(resolution) > 2000 {
		return nil, apperrors.NewValidationError("manual_resolution exceeds 2000 characters", nil)
	}

	ticket, err := o.loadForAction(ctx, ticketID, version, domain.TriggerCompleteManual)
	if err != nil {
		return nil, err
	}
	ticket.ManualResolution = &resolution
	applyAssignee(ticket, assignee)
	if err := o.commitTransition(ctx, ticket, domain.TriggerCompleteManual, domain.TicketStatusDone, version); err != nil {
		return nil, err
	}
	return ticket, nil
}

// ReconcileStuck re-dispatches tickets that sat in ANALYZING beyond the
// deadline, e.g. because the engine was unreachable at dispatch time or a
// callback was lost. Re-dispatch happens at the current version, so a late
// original callback is superseded.
func (o *Orchestrator) ReconcileStuck(ctx context.Context, deadline time.Duration) (int, error) {
	cutoff := o.clock().Add(-deadline)
	stuck, err := o.tickets.ListStuckAnalyzing(ctx, cutoff)
	if err != nil {
		return 0, apperrors.NewStorageError(err)
	}
	for i := range stuck {
		ticket := stuck[i]
		o.logger.Info("re-dispatching stuck analysis",
			zap.String("ticket_id", ticket.TicketID),
			zap.Int64("version", ticket.Version),
			zap.Time("last_update", ticket.UpdatedAt),
		)
		o.submitToEngine(&ticket)
	}
	return len(stuck), nil
}

// startAnalysis records the dispatch intent (status -> ANALYZING) and hands
// the request to the engine.
func (o *Orchestrator) startAnalysis(ctx context.Context, ticket *domain.Ticket) error {
	if !domain.CanFire(domain.TriggerDispatchAnalysis, ticket.Status) {
		return apperrors.NewInvalidTransition(string(domain.TriggerDispatchAnalysis),
			ticket.Status, domain.AllowedSources(domain.TriggerDispatchAnalysis))
	}
	if err := o.commitTransition(ctx, ticket, domain.TriggerDispatchAnalysis, domain.TicketStatusAnalyzing, ticket.Version); err != nil {
		return err
	}
	o.submitToEngine(ticket)
	return nil
}

// submitToEngine is fire-and-forget. A dispatch failure leaves the ticket
// in ANALYZING for the reconciliation sweep or a manual retry.
func (o *Orchestrator) submitToEngine(ticket *domain.Ticket) {
	if o.dispatcher == nil {
		o.logger.Warn("no analysis dispatcher bound; ticket stays ANALYZING",
			zap.String("ticket_id", ticket.TicketID))
		return
	}
	req := engine.Request{
		TicketID:     ticket.TicketID,
		RawText:      ticket.RawText,
		CustomerName: ticket.CustomerName,
		Channel:      ticket.Channel,
		ReceivedAt:   ticket.ReceivedAt,
	}
	if err := o.dispatcher.Dispatch(ticket.Version, req); err != nil {
		o.logger.Warn("analysis dispatch failed; ticket stays ANALYZING",
			zap.String("ticket_id", ticket.TicketID),
			zap.Int64("version", ticket.Version),
			zap.Error(err),
		)
	}
}

// loadForAction fetches a ticket and runs the admin-action guards: the
// caller's version must match the stored version, and the trigger must be
// legal from the current status.
func (o *Orchestrator) loadForAction(ctx context.Context, ticketID string, version int64, trigger domain.Trigger) (*domain.Ticket, error) {
	ticket, err := o.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapRepoError(err, ticketID, version)
	}
	if ticket.Version != version {
		return nil, apperrors.NewStaleVersion(version, ticket.Version)
	}
	if !domain.CanFire(trigger, ticket.Status) {
		return nil, apperrors.NewInvalidTransition(string(trigger), ticket.Status, domain.AllowedSources(trigger))
	}
	return ticket, nil
}

// commitTransition writes the new status through the version CAS and emits
// the status-changed event. The ticket's version is bumped in place.
func (o *Orchestrator) commitTransition(ctx context.Context, ticket *domain.Ticket, trigger domain.Trigger, next domain.TicketStatus, expectedVersion int64) error {
	old := ticket.Status
	ticket.Status = next
	if err := o.tickets.Update(ctx, ticket, expectedVersion); err != nil {
		ticket.Status = old
		if errors.Is(err, repository.ErrVersionConflict) {
			// Re-read so the conflict names the version that won.
			var actual int64
			if current, readErr := o.tickets.GetByID(ctx, ticket.TicketID); readErr == nil {
				actual = current.Version
			}
			return apperrors.NewStaleVersion(expectedVersion, actual)
		}
		return mapRepoError(err, ticket.TicketID, expectedVersion)
	}
	o.publish(ctx, events.Event{
		Type:     events.EventStatusChanged,
		TicketID: ticket.TicketID,
		Payload: events.StatusChangedPayload{
			OldStatus: old,
			NewStatus: next,
			Trigger:   trigger,
			Version:   ticket.Version,
		},
	})
	return nil
}

func (o *Orchestrator) discardCallback(ctx context.Context, ticket *domain.Ticket, attemptVersion int64) {
	o.logger.Info("stale engine callback discarded",
		zap.String("ticket_id", ticket.TicketID),
		zap.Int64("attempt_version", attemptVersion),
		zap.Int64("current_version", ticket.Version),
		zap.String("current_status", string(ticket.Status)),
	)
	o.metrics.RecordAnalysisOutcome("superseded")
	o.publish(ctx, events.Event{
		Type:     events.EventAnalysisSuperseded,
		TicketID: ticket.TicketID,
		Payload: events.AnalysisSupersededPayload{
			AttemptVersion: attemptVersion,
			CurrentVersion: ticket.Version,
			CurrentStatus:  ticket.Status,
		},
	})
}

func (o *Orchestrator) rereadAndDiscard(ctx context.Context, ticketID string, attemptVersion int64) {
	ticket, err := o.tickets.GetByID(ctx, ticketID)
	if err != nil {
		o.logger.Warn("re-read after callback conflict failed",
			zap.String("ticket_id", ticketID), zap.Error(err))
		return
	}
	o.discardCallback(ctx, ticket, attemptVersion)
}

func (o *Orchestrator) publish(ctx context.Context, event events.Event) {
	if o.events == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = o.clock()
	}
	_ = o.events.Publish(ctx, event)
}

// validateDecision rejects engine decisions that violate the ticket data
// model before they can be committed. A stored urgency outside the declared
// set would be unreachable through the listing filters.
func validateDecision(analysis *domain.Analysis) error {
	if analysis == nil {
		return apperrors.NewValidationError("decision required", nil)
	}
	details := map[string]any{}
	if strings.TrimSpace(analysis.Summary) == "" {
		details["summary"] = "required"
	}
	if !analysis.Urgency.Valid() {
		details["urgency"] = "must be low, medium or high"
	}
	if analysis.Confidence < 0 || analysis.Confidence > 1 {
		details["confidence"] = "must be within 0.0 and 1.0"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid engine decision", details)
	}
	return nil
}

func validateIntake(input IntakeInput, now time.Time) error {
	details := map[string]any{}
	if strings.TrimSpace(input.CustomerName) == "" {
		details["customer_name"] = "required"
	} else if utf8.RuneCountInString(input.CustomerName) > 100 {
		details["customer_name"] = "exceeds 100 characters"
	}
	if strings.TrimSpace(input.RawText) == "" {
		details["raw_text"] = "required"
	} else if utf8.RuneCountInString(input.RawText) > 5000 {
		details["raw_text"] = "exceeds 5000 characters"
	}
	if !input.Channel.Valid() {
		details["channel"] = "must be email or slack"
	}
	if input.ReceivedAt.IsZero() {
		details["received_at"] = "required"
	} else if input.ReceivedAt.After(now.Add(receivedAtSkew)) {
		details["received_at"] = "must not be in the future"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid intake payload", details)
	}
	return nil
}

func applyAssignee(ticket *domain.Ticket, assignee *string) {
	if assignee == nil {
		return
	}
	trimmed := strings.TrimSpace(*assignee)
	if trimmed == "" {
		return
	}
	ticket.Assignee = &trimmed
}

func mapRepoError(err error, ticketID string, expectedVersion int64) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("ticket", ticketID)
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.NewStaleVersion(expectedVersion, 0)
	default:
		return apperrors.NewStorageError(err)
	}
}
