package dto

import (
	"time"

	"github.com/geonhos/poc-voc-auto-processing/internal/domain"
)

// CreateVOCRequest is the intake payload.
type CreateVOCRequest struct {
	RawText      string         `json:"raw_text"`
	CustomerName string         `json:"customer_name"`
	Channel      domain.Channel `json:"channel"`
	ReceivedAt   time.Time      `json:"received_at"`
}

// CreateVOCResponse acknowledges intake.
type CreateVOCResponse struct {
	TicketID string              `json:"ticket_id"`
	Status   domain.TicketStatus `json:"status"`
}

// ConfirmRequest payload. Version is the version the admin last observed.
type ConfirmRequest struct {
	Version  int64   `json:"version"`
	Assignee *string `json:"assignee,omitempty"`
}

// RejectRequest payload.
type RejectRequest struct {
	Version      int64   `json:"version"`
	RejectReason string  `json:"reject_reason"`
	Assignee     *string `json:"assignee,omitempty"`
}

// RetryRequest payload.
type RetryRequest struct {
	Version int64 `json:"version"`
}

// CompleteRequest payload for manual completion.
type CompleteRequest struct {
	Version          int64   `json:"version"`
	ManualResolution string  `json:"manual_resolution"`
	Assignee         *string `json:"assignee,omitempty"`
}

// ReportAnalysisRequest is the engine callback payload.
type ReportAnalysisRequest struct {
	TicketID       string           `json:"ticket_id"`
	AttemptVersion int64            `json:"attempt_version"`
	Decision       *DecisionPayload `json:"decision,omitempty"`
	Failure        *FailurePayload  `json:"failure,omitempty"`
}

// DecisionPayload mirrors the engine's decision fields.
type DecisionPayload struct {
	Summary        string                 `json:"summary"`
	Urgency        domain.Urgency         `json:"urgency"`
	AffectedSystem string                 `json:"affected_system"`
	Confidence     float64                `json:"confidence"`
	Reason         domain.DecisionReason  `json:"decision_reason"`
	Proposal       *domain.ActionProposal `json:"action_proposal,omitempty"`
	AnalyzedAt     time.Time              `json:"analyzed_at"`
}

// FailurePayload reports a terminal engine failure.
type FailurePayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TicketSummary is the list-view projection.
type TicketSummary struct {
	TicketID     string              `json:"ticket_id"`
	Status       domain.TicketStatus `json:"status"`
	Version      int64               `json:"version"`
	CustomerName string              `json:"customer_name"`
	Summary      *string             `json:"summary,omitempty"`
	Urgency      *domain.Urgency     `json:"urgency,omitempty"`
	Confidence   *float64            `json:"confidence,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// TicketDetail is the single-ticket projection.
type TicketDetail struct {
	TicketID string              `json:"ticket_id"`
	Status   domain.TicketStatus `json:"status"`
	Version  int64               `json:"version"`

	RawText      string         `json:"raw_text"`
	CustomerName string         `json:"customer_name"`
	Channel      domain.Channel `json:"channel"`
	ReceivedAt   time.Time      `json:"received_at"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	Summary        *string                `json:"summary,omitempty"`
	Urgency        *domain.Urgency        `json:"urgency,omitempty"`
	AffectedSystem *string                `json:"affected_system,omitempty"`
	Confidence     *float64               `json:"confidence,omitempty"`
	DecisionReason *domain.DecisionReason `json:"decision_reason,omitempty"`
	ActionProposal *domain.ActionProposal `json:"action_proposal,omitempty"`
	AnalyzedAt     *time.Time             `json:"analyzed_at,omitempty"`

	Assignee         *string    `json:"assignee,omitempty"`
	ConfirmedAt      *time.Time `json:"confirmed_at,omitempty"`
	RejectReason     *string    `json:"reject_reason,omitempty"`
	ManualResolution *string    `json:"manual_resolution,omitempty"`
}

// TicketListResponse is one page of tickets with pagination totals.
type TicketListResponse struct {
	Tickets    []TicketSummary `json:"tickets"`
	TotalCount int             `json:"total_count"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"total_pages"`
}
