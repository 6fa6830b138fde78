package events

import (
	"time"

	"github.com/geonhos/poc-voc-auto-processing/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket_created"
	EventStatusChanged      EventType = "ticket_status_changed"
	EventAnalysisCompleted  EventType = "ticket_analysis_completed"
	EventAnalysisSuperseded EventType = "ticket_analysis_superseded"
)

// Event represents a domain event emitted by the orchestrator.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	CustomerName string         `json:"customer_name"`
	Channel      domain.Channel `json:"channel"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Trigger   domain.Trigger      `json:"trigger"`
	Version   int64               `json:"version"`
}

// AnalysisCompletedPayload payload.
type AnalysisCompletedPayload struct {
	Confidence float64             `json:"confidence"`
	Urgency    domain.Urgency      `json:"urgency"`
	NewStatus  domain.TicketStatus `json:"new_status"`
}

// AnalysisSupersededPayload records a discarded stale engine callback.
type AnalysisSupersededPayload struct {
	AttemptVersion int64               `json:"attempt_version"`
	CurrentVersion int64               `json:"current_version"`
	CurrentStatus  domain.TicketStatus `json:"current_status"`
}
