// Package engine defines the boundary to the external analysis engine.
// The orchestrator only sees the Analyzer interface, so a test double can be
// substituted without conditional logic elsewhere.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geonhos/poc-voc-auto-processing/internal/domain"
)

// Request carries the raw complaint to the engine.
type Request struct {
	TicketID     string         `json:"ticket_id"`
	RawText      string         `json:"raw_text"`
	CustomerName string         `json:"customer_name"`
	Channel      domain.Channel `json:"channel"`
	ReceivedAt   time.Time      `json:"received_at"`
}

// Analyzer produces a decision for a complaint, or an error.
//
// A TerminalError means the engine examined the complaint and cannot decide:
// the ticket moves to MANUAL_REQUIRED. Any other error is a channel failure:
// the ticket stays ANALYZING and is eligible for retry or the sweep.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*domain.Analysis, error)
}

// TerminalError reports that the engine gave up on a complaint.
type TerminalError struct {
	Code    string
	Message string
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("engine cannot decide (%s): %s", e.Code, e.Message)
}

// IsTerminal reports whether err is a terminal engine failure.
func IsTerminal(err error) bool {
	var terminal *TerminalError
	return errors.As(err, &terminal)
}
