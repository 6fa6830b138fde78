package repository

import (
	"context"
	"errors"
	"time"

	"github.com/geonhos/poc-voc-auto-processing/internal/domain"
)

// Sentinel errors surfaced by ticket stores. The orchestrator maps these to
// the caller-facing taxonomy.
var (
	// ErrNotFound reports an unknown ticket id.
	ErrNotFound = errors.New("ticket not found")
	// ErrVersionConflict reports a compare-and-swap miss: the stored
	// version no longer matches the caller's expected version.
	ErrVersionConflict = errors.New("ticket version conflict")
	// ErrDuplicateID reports a ticket id collision on create.
	ErrDuplicateID = errors.New("duplicate ticket id")
)

// TicketFilter captures listing parameters. Ordering is fixed: newest
// created_at first, ties broken by ticket_id descending, so pages stay
// stable under concurrent inserts.
type TicketFilter struct {
	Statuses []domain.TicketStatus
	Urgency  *domain.Urgency
	Limit    int
	Offset   int
}

// TicketRepository encapsulates ticket persistence.
//
// Every mutation is version-checked: Update succeeds only when the stored
// version equals expectedVersion, and bumps it by exactly 1. This is the
// linchpin preventing lost updates between racing writers.
type TicketRepository interface {
	// Create stores a new ticket at version 1 and stamps CreatedAt/UpdatedAt.
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// Update writes the mutated ticket if the stored version still equals
	// expectedVersion; the committed record carries expectedVersion+1.
	// Returns ErrVersionConflict on a CAS miss, ErrNotFound for unknown ids.
	Update(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error
	// ListWithFilter returns one page of tickets plus the total match count.
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error)
	// ListStuckAnalyzing returns tickets sitting in ANALYZING whose last
	// update is before the cutoff, for the reconciliation sweep.
	ListStuckAnalyzing(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error)
}
