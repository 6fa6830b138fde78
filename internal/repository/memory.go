package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geonhos/poc-voc-auto-processing/internal/domain"
)

// MemoryTicketRepository is an in-process TicketRepository with the same
// compare-and-swap semantics as the Postgres store. It backs tests and
// DSN-less development mode.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]*domain.Ticket
	clock   func() time.Time
}

// NewMemoryTicketRepository constructs an empty in-memory store.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{
		tickets: make(map[string]*domain.Ticket),
		clock:   time.Now,
	}
}

// SetClock overrides the timestamp source, for tests.
func (r *MemoryTicketRepository) SetClock(clock func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
}

func (r *MemoryTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.TicketID]; ok {
		return ErrDuplicateID
	}
	now := r.clock()
	ticket.Version = 1
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	r.tickets[ticket.TicketID] = ticket.Clone()
	return nil
}

func (r *MemoryTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ticket.Clone(), nil
}

func (r *MemoryTicketRepository) Update(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[ticket.TicketID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	next := ticket.Clone()
	next.Version = expectedVersion + 1
	next.CreatedAt = stored.CreatedAt
	next.UpdatedAt = r.clock()
	// Intake fields are immutable after creation.
	next.RawText = stored.RawText
	next.CustomerName = stored.CustomerName
	next.Channel = stored.Channel
	next.ReceivedAt = stored.ReceivedAt
	r.tickets[ticket.TicketID] = next
	ticket.Version = next.Version
	ticket.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *MemoryTicketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*domain.Ticket, 0, len(r.tickets))
	for _, ticket := range r.tickets {
		if !matchesFilter(ticket, filter) {
			continue
		}
		matched = append(matched, ticket)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].TicketID > matched[j].TicketID
	})

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if filter.Limit <= 0 || end > total {
		end = total
	}

	page := make([]domain.Ticket, 0, end-start)
	for _, ticket := range matched[start:end] {
		page = append(page, *ticket.Clone())
	}
	return page, total, nil
}

func (r *MemoryTicketRepository) ListStuckAnalyzing(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var stuck []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.Status == domain.TicketStatusAnalyzing && ticket.UpdatedAt.Before(cutoff) {
			stuck = append(stuck, *ticket.Clone())
		}
	}
	sort.Slice(stuck, func(i, j int) bool {
		return stuck[i].UpdatedAt.Before(stuck[j].UpdatedAt)
	})
	return stuck, nil
}

func matchesFilter(ticket *domain.Ticket, filter TicketFilter) bool {
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if ticket.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Urgency != nil {
		if ticket.Analysis == nil || ticket.Analysis.Urgency != *filter.Urgency {
			return false
		}
	}
	return true
}
