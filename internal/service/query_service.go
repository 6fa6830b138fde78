package service

import (
	"context"

	"github.com/geonhos/poc-voc-auto-processing/internal/domain"
	"github.com/geonhos/poc-voc-auto-processing/internal/repository"
	apperrors "github.com/geonhos/poc-voc-auto-processing/pkg/util/errorutil"
)

// TicketListFilter describes listing parameters as received from callers.
type TicketListFilter struct {
	Statuses []domain.TicketStatus
	Urgency  *domain.Urgency
	Page     int
	Limit    int
}

// TicketPage is one page of a listing plus pagination totals.
type TicketPage struct {
	Tickets    []domain.Ticket
	TotalCount int
	Page       int
	Limit      int
	TotalPages int
}

// QueryService serves read-only paginated ticket listings with stable
// ordering: newest created_at first, ties broken by ticket_id descending.
type QueryService struct {
	tickets      repository.TicketRepository
	defaultLimit int
	maxLimit     int
}

// NewQueryService constructs the service.
func NewQueryService(tickets repository.TicketRepository, defaultLimit, maxLimit int) *QueryService {
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &QueryService{tickets: tickets, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// List returns a page of tickets. Page and limit values <= 0 normalize to
// page 1 and the default limit; a page past the end returns an empty page,
// not an error.
func (q *QueryService) List(ctx context.Context, filter TicketListFilter) (*TicketPage, error) {
	for _, status := range filter.Statuses {
		if !status.Valid() {
			return nil, apperrors.NewValidationError("unknown status filter",
				map[string]any{"status": status})
		}
	}
	if filter.Urgency != nil && !filter.Urgency.Valid() {
		return nil, apperrors.NewValidationError("unknown urgency filter",
			map[string]any{"urgency": *filter.Urgency})
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = q.defaultLimit
	}
	if limit > q.maxLimit {
		limit = q.maxLimit
	}

	tickets, total, err := q.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses: filter.Statuses,
		Urgency:  filter.Urgency,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}

	totalPages := total / limit
	if total%limit > 0 {
		totalPages++
	}
	return &TicketPage{
		Tickets:    tickets,
		TotalCount: total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}
