package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geonhos/poc-voc-auto-processing/internal/domain"
)

const ticketColumns = `ticket_id, status, version, raw_text, customer_name, channel,
	       received_at, created_at, updated_at,
	       summary, urgency, affected_system, confidence, decision_reason, action_proposal, analyzed_at,
	       assignee, confirmed_at, reject_reason, manual_resolution`

type pgTicketRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTicketRepository instantiates the pgx-backed store.
func NewPostgresTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &pgTicketRepository{pool: pool}
}

func (r *pgTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (ticket_id, status, version, raw_text, customer_name, channel, received_at)
        VALUES ($1,$2,1,$3,$4,$5,$6)
        RETURNING version, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.TicketID,
		ticket.Status,
		ticket.RawText,
		ticket.CustomerName,
		ticket.Channel,
		ticket.ReceivedAt,
	).Scan(&ticket.Version, &ticket.CreatedAt, &ticket.UpdatedAt)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrDuplicateID
	}
	return err
}

func (r *pgTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ticket, err
}

func (r *pgTicketRepository) Update(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error {
	reason, proposal, err := marshalAnalysisJSON(ticket.Analysis)
	if err != nil {
		return err
	}
	var summary, affectedSystem *string
	var urgency *domain.Urgency
	var confidence *float64
	var analyzedAt *time.Time
	if ticket.Analysis != nil {
		summary = &ticket.Analysis.Summary
		urgency = &ticket.Analysis.Urgency
		affectedSystem = &ticket.Analysis.AffectedSystem
		confidence = &ticket.Analysis.Confidence
		analyzedAt = &ticket.Analysis.AnalyzedAt
	}

	const query = `
        UPDATE tickets SET status=$1, version=version+1, updated_at=NOW(),
            summary=$2, urgency=$3, affected_system=$4, confidence=$5,
            decision_reason=$6, action_proposal=$7, analyzed_at=$8,
            assignee=$9, confirmed_at=$10, reject_reason=$11, manual_resolution=$12
        WHERE ticket_id=$13 AND version=$14
        RETURNING version, updated_at`
	err = r.pool.QueryRow(ctx, query,
		ticket.Status,
		summary,
		urgency,
		affectedSystem,
		confidence,
		reason,
		proposal,
		analyzedAt,
		ticket.Assignee,
		ticket.ConfirmedAt,
		ticket.RejectReason,
		ticket.ManualResolution,
		ticket.TicketID,
		expectedVersion,
	).Scan(&ticket.Version, &ticket.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a CAS miss from a missing row.
		var exists bool
		if probeErr := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM tickets WHERE ticket_id=$1)`, ticket.TicketID,
		).Scan(&exists); probeErr != nil {
			return probeErr
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return err
}

func (r *pgTicketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Urgency != nil {
		args = append(args, *filter.Urgency)
		clauses = append(clauses, fmt.Sprintf("urgency=$%d", len(args)))
	}
	where := strings.Join(clauses, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM tickets WHERE ` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(
		`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, ticket_id DESC LIMIT %d OFFSET %d`,
		ticketColumns, where, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

func (r *pgTicketRepository) ListStuckAnalyzing(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
	     FROM tickets WHERE status=$1 AND updated_at < $2
	     ORDER BY updated_at ASC`
	rows, err := r.pool.Query(ctx, query, domain.TicketStatusAnalyzing, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		ticket         domain.Ticket
		summary        *string
		urgency        *domain.Urgency
		affectedSystem *string
		confidence     *float64
		reasonJSON     []byte
		proposalJSON   []byte
		analyzedAt     *time.Time
	)
	if err := row.Scan(
		&ticket.TicketID,
		&ticket.Status,
		&ticket.Version,
		&ticket.RawText,
		&ticket.CustomerName,
		&ticket.Channel,
		&ticket.ReceivedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&summary,
		&urgency,
		&affectedSystem,
		&confidence,
		&reasonJSON,
		&proposalJSON,
		&analyzedAt,
		&ticket.Assignee,
		&ticket.ConfirmedAt,
		&ticket.RejectReason,
		&ticket.ManualResolution,
	); err != nil {
		return nil, err
	}

	// Analysis columns are written together; summary presence marks the block.
	if summary != nil {
		analysis := &domain.Analysis{Summary: *summary}
		if urgency != nil {
			analysis.Urgency = *urgency
		}
		if affectedSystem != nil {
			analysis.AffectedSystem = *affectedSystem
		}
		if confidence != nil {
			analysis.Confidence = *confidence
		}
		if analyzedAt != nil {
			analysis.AnalyzedAt = *analyzedAt
		}
		if len(reasonJSON) > 0 {
			if err := json.Unmarshal(reasonJSON, &analysis.Reason); err != nil {
				return nil, fmt.Errorf("decode decision_reason for %s: %w", ticket.TicketID, err)
			}
		}
		if len(proposalJSON) > 0 {
			var proposal domain.ActionProposal
			if err := json.Unmarshal(proposalJSON, &proposal); err != nil {
				return nil, fmt.Errorf("decode action_proposal for %s: %w", ticket.TicketID, err)
			}
			analysis.Proposal = &proposal
		}
		ticket.Analysis = analysis
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func marshalAnalysisJSON(analysis *domain.Analysis) (reason, proposal []byte, err error) {
	if analysis == nil {
		return nil, nil, nil
	}
	reason, err = json.Marshal(analysis.Reason)
	if err != nil {
		return nil, nil, err
	}
	if analysis.Proposal != nil {
		proposal, err = json.Marshal(analysis.Proposal)
		if err != nil {
			return nil, nil, err
		}
	}
	return reason, proposal, nil
}
