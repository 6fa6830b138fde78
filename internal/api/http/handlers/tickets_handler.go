package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/geonhos/poc-voc-auto-processing/internal/api/dto"
	"github.com/geonhos/poc-voc-auto-processing/internal/domain"
	"github.com/geonhos/poc-voc-auto-processing/internal/service"
	apperrors "github.com/geonhos/poc-voc-auto-processing/pkg/util/errorutil"
)

// TicketsHandler serves ticket listing, detail, and admin actions.
type TicketsHandler struct {
	orchestrator *service.Orchestrator
	query        *service.QueryService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(orchestrator *service.Orchestrator, query *service.QueryService) *TicketsHandler {
	return &TicketsHandler{orchestrator: orchestrator, query: query}
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter := service.TicketListFilter{
		Page:  parseInt(c.Query("page"), 0),
		Limit: parseInt(c.Query("limit"), 0),
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if urgencyStr := c.Query("urgency"); urgencyStr != "" {
		urgency := domain.Urgency(strings.TrimSpace(urgencyStr))
		filter.Urgency = &urgency
	}

	page, err := h.query.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	summaries := make([]dto.TicketSummary, 0, len(page.Tickets))
	for i := range page.Tickets {
		summaries = append(summaries, ticketSummary(&page.Tickets[i]))
	}
	return c.JSON(dto.TicketListResponse{
		Tickets:    summaries,
		TotalCount: page.TotalCount,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: page.TotalPages,
	})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.orchestrator.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(ticketDetail(ticket))
}

// ConfirmTicket POST /tickets/:id/confirm.
func (h *TicketsHandler) ConfirmTicket(c *fiber.Ctx) error {
	var req dto.ConfirmRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Version <= 0 {
		return apperrors.NewValidationError("version required", nil)
	}
	ticket, err := h.orchestrator.Confirm(c.UserContext(), c.Params("id"), req.Version, req.Assignee)
	if err != nil {
		return err
	}
	return c.JSON(ticketDetail(ticket))
}

// RejectTicket POST /tickets/:id/reject.
func (h *TicketsHandler) RejectTicket(c *fiber.Ctx) error {
	var req dto.RejectRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Version <= 0 {
		return apperrors.NewValidationError("version required", nil)
	}
	ticket, err := h.orchestrator.Reject(c.UserContext(), c.Params("id"), req.Version, req.RejectReason, req.Assignee)
	if err != nil {
		return err
	}
	return c.JSON(ticketDetail(ticket))
}

// RetryTicket POST /tickets/:id/retry.
func (h *TicketsHandler) RetryTicket(c *fiber.Ctx) error {
	var req dto.RetryRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Version <= 0 {
		return apperrors.NewValidationError("version required", nil)
	}
	ticket, err := h.orchestrator.Retry(c.UserContext(), c.Params("id"), req.Version)
	if err != nil {
		return err
	}
	return c.JSON(ticketDetail(ticket))
}

// CompleteTicket POST /tickets/:id/complete.
func (h *TicketsHandler) CompleteTicket(c *fiber.Ctx) error {
	var req dto.CompleteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Version <= 0 {
		return apperrors.NewValidationError("version required", nil)
	}
	ticket, err := h.orchestrator.CompleteManual(c.UserContext(), c.Params("id"), req.Version, req.ManualResolution, req.Assignee)
	if err != nil {
		return err
	}
	return c.JSON(ticketDetail(ticket))
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	summary := dto.TicketSummary{
		TicketID:     ticket.TicketID,
		Status:       ticket.Status,
		Version:      ticket.Version,
		CustomerName: ticket.CustomerName,
		CreatedAt:    ticket.CreatedAt,
		UpdatedAt:    ticket.UpdatedAt,
	}
	if ticket.Analysis != nil {
		summary.Summary = &ticket.Analysis.Summary
		summary.Urgency = &ticket.Analysis.Urgency
		summary.Confidence = &ticket.Analysis.Confidence
	}
	return summary
}

func ticketDetail(ticket *domain.Ticket) dto.TicketDetail {
	detail := dto.TicketDetail{
		TicketID:         ticket.TicketID,
		Status:           ticket.Status,
		Version:          ticket.Version,
		RawText:          ticket.RawText,
		CustomerName:     ticket.CustomerName,
		Channel:          ticket.Channel,
		ReceivedAt:       ticket.ReceivedAt,
		CreatedAt:        ticket.CreatedAt,
		UpdatedAt:        ticket.UpdatedAt,
		Assignee:         ticket.Assignee,
		ConfirmedAt:      ticket.ConfirmedAt,
		RejectReason:     ticket.RejectReason,
		ManualResolution: ticket.ManualResolution,
	}
	if ticket.Analysis != nil {
		analysis := ticket.Analysis
		detail.Summary = &analysis.Summary
		detail.Urgency = &analysis.Urgency
		detail.AffectedSystem = &analysis.AffectedSystem
		detail.Confidence = &analysis.Confidence
		detail.DecisionReason = &analysis.Reason
		detail.ActionProposal = analysis.Proposal
		detail.AnalyzedAt = &analysis.AnalyzedAt
	}
	return detail
}
