package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/geonhos/poc-voc-auto-processing/internal/api/dto"
	"github.com/geonhos/poc-voc-auto-processing/internal/service"
	apperrors "github.com/geonhos/poc-voc-auto-processing/pkg/util/errorutil"
)

// VOCHandler serves complaint intake.
type VOCHandler struct {
	orchestrator *service.Orchestrator
}

// NewVOCHandler constructs handler.
func NewVOCHandler(orchestrator *service.Orchestrator) *VOCHandler {
	return &VOCHandler{orchestrator: orchestrator}
}

// CreateVOC POST /voc (also mounted at POST /tickets).
func (h *VOCHandler) CreateVOC(c *fiber.Ctx) error {
	var req dto.CreateVOCRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.orchestrator.Intake(c.UserContext(), service.IntakeInput{
		RawText:      req.RawText,
		CustomerName: req.CustomerName,
		Channel:      req.Channel,
		ReceivedAt:   req.ReceivedAt,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.CreateVOCResponse{
		TicketID: ticket.TicketID,
		Status:   ticket.Status,
	})
}
