package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/geonhos/poc-voc-auto-processing/internal/api/dto"
	"github.com/geonhos/poc-voc-auto-processing/internal/domain"
	"github.com/geonhos/poc-voc-auto-processing/internal/engine"
	"github.com/geonhos/poc-voc-auto-processing/internal/service"
	apperrors "github.com/geonhos/poc-voc-auto-processing/pkg/util/errorutil"
)

// AnalysisHandler receives engine callbacks for out-of-process engines.
// In-process dispatch reports through the orchestrator directly; this
// endpoint is the same contract over HTTP.
type AnalysisHandler struct {
	orchestrator *service.Orchestrator
}

// NewAnalysisHandler constructs handler.
func NewAnalysisHandler(orchestrator *service.Orchestrator) *AnalysisHandler {
	return &AnalysisHandler{orchestrator: orchestrator}
}

// ReportAnalysis POST /internal/analysis/report.
func (h *AnalysisHandler) ReportAnalysis(c *fiber.Ctx) error {
	var req dto.ReportAnalysisRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.TicketID == "" {
		return apperrors.NewValidationError("ticket_id required", nil)
	}
	if req.AttemptVersion <= 0 {
		return apperrors.NewValidationError("attempt_version required", nil)
	}
	if (req.Decision == nil) == (req.Failure == nil) {
		return apperrors.NewValidationError("exactly one of decision or failure required", nil)
	}

	ctx := c.UserContext()
	if req.Decision != nil {
		analysis := &domain.Analysis{
			Summary:        req.Decision.Summary,
			Urgency:        req.Decision.Urgency,
			AffectedSystem: req.Decision.AffectedSystem,
			Confidence:     req.Decision.Confidence,
			Reason:         req.Decision.Reason,
			Proposal:       req.Decision.Proposal,
			AnalyzedAt:     req.Decision.AnalyzedAt,
		}
		if err := h.orchestrator.ReportDecision(ctx, req.TicketID, req.AttemptVersion, analysis); err != nil {
			return err
		}
	} else {
		cause := &engine.TerminalError{Code: req.Failure.Code, Message: req.Failure.Message}
		if err := h.orchestrator.ReportFailure(ctx, req.TicketID, req.AttemptVersion, cause); err != nil {
			return err
		}
	}
	return c.SendStatus(fiber.StatusAccepted)
}
