package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/geonhos/poc-voc-auto-processing/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health   *handlers.HealthHandler
	VOC      *handlers.VOCHandler
	Tickets  *handlers.TicketsHandler
	Analysis *handlers.AnalysisHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/voc", cfg.VOC.CreateVOC)

	tickets := app.Group("/tickets")
	tickets.Post("", cfg.VOC.CreateVOC)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/confirm", cfg.Tickets.ConfirmTicket)
	tickets.Post("/:id/reject", cfg.Tickets.RejectTicket)
	tickets.Post("/:id/retry", cfg.Tickets.RetryTicket)
	tickets.Post("/:id/complete", cfg.Tickets.CompleteTicket)

	app.Post("/internal/analysis/report", cfg.Analysis.ReportAnalysis)
}
