package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/condo-service/internal/api/http/handlers"
	"github.com/spec-kit/condo-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Metrics        *observability.Metrics
	AuthMiddleware fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware)

	orgs := api.Group("/organizations/:orgId/tickets")
	orgs.Post("/", cfg.Tickets.CreateTicket)
	orgs.Get("/", cfg.Tickets.ListTickets)
	orgs.Get("/kanban", cfg.Tickets.Kanban)
	orgs.Get("/stats", cfg.Tickets.Stats)

	tickets := api.Group("/tickets/:id")
	tickets.Get("/", cfg.Tickets.GetTicket)
	tickets.Patch("/", cfg.Tickets.UpdateTicket)
	tickets.Get("/history", cfg.Tickets.History)
	tickets.Post("/assign", cfg.Tickets.Assign)
	tickets.Post("/status", cfg.Tickets.ChangeStatus)
	tickets.Post("/close", cfg.Tickets.Close)
	tickets.Post("/satisfaction", cfg.Tickets.RateSatisfaction)
	tickets.Post("/comments", cfg.Tickets.AddComment)
}
