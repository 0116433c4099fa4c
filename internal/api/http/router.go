package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-core/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-core/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Chat           *handlers.ChatHandler
	Notifications  *handlers.NotificationsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Patch("/profile/display-name", cfg.AuthMiddleware.Handle, cfg.Auth.UpdateDisplayName)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("/", cfg.Tickets.Create)
	tickets.Get("/", cfg.Tickets.List)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Get("/:id/stream", cfg.Tickets.Stream)
	tickets.Patch("/:id/status", cfg.Tickets.SetStatus)
	tickets.Patch("/:id/priority", cfg.Tickets.SetPriority)
	tickets.Patch("/:id/type", cfg.Tickets.SetType)
	tickets.Post("/:id/attend", cfg.Tickets.Attend)
	tickets.Post("/:id/messages", cfg.Chat.Send)
	tickets.Get("/:id/messages", cfg.Chat.History)
	tickets.Get("/:id/messages/stream", cfg.Chat.Stream)

	notifications := app.Group("/notifications", cfg.AuthMiddleware.Handle)
	notifications.Get("/", cfg.Notifications.List)
	notifications.Patch("/:id/read", cfg.Notifications.MarkRead)
	notifications.Delete("/:id", cfg.Notifications.Delete)
}
