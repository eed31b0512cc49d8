package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wave-social/wave-api/internal/config"
	"github.com/wave-social/wave-api/internal/handler"
	"github.com/wave-social/wave-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	PresenceHandler     *handler.PresenceHandler
	ConversationHandler *handler.ConversationHandler
	NotificationHandler *handler.NotificationHandler
	EventHandler        *handler.EventHandler
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.PresenceHandler != nil {
		presenceGroup := app.Group("/api/v1/presence", jwtMiddleware)
		deps.PresenceHandler.Register(presenceGroup)
	}

	if deps.ConversationHandler != nil {
		conversationGroup := app.Group("/api/v1/conversations", jwtMiddleware)
		deps.ConversationHandler.Register(conversationGroup)
	}

	if deps.NotificationHandler != nil {
		notificationGroup := app.Group("/api/v1/notifications", jwtMiddleware)
		deps.NotificationHandler.Register(notificationGroup)
	}

	if deps.EventHandler != nil {
		eventGroup := app.Group("/api/v1/events", jwtMiddleware)
		deps.EventHandler.Register(eventGroup)
	}
}
