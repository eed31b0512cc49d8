package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/wave-social/wave-api/internal/dto"
	"github.com/wave-social/wave-api/internal/middleware"
	"github.com/wave-social/wave-api/internal/service"
	"github.com/wave-social/wave-api/internal/utils"
)

// EventHandler accepts social events from the feed subsystem and hands
// them to the dispatcher.
type EventHandler struct {
	dispatcher service.DispatchService
	logger     zerolog.Logger
}

// NewEventHandler constructs an event handler instance.
func NewEventHandler(dispatcher service.DispatchService, logger zerolog.Logger) *EventHandler {
	return &EventHandler{
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "event_handler").Logger(),
	}
}

// Register binds the event ingestion route.
func (h *EventHandler) Register(router fiber.Router) {
	router.Post("/social", middleware.RateLimit("events", 120, time.Minute), h.social)
}

func (h *EventHandler) social(c *fiber.Ctx) error {
	if userIDFromContext(c) == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.SocialEventRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	notification, err := h.dispatcher.DispatchSocial(requestContext(c), payload)
	if err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to dispatch social event")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to dispatch social event")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "event dispatched", notification)
}
