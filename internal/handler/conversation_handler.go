package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/wave-social/wave-api/internal/dto"
	"github.com/wave-social/wave-api/internal/middleware"
	"github.com/wave-social/wave-api/internal/service"
	"github.com/wave-social/wave-api/internal/utils"
)

// ConversationHandler manages conversation threads and their message logs.
type ConversationHandler struct {
	service service.ConversationService
	logger  zerolog.Logger
}

// NewConversationHandler constructs a handler instance.
func NewConversationHandler(svc service.ConversationService, logger zerolog.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  logger.With().Str("component", "conversation_handler").Logger(),
	}
}

// Register binds the conversation routes.
func (h *ConversationHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/", h.findOrCreate)
	router.Get("/:id/messages", h.listMessages)
	router.Post("/:id/messages", middleware.RateLimit("messages", 60, time.Minute), h.sendMessage)
}

func (h *ConversationHandler) list(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	conversations, err := h.service.List(requestContext(c), userID)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list conversations")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list conversations")
	}

	return utils.SendSuccess(c, "conversations", conversations)
}

func (h *ConversationHandler) findOrCreate(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.ConversationCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	conversation, err := h.service.FindOrCreate(requestContext(c), userID, payload)
	if err != nil {
		return h.sendConversationError(c, err, "failed to open conversation")
	}

	return utils.SendSuccess(c, "conversation ready", conversation)
}

func (h *ConversationHandler) listMessages(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	conversationID := c.Params("id")
	if conversationID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "conversation id required")
	}

	messages, err := h.service.ListMessages(requestContext(c), userID, conversationID)
	if err != nil {
		return h.sendConversationError(c, err, "failed to list messages")
	}

	return utils.SendSuccess(c, "messages", messages)
}

func (h *ConversationHandler) sendMessage(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	conversationID := c.Params("id")
	if conversationID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "conversation id required")
	}

	var payload dto.MessageSendRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	message, err := h.service.SendMessage(requestContext(c), userID, conversationID, payload)
	if err != nil {
		return h.sendConversationError(c, err, "failed to send message")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", message)
}

func (h *ConversationHandler) sendConversationError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrSelfConversation):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrEmptyContent):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrNotParticipant):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrConversationNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}
