package handler

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/wave-social/wave-api/internal/dto"
	"github.com/wave-social/wave-api/internal/middleware"
	"github.com/wave-social/wave-api/internal/presence"
	"github.com/wave-social/wave-api/internal/service"
	"github.com/wave-social/wave-api/internal/utils"
)

// PresenceHandler wires presence endpoints including the websocket upgrade.
type PresenceHandler struct {
	service   service.PresenceService
	registry  *presence.Registry
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewPresenceHandler creates a presence handler instance.
func NewPresenceHandler(svc service.PresenceService, registry *presence.Registry, validator *validator.Validate, logger zerolog.Logger) *PresenceHandler {
	return &PresenceHandler{
		service:   svc,
		registry:  registry,
		validator: validator,
		logger:    logger.With().Str("component", "presence_handler").Logger(),
	}
}

// Register binds presence routes under the provided router group.
func (h *PresenceHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			ctx := c.UserContext()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
			c.Locals("request_ctx", ctx)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
	router.Post("/connect", h.connect)
	router.Post("/disconnect", h.disconnect)
	router.Get("/online", h.online)
}

func (h *PresenceHandler) handleConnection(conn *websocket.Conn) {
	userID := websocketUserID(conn)
	if userID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusUnauthorized, "user id missing"))
		_ = conn.Close()
		return
	}

	connectionID := strings.TrimSpace(conn.Query("connection_id"))
	correlation := strings.TrimSpace(websocketLocalString(conn, "correlation_id"))
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)

	opts := service.ConnectionOptions{
		UserID:        userID,
		ConnectionID:  connectionID,
		CorrelationID: correlation,
		Context:       baseCtx,
	}

	h.logger.Info().Str("user_id", userID).Str("connection_id", connectionID).Msg("presence websocket connected")
	h.service.ServeConnection(conn, opts)
	h.logger.Info().Str("user_id", userID).Str("connection_id", connectionID).Msg("presence websocket disconnected")
}

func (h *PresenceHandler) connect(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.ConnectRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	response, err := h.service.Connect(requestContext(c), userID, payload)
	if err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		if err == presence.ErrInvalidConnection {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to register connection")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to register connection")
	}

	return utils.SendSuccess(c, "connected", response)
}

func (h *PresenceHandler) disconnect(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	var payload dto.DisconnectRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.service.Disconnect(requestContext(c), payload); err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to remove connection")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to remove connection")
	}

	return utils.SendSuccess(c, "disconnected", nil)
}

func (h *PresenceHandler) online(c *fiber.Ctx) error {
	if userIDFromContext(c) == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	return utils.SendSuccess(c, "online users", fiber.Map{"online_users": h.registry.OnlineUsers()})
}

func websocketUserID(conn *websocket.Conn) string {
	if value := conn.Locals("user_id"); value != nil {
		if id, ok := value.(string); ok {
			return strings.TrimSpace(id)
		}
	}
	return ""
}

func websocketLocalString(conn *websocket.Conn, key string) string {
	if value := conn.Locals(key); value != nil {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return ""
}
