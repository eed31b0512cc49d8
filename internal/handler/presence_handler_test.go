package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/wave-social/wave-api/internal/dto"
	"github.com/wave-social/wave-api/internal/handler"
	"github.com/wave-social/wave-api/internal/presence"
	"github.com/wave-social/wave-api/internal/service"
)

type mockPresenceService struct {
	lastUserID  string
	lastConnect dto.ConnectRequest
	response    dto.ConnectResponse
	err         error
}

func (m *mockPresenceService) Connect(_ context.Context, userID string, payload dto.ConnectRequest) (dto.ConnectResponse, error) {
	m.lastUserID = userID
	m.lastConnect = payload
	if m.err != nil {
		return dto.ConnectResponse{}, m.err
	}
	return m.response, nil
}

func (m *mockPresenceService) Disconnect(_ context.Context, payload dto.DisconnectRequest) error {
	return m.err
}

func (m *mockPresenceService) ServeConnection(conn *websocket.Conn, opts service.ConnectionOptions) {}

func newPresenceApp(svc service.PresenceService, registry *presence.Registry, userID string) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/v1/presence", func(c *fiber.Ctx) error {
		if userID != "" {
			c.Locals("user_id", userID)
		}
		return c.Next()
	})
	validate := validator.New(validator.WithRequiredStructEnabled())
	handler.NewPresenceHandler(svc, registry, validate, zerolog.New(io.Discard)).Register(group)
	return app
}

func TestPresenceHandler_Connect(t *testing.T) {
	svc := &mockPresenceService{response: dto.ConnectResponse{ConnectionID: "phone", OnlineUsers: []string{"alice"}}}
	registry := presence.NewRegistry(zerolog.Nop())
	app := newPresenceApp(svc, registry, "alice")

	body, err := json.Marshal(dto.ConnectRequest{ConnectionID: "phone"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/presence/connect", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Success bool                `json:"success"`
		Data    dto.ConnectResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.Equal(t, "phone", response.Data.ConnectionID)
	require.Equal(t, []string{"alice"}, response.Data.OnlineUsers)
	require.Equal(t, "alice", svc.lastUserID)
}

func TestPresenceHandler_ConnectRejectsInvalidRegistration(t *testing.T) {
	svc := &mockPresenceService{err: presence.ErrInvalidConnection}
	registry := presence.NewRegistry(zerolog.Nop())
	app := newPresenceApp(svc, registry, "alice")

	body, err := json.Marshal(dto.ConnectRequest{ConnectionID: "phone"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/presence/connect", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestPresenceHandler_Disconnect(t *testing.T) {
	svc := &mockPresenceService{}
	registry := presence.NewRegistry(zerolog.Nop())
	app := newPresenceApp(svc, registry, "alice")

	body, err := json.Marshal(dto.DisconnectRequest{ConnectionID: "phone"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/presence/disconnect", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestPresenceHandler_Online(t *testing.T) {
	svc := &mockPresenceService{}
	registry := presence.NewRegistry(zerolog.Nop())
	_, err := registry.Connect("phone", "alice")
	require.NoError(t, err)
	app := newPresenceApp(svc, registry, "bob")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/presence/online", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Success bool `json:"success"`
		Data    struct {
			OnlineUsers []string `json:"online_users"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.Equal(t, []string{"alice"}, response.Data.OnlineUsers)
}

func TestPresenceHandler_WebsocketRouteRequiresUpgrade(t *testing.T) {
	svc := &mockPresenceService{}
	registry := presence.NewRegistry(zerolog.Nop())
	app := newPresenceApp(svc, registry, "alice")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/presence/ws", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestPresenceHandler_RequiresAuth(t *testing.T) {
	svc := &mockPresenceService{}
	registry := presence.NewRegistry(zerolog.Nop())
	app := newPresenceApp(svc, registry, "")

	body, err := json.Marshal(dto.ConnectRequest{ConnectionID: "phone"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/presence/connect", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.Empty(t, svc.lastUserID)
}
