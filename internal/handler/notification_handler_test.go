package handler_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/wave-social/wave-api/internal/dto"
	"github.com/wave-social/wave-api/internal/handler"
	"github.com/wave-social/wave-api/internal/service"
)

type mockNotificationService struct {
	lastUserID string
	lastLimit  int
	lastID     uint
	listResult []dto.NotificationResponse
	markResult dto.NotificationResponse
	err        error
}

func (m *mockNotificationService) Publish(_ context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	return dto.NotificationResponse{}, nil
}

func (m *mockNotificationService) List(_ context.Context, userID string, limit int) ([]dto.NotificationResponse, error) {
	m.lastUserID = userID
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.listResult, nil
}

func (m *mockNotificationService) MarkRead(_ context.Context, id uint, userID string) (dto.NotificationResponse, error) {
	m.lastID = id
	m.lastUserID = userID
	if m.err != nil {
		return dto.NotificationResponse{}, m.err
	}
	return m.markResult, nil
}

func (m *mockNotificationService) Subscribe(userID string) (<-chan dto.NotificationResponse, func()) {
	ch := make(chan dto.NotificationResponse)
	return ch, func() {}
}

func newNotificationApp(svc service.NotificationService, userID string) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/v1/notifications", func(c *fiber.Ctx) error {
		if userID != "" {
			c.Locals("user_id", userID)
		}
		return c.Next()
	})
	handler.NewNotificationHandler(svc, zerolog.New(io.Discard), 30*time.Second).Register(group)
	return app
}

func TestNotificationHandler_List(t *testing.T) {
	svc := &mockNotificationService{listResult: []dto.NotificationResponse{
		{ID: 2, Type: "like", Message: "Alice liked your post"},
		{ID: 1, Type: "message", Message: "hi"},
	}}
	app := newNotificationApp(svc, "bob")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/?limit=10", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Success bool                       `json:"success"`
		Data    []dto.NotificationResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.Len(t, response.Data, 2)
	require.Equal(t, "bob", svc.lastUserID)
	require.Equal(t, 10, svc.lastLimit)
}

func TestNotificationHandler_ListRejectsBadLimit(t *testing.T) {
	svc := &mockNotificationService{}
	app := newNotificationApp(svc, "bob")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/?limit=abc", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestNotificationHandler_MarkRead(t *testing.T) {
	svc := &mockNotificationService{markResult: dto.NotificationResponse{ID: 5, Read: true}}
	app := newNotificationApp(svc, "bob")

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/notifications/5/read", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var response struct {
		Success bool                     `json:"success"`
		Data    dto.NotificationResponse `json:"data"`
	}
	decodeResponse(t, resp, &response)
	require.True(t, response.Data.Read)
	require.Equal(t, uint(5), svc.lastID)
	require.Equal(t, "bob", svc.lastUserID)
}

func TestNotificationHandler_MarkReadNotFound(t *testing.T) {
	svc := &mockNotificationService{err: service.ErrNotificationNotFound}
	app := newNotificationApp(svc, "bob")

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/notifications/999/read", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestNotificationHandler_RequiresAuth(t *testing.T) {
	svc := &mockNotificationService{}
	app := newNotificationApp(svc, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
