package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wave-social/wave-api/internal/dto"
	"github.com/wave-social/wave-api/internal/presence"
)

const keepAliveInterval = 30 * time.Second

// ConnectionOptions wraps metadata extracted during the HTTP upgrade.
type ConnectionOptions struct {
	UserID        string
	ConnectionID  string
	CorrelationID string
	Context       context.Context
}

// PresenceService exposes the connection registry to the transport layer:
// REST connect/disconnect for poll-based clients and a websocket loop for
// live ones.
type PresenceService interface {
	Connect(ctx context.Context, userID string, payload dto.ConnectRequest) (dto.ConnectResponse, error)
	Disconnect(ctx context.Context, payload dto.DisconnectRequest) error
	ServeConnection(conn *websocket.Conn, opts ConnectionOptions)
}

type presenceService struct {
	registry  *presence.Registry
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewPresenceService constructs the presence service.
func NewPresenceService(registry *presence.Registry, validate *validator.Validate, logger zerolog.Logger) PresenceService {
	return &presenceService{
		registry:  registry,
		validator: validate,
		logger:    logger.With().Str("component", "presence_service").Logger(),
	}
}

// Connect registers a poll-based connection. Frames broadcast to it land
// in its buffer and age out; presence is what the registration is for.
func (s *presenceService) Connect(ctx context.Context, userID string, payload dto.ConnectRequest) (dto.ConnectResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ConnectResponse{}, err
	}

	conn, err := s.registry.Connect(payload.ConnectionID, userID)
	if err != nil {
		return dto.ConnectResponse{}, err
	}

	return dto.ConnectResponse{
		ConnectionID: conn.ID,
		OnlineUsers:  s.registry.OnlineUsers(),
	}, nil
}

// Disconnect removes the connection; unknown ids are a silent no-op.
func (s *presenceService) Disconnect(ctx context.Context, payload dto.DisconnectRequest) error {
	if err := s.validator.Struct(payload); err != nil {
		return err
	}

	s.registry.Disconnect(payload.ConnectionID)
	return nil
}

// ServeConnection owns a live websocket session: it registers the
// connection, pumps registry events to the socket, and tears the
// registration down when either side goes away.
func (s *presenceService) ServeConnection(conn *websocket.Conn, opts ConnectionOptions) {
	connectionID := opts.ConnectionID
	if connectionID == "" {
		connectionID = uuid.NewString()
	}

	registered, err := s.registry.Connect(connectionID, opts.UserID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", opts.UserID).Msg("websocket registration rejected")
		_ = conn.Close()
		return
	}
	defer s.registry.Disconnect(connectionID)

	go s.writer(conn, registered)
	s.reader(conn, registered)
}

func (s *presenceService) reader(conn *websocket.Conn, registered *presence.Connection) {
	conn.SetPongHandler(func(string) error {
		s.registry.Touch(registered.ID)
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.logger.Debug().Err(err).Str("connection_id", registered.ID).Msg("presence read loop ended")
			return
		}
		s.registry.Touch(registered.ID)
	}
}

func (s *presenceService) writer(conn *websocket.Conn, registered *presence.Connection) {
	defer func() {
		_ = conn.Close()
	}()

	for {
		select {
		case event := <-registered.Events():
			if err := conn.WriteJSON(event); err != nil {
				s.logger.Debug().Err(err).Str("connection_id", registered.ID).Msg("presence write loop terminated")
				return
			}
		case <-time.After(keepAliveInterval):
			if err := conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				s.logger.Debug().Err(err).Str("connection_id", registered.ID).Msg("presence ping failed")
				return
			}
		case <-registered.Done():
			return
		}
	}
}
