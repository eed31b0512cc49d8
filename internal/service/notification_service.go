package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/wave-social/wave-api/internal/dto"
	"github.com/wave-social/wave-api/internal/models"
	"github.com/wave-social/wave-api/internal/observability"
	"github.com/wave-social/wave-api/internal/repository"
)

const notificationBufferSize = 16

// NotificationService persists notifications and streams them to end
// users via SSE.
type NotificationService interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
	List(ctx context.Context, userID string, limit int) ([]dto.NotificationResponse, error)
	MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error)
	Subscribe(userID string) (<-chan dto.NotificationResponse, func())
}

type notificationService struct {
	repo      repository.NotificationRepository
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	sanitizer *bluemonday.Policy
	broker    *notificationBroker
}

type notificationBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan dto.NotificationResponse]struct{}
}

// NewNotificationService constructs a notification service.
func NewNotificationService(repo repository.NotificationRepository, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	return &notificationService{
		repo:      repo,
		validator: validate,
		logger:    logger.With().Str("component", "notification_service").Logger(),
		tracer:    otel.Tracer("github.com/wave-social/wave-api/internal/service/notification"),
		sanitizer: bluemonday.StrictPolicy(),
		broker: &notificationBroker{
			subscribers: make(map[string]map[chan dto.NotificationResponse]struct{}),
		},
	}
}

// Publish persists the notification and pushes it to the user's stream
// subscribers. A payload whose dedupe key already exists returns the
// original row without re-notifying anyone.
func (s *notificationService) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	cleanMessage := strings.TrimSpace(s.sanitizer.Sanitize(payload.Message))
	if cleanMessage == "" {
		return dto.NotificationResponse{}, errors.New("notification message empty after sanitization")
	}

	dedupeKey := strings.TrimSpace(payload.DedupeKey)
	if dedupeKey == "" {
		dedupeKey = uuid.NewString()
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.publish", trace.WithAttributes(
		attribute.String("notification.user_id", payload.UserID),
		attribute.String("notification.type", payload.Type),
	))
	defer span.End()

	model := models.Notification{
		UserID:    payload.UserID,
		Type:      payload.Type,
		Title:     strings.TrimSpace(s.sanitizer.Sanitize(payload.Title)),
		Message:   cleanMessage,
		DedupeKey: dedupeKey,
	}
	if len(payload.Data) > 0 {
		model.Data = make(datatypes.JSONMap, len(payload.Data))
		for key, value := range payload.Data {
			model.Data[key] = value
		}
	}

	created, err := s.repo.Create(spanCtx, &model)
	if err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	response := dto.NewNotificationResponse(model)
	if !created {
		return response, nil
	}

	s.broker.broadcast(response.UserID, response)
	observability.NotificationsPersisted().WithLabelValues(response.Type).Inc()

	return response, nil
}

// List returns the user's most recent notifications, capped at 50.
func (s *notificationService) List(ctx context.Context, userID string, limit int) ([]dto.NotificationResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}

	notifications, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	return dto.NewNotificationResponseSlice(notifications), nil
}

// MarkRead flips read to true; marking an already-read notification is a
// no-op.
func (s *notificationService) MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(
		attribute.String("notification.user_id", userID),
	))
	defer span.End()

	notification, err := s.repo.MarkRead(spanCtx, id, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.NotificationResponse{}, ErrNotificationNotFound
	}
	if err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	return dto.NewNotificationResponse(notification), nil
}

// Subscribe registers a stream channel for the user; the cleanup function
// must be called when the client disconnects.
func (s *notificationService) Subscribe(userID string) (<-chan dto.NotificationResponse, func()) {
	channel := make(chan dto.NotificationResponse, notificationBufferSize)

	s.broker.subscribe(userID, channel)
	observability.SSEClientsActive().Inc()

	cleanup := func() {
		s.broker.unsubscribe(userID, channel)
		observability.SSEClientsActive().Dec()
	}

	return channel, cleanup
}

func (b *notificationBroker) subscribe(userID string, ch chan dto.NotificationResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[userID]; !exists {
		b.subscribers[userID] = make(map[chan dto.NotificationResponse]struct{})
	}
	b.subscribers[userID][ch] = struct{}{}
}

func (b *notificationBroker) unsubscribe(userID string, ch chan dto.NotificationResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[userID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, userID)
		}
	}
}

func (b *notificationBroker) broadcast(userID string, notification dto.NotificationResponse) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers := b.subscribers[userID]
	for ch := range subscribers {
		select {
		case ch <- notification:
		default:
		}
	}
}
