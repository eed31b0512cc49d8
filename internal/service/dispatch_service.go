package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wave-social/wave-api/internal/dto"
	"github.com/wave-social/wave-api/internal/models"
	"github.com/wave-social/wave-api/internal/observability"
	"github.com/wave-social/wave-api/internal/presence"
	"github.com/wave-social/wave-api/internal/repository"
)

// previewLimit caps the notification content preview; longer bodies get a
// trailing ellipsis, exactly this long stays untouched.
const previewLimit = 50

// NotificationPublisher persists a notification and streams it to
// subscribed clients.
type NotificationPublisher interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
}

// DispatchService turns appended messages and social events into per-
// recipient delivery decisions: live broadcast when the recipient is
// online, a durable background notification when not.
type DispatchService interface {
	MessageDispatcher
	DispatchSocial(ctx context.Context, payload dto.SocialEventRequest) (dto.NotificationResponse, error)
	Start(ctx context.Context)
}

type dispatchService struct {
	registry      *presence.Registry
	notifications NotificationPublisher
	messages      repository.MessageRepository
	users         repository.UserRepository
	redis         *redis.Client
	redisChannel  string
	nats          *nats.Conn
	natsSubject   string
	validator     *validator.Validate
	logger        zerolog.Logger
	tracer        trace.Tracer
	nodeID        string
}

// relayEvent crosses node boundaries via redis pub/sub and NATS so a
// recipient connected to another instance still gets the live frame.
type relayEvent struct {
	Source    string              `json:"source"`
	Recipient string              `json:"recipient"`
	Message   dto.MessageResponse `json:"message"`
	SentAt    time.Time           `json:"sent_at"`
}

// NewDispatchService constructs the notification dispatcher.
func NewDispatchService(
	registry *presence.Registry,
	notifications NotificationPublisher,
	messages repository.MessageRepository,
	users repository.UserRepository,
	redisClient *redis.Client,
	channelBase string,
	natsConn *nats.Conn,
	validate *validator.Validate,
	logger zerolog.Logger,
) DispatchService {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":dispatch"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".dispatch"
	}

	return &dispatchService{
		registry:      registry,
		notifications: notifications,
		messages:      messages,
		users:         users,
		redis:         redisClient,
		redisChannel:  channel,
		nats:          natsConn,
		natsSubject:   subject,
		validator:     validate,
		logger:        logger.With().Str("component", "dispatch_service").Logger(),
		tracer:        otel.Tracer("github.com/wave-social/wave-api/internal/service/dispatch"),
		nodeID:        uuid.NewString(),
	}
}

func (s *dispatchService) Start(ctx context.Context) {
	if s.redis != nil && s.redisChannel != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

// DispatchMessage decides delivery for every participant except the
// sender. The message is already durably appended, so nothing here rolls
// it back: broadcast failure degrades to delivery on the next poll.
func (s *dispatchService) DispatchMessage(ctx context.Context, conversation models.Conversation, message models.Message) {
	recipient := conversation.OtherParticipant(message.SenderID)
	if recipient == "" {
		return
	}

	spanCtx, span := s.tracer.Start(ctx, "dispatch.message", trace.WithAttributes(
		attribute.String("conversation.id", conversation.ID),
		attribute.String("dispatch.recipient", recipient),
	))
	defer span.End()

	payload := dto.NewMessageResponse(message, recipient)

	if s.registry.IsOnline(recipient) {
		delivered := s.broadcast(recipient, presence.Event{
			Kind:    "message",
			Payload: payload,
			SentAt:  time.Now().UTC(),
		})
		if delivered > 0 {
			if err := s.messages.MarkDelivered(spanCtx, []uint{message.ID}); err != nil {
				// Swallowed: the append already succeeded and the reader
				// path promotes status independently.
				s.logger.Warn().Err(err).Uint("message_id", message.ID).Msg("failed to mark message delivered")
			}
		}
	} else {
		s.notifyOffline(spanCtx, recipient, message)
	}

	s.relay(spanCtx, relayEvent{
		Source:    s.nodeID,
		Recipient: recipient,
		Message:   payload,
		SentAt:    time.Now().UTC(),
	})
}

// DispatchSocial always persists a notification for like/comment events;
// the live frame to online recipients is an optimization, not a
// correctness requirement, since clients can also poll.
func (s *dispatchService) DispatchSocial(ctx context.Context, payload dto.SocialEventRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "dispatch.social", trace.WithAttributes(
		attribute.String("event.kind", payload.Kind),
		attribute.String("event.recipient", payload.RecipientID),
	))
	defer span.End()

	actorName := s.displayName(spanCtx, payload.ActorID)

	title := actorName + " commented on your post"
	body := truncatePreview(payload.Preview)
	if payload.Kind == "like" {
		title = actorName + " liked your post"
		if body == "" {
			body = title
		}
	}
	if body == "" {
		body = title
	}

	data := map[string]string{"actor_id": payload.ActorID, "target_id": payload.TargetID}
	for key, value := range payload.Data {
		data[key] = value
	}

	// The dedupe key is scoped to the actor: retries of one event
	// collapse, distinct actors on the same target never do.
	notification, err := s.notifications.Publish(spanCtx, dto.NotificationCreateRequest{
		UserID:    payload.RecipientID,
		Type:      payload.Kind,
		Title:     title,
		Message:   body,
		Data:      data,
		DedupeKey: fmt.Sprintf("%s:%s:%s:%s", payload.Kind, payload.ActorID, payload.TargetID, payload.RecipientID),
	})
	if err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	if s.registry.IsOnline(payload.RecipientID) {
		s.broadcast(payload.RecipientID, presence.Event{
			Kind:    "notification",
			Payload: notification,
			SentAt:  time.Now().UTC(),
		})
	}

	return notification, nil
}

// broadcast delivers the event to every active connection of the user and
// returns how many accepted it. Individual drops are counted, not retried.
func (s *dispatchService) broadcast(userID string, event presence.Event) int {
	delivered := 0
	for _, conn := range s.registry.ConnectionsOf(userID) {
		if conn.Deliver(event) {
			delivered++
			observability.MessagesBroadcast().WithLabelValues("delivered").Inc()
		} else {
			observability.MessagesBroadcast().WithLabelValues("dropped").Inc()
			s.logger.Warn().Str("connection_id", conn.ID).Str("user_id", userID).Msg("dropping frame for slow connection")
		}
	}
	return delivered
}

func (s *dispatchService) notifyOffline(ctx context.Context, recipient string, message models.Message) {
	title := s.displayName(ctx, message.SenderID) + " sent you a message"

	_, err := s.notifications.Publish(ctx, dto.NotificationCreateRequest{
		UserID:    recipient,
		Type:      "message",
		Title:     title,
		Message:   truncatePreview(message.Content),
		Data:      map[string]string{"conversation_id": message.ConversationID, "sender_id": message.SenderID},
		DedupeKey: fmt.Sprintf("message:%d:%s", message.ID, recipient),
	})
	if err != nil {
		// The message itself is durable; the recipient sees it on the
		// next thread read even without the notification.
		s.logger.Warn().Err(err).Str("recipient", recipient).Msg("failed to create background notification")
	}
}

func (s *dispatchService) displayName(ctx context.Context, userID string) string {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil || user.Name == "" {
		return "Someone"
	}
	return user.Name
}

func (s *dispatchService) relay(ctx context.Context, event relayEvent) {
	if (s.redis == nil || s.redisChannel == "") && (s.nats == nil || s.natsSubject == "") {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal relay event")
		return
	}

	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish relay event to redis")
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish relay event to nats")
		}
	}
}

func (s *dispatchService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("dispatch redis subscription closed")
			return
		}
		s.handleRelay([]byte(msg.Payload))
	}
}

func (s *dispatchService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "wave-dispatch", func(msg *nats.Msg) {
		s.handleRelay(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats dispatch subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain dispatch nats subscription")
		}
	}()
}

func (s *dispatchService) handleRelay(data []byte) {
	var event relayEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid relay event")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	if s.registry.IsOnline(event.Recipient) {
		s.broadcast(event.Recipient, presence.Event{
			Kind:    "message",
			Payload: event.Message,
			SentAt:  event.SentAt,
		})
	}
}

// truncatePreview shortens content to the preview limit, appending an
// ellipsis only when something was cut.
func truncatePreview(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= previewLimit {
		return string(runes)
	}
	return string(runes[:previewLimit]) + "…"
}
