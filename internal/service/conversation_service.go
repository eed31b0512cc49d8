package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/wave-social/wave-api/internal/dto"
	"github.com/wave-social/wave-api/internal/models"
	"github.com/wave-social/wave-api/internal/observability"
	"github.com/wave-social/wave-api/internal/repository"
)

// MessageDispatcher fans a freshly appended message out to its recipients.
// Dispatch is best effort: the message is already durable when it runs.
type MessageDispatcher interface {
	DispatchMessage(ctx context.Context, conversation models.Conversation, message models.Message)
}

// ConversationService owns conversation threads and their message logs.
type ConversationService interface {
	FindOrCreate(ctx context.Context, userID string, payload dto.ConversationCreateRequest) (dto.ConversationResponse, error)
	List(ctx context.Context, userID string) ([]dto.ConversationResponse, error)
	SendMessage(ctx context.Context, userID, conversationID string, payload dto.MessageSendRequest) (dto.MessageResponse, error)
	ListMessages(ctx context.Context, userID, conversationID string) ([]dto.MessageResponse, error)
}

type conversationService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	users         repository.UserRepository
	dispatcher    MessageDispatcher
	validator     *validator.Validate
	sanitizer     *bluemonday.Policy
	logger        zerolog.Logger
	tracer        trace.Tracer
}

// NewConversationService constructs the conversation service.
func NewConversationService(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	users repository.UserRepository,
	dispatcher MessageDispatcher,
	validate *validator.Validate,
	logger zerolog.Logger,
) ConversationService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	return &conversationService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		dispatcher:    dispatcher,
		validator:     validate,
		sanitizer:     sanitizer,
		logger:        logger.With().Str("component", "conversation_service").Logger(),
		tracer:        otel.Tracer("github.com/wave-social/wave-api/internal/service/conversation"),
	}
}

// FindOrCreate returns the existing thread for the unordered pair or
// creates one with both unread counters at zero. Calling it twice for the
// same pair yields the same conversation id.
func (s *conversationService) FindOrCreate(ctx context.Context, userID string, payload dto.ConversationCreateRequest) (dto.ConversationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.ConversationResponse{}, err
	}

	otherID := strings.TrimSpace(payload.ParticipantID)
	userID = strings.TrimSpace(userID)
	if userID == "" || otherID == "" || userID == otherID {
		return dto.ConversationResponse{}, ErrSelfConversation
	}

	conversation, err := s.conversations.FindByParticipants(ctx, userID, otherID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		conversation = models.Conversation{ID: uuid.NewString(), ParticipantA: userID, ParticipantB: otherID}
		if createErr := s.conversations.Create(ctx, &conversation); createErr != nil {
			// Lost a concurrent create for the same pair: the unique
			// index kicked in, so the row exists now.
			conversation, err = s.conversations.FindByParticipants(ctx, userID, otherID)
			if err != nil {
				return dto.ConversationResponse{}, createErr
			}
		}
	} else if err != nil {
		return dto.ConversationResponse{}, err
	}

	return dto.NewConversationResponse(conversation, userID, s.participantSummary(ctx, conversation.OtherParticipant(userID))), nil
}

// List returns the caller's conversations, most recently active first.
func (s *conversationService) List(ctx context.Context, userID string) ([]dto.ConversationResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrNotParticipant
	}

	conversations, err := s.conversations.ListForUser(ctx, userID, 0)
	if err != nil {
		return nil, err
	}

	otherIDs := make([]string, 0, len(conversations))
	for _, conversation := range conversations {
		otherIDs = append(otherIDs, conversation.OtherParticipant(userID))
	}

	summaries := s.participantSummaries(ctx, otherIDs)

	out := make([]dto.ConversationResponse, 0, len(conversations))
	for _, conversation := range conversations {
		otherID := conversation.OtherParticipant(userID)
		summary, ok := summaries[otherID]
		if !ok {
			summary = dto.ParticipantSummary{ID: otherID}
		}
		out = append(out, dto.NewConversationResponse(conversation, userID, summary))
	}

	return out, nil
}

// SendMessage appends the message and updates the conversation summary as
// one transactional step, then hands the message to the dispatcher. A
// dispatch failure never unwinds the send: the message stays retrievable
// on the next thread read.
func (s *conversationService) SendMessage(ctx context.Context, userID, conversationID string, payload dto.MessageSendRequest) (dto.MessageResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MessageResponse{}, err
	}

	conversation, err := s.loadForParticipant(ctx, conversationID, userID)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(payload.Content))
	if clean == "" {
		return dto.MessageResponse{}, ErrEmptyContent
	}

	messageType := payload.Type
	if messageType == "" {
		messageType = "text"
	}

	spanCtx, span := s.tracer.Start(ctx, "conversations.send", trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.String("message.sender_id", userID),
		attribute.String("message.type", messageType),
	))
	defer span.End()

	message := models.Message{
		ConversationID: conversation.ID,
		SenderID:       userID,
		Content:        clean,
		Type:           messageType,
		Status:         models.MessageStatusSent,
	}

	if err := s.messages.Append(spanCtx, &message); err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, err
	}

	observability.MessagesSent().WithLabelValues(messageType).Inc()

	s.dispatcher.DispatchMessage(spanCtx, conversation, message)

	return dto.NewMessageResponse(message, userID), nil
}

// ListMessages returns the thread in ascending order. Viewing the thread
// as the recipient is the read acknowledgement: the caller's unread
// counter resets and incoming messages are promoted to read.
func (s *conversationService) ListMessages(ctx context.Context, userID, conversationID string) ([]dto.MessageResponse, error) {
	conversation, err := s.loadForParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	messages, err := s.messages.ListByConversation(ctx, conversationID, 0)
	if err != nil {
		return nil, err
	}

	unseen := false
	for _, message := range messages {
		if message.SenderID != userID && message.Status != models.MessageStatusRead {
			unseen = true
			break
		}
	}

	if unseen {
		if err := s.messages.MarkReadByRecipient(ctx, conversationID, userID); err != nil {
			s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to mark messages read")
		}
	}
	if unseen || conversation.UnreadFor(userID) > 0 {
		if err := s.conversations.ResetUnread(ctx, conversationID, userID); err != nil {
			s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to reset unread counter")
		}
	}

	out := dto.NewMessageResponseSlice(messages, userID)
	for i := range out {
		if !out[i].IsMine && models.StatusAdvances(out[i].Status, models.MessageStatusRead) {
			out[i].Status = models.MessageStatusRead
		}
	}

	return out, nil
}

func (s *conversationService) loadForParticipant(ctx context.Context, conversationID, userID string) (models.Conversation, error) {
	conversation, err := s.conversations.FindByID(ctx, conversationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}

	if !conversation.HasParticipant(userID) {
		return models.Conversation{}, ErrNotParticipant
	}

	return conversation, nil
}

func (s *conversationService) participantSummary(ctx context.Context, userID string) dto.ParticipantSummary {
	summary := dto.ParticipantSummary{ID: userID}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return summary
	}
	summary.Name = user.Name
	summary.Avatar = user.Avatar
	return summary
}

func (s *conversationService) participantSummaries(ctx context.Context, ids []string) map[string]dto.ParticipantSummary {
	out := make(map[string]dto.ParticipantSummary, len(ids))
	users, err := s.users.ListByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to resolve participant metadata")
		return out
	}
	for _, user := range users {
		out[user.ID] = dto.ParticipantSummary{ID: user.ID, Name: user.Name, Avatar: user.Avatar}
	}
	return out
}
