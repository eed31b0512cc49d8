package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/wave-social/wave-api/internal/models"
)

// ConversationRepository persists conversation records and their unread
// bookkeeping.
type ConversationRepository interface {
	Create(ctx context.Context, conversation *models.Conversation) error
	FindByID(ctx context.Context, id string) (models.Conversation, error)
	FindByParticipants(ctx context.Context, userA, userB string) (models.Conversation, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Conversation, error)
	ResetUnread(ctx context.Context, id, userID string) error
}

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository constructs a conversation repository backed by GORM.
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	conversation.ParticipantA, conversation.ParticipantB = models.NormalizePair(conversation.ParticipantA, conversation.ParticipantB)
	return r.db.WithContext(ctx).Create(conversation).Error
}

func (r *conversationRepository) FindByID(ctx context.Context, id string) (models.Conversation, error) {
	var conversation models.Conversation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&conversation).Error; err != nil {
		return models.Conversation{}, err
	}
	return conversation, nil
}

func (r *conversationRepository) FindByParticipants(ctx context.Context, userA, userB string) (models.Conversation, error) {
	a, b := models.NormalizePair(userA, userB)

	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Where("participant_a = ? AND participant_b = ?", a, b).
		First(&conversation).Error
	if err != nil {
		return models.Conversation{}, err
	}
	return conversation, nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]models.Conversation, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var conversations []models.Conversation
	err := r.db.WithContext(ctx).
		Where("participant_a = ? OR participant_b = ?", userID, userID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}

	return conversations, nil
}

// ResetUnread zeroes only the calling participant's counter. The CASE
// expressions keep the write atomic in place so a concurrent incoming
// message cannot be lost to a stale snapshot.
func (r *conversationRepository) ResetUnread(ctx context.Context, id, userID string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ? AND (participant_a = ? OR participant_b = ?)", id, userID, userID).
		UpdateColumns(map[string]interface{}{
			"unread_a": gorm.Expr("CASE WHEN participant_a = ? THEN 0 ELSE unread_a END", userID),
			"unread_b": gorm.Expr("CASE WHEN participant_b = ? THEN 0 ELSE unread_b END", userID),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
