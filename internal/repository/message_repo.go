package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/wave-social/wave-api/internal/models"
)

// MessageRepository owns the append-only message log of a conversation.
type MessageRepository interface {
	Append(ctx context.Context, message *models.Message) error
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	MarkDelivered(ctx context.Context, ids []uint) error
	MarkReadByRecipient(ctx context.Context, conversationID, readerID string) error
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Append inserts the message and updates the owning conversation's summary
// and unread counters in a single transaction, so the log and the summary
// never drift. The unread increments are CASE expressions evaluated in
// place: two near-simultaneous sends both land.
func (r *messageRepository) Append(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}

		result := tx.Model(&models.Conversation{}).
			Where("id = ?", message.ConversationID).
			UpdateColumns(map[string]interface{}{
				"last_message_id":     message.ID,
				"last_message_body":   message.Content,
				"last_message_sender": message.SenderID,
				"last_message_at":     message.CreatedAt,
				"unread_a":            gorm.Expr("CASE WHEN participant_a = ? THEN unread_a ELSE unread_a + 1 END", message.SenderID),
				"unread_b":            gorm.Expr("CASE WHEN participant_b = ? THEN unread_b ELSE unread_b + 1 END", message.SenderID),
				"updated_at":          message.CreatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// ListByConversation returns the thread in ascending order. The id column
// breaks same-millisecond timestamp ties in insertion order, so
// back-to-back sends are never reordered.
func (r *messageRepository) ListByConversation(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}

	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	return messages, nil
}

// MarkDelivered promotes sent messages to delivered. The status filter
// keeps the transition monotonic: read messages are never demoted.
func (r *messageRepository) MarkDelivered(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id IN ? AND status = ?", ids, models.MessageStatusSent).
		Update("status", models.MessageStatusDelivered).Error
}

// MarkReadByRecipient promotes every message the reader received in the
// conversation to read. sent -> read without delivered is a legal jump.
func (r *messageRepository) MarkReadByRecipient(ctx context.Context, conversationID, readerID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND status <> ?", conversationID, readerID, models.MessageStatusRead).
		Update("status", models.MessageStatusRead).Error
}
