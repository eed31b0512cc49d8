package models

import "time"

// Message delivery states. Transitions only move forward: sent may become
// delivered or read, delivered may become read, read is terminal.
const (
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
)

// Message is one entry in a conversation's append-only log. Rows are
// immutable after insert except for the status column. The thread index
// pairs conversation id with created_at; the auto-increment id breaks
// same-millisecond ties in insertion order.
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID string    `gorm:"size:36;not null;index:idx_message_thread,priority:1" json:"conversation_id"`
	SenderID       string    `gorm:"size:64;index" json:"sender_id"`
	Content        string    `gorm:"type:text" json:"content"`
	Type           string    `gorm:"size:32;default:text" json:"type"`
	Status         string    `gorm:"size:16;default:sent" json:"status"`
	CreatedAt      time.Time `gorm:"index:idx_message_thread,priority:2" json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// statusRank orders the delivery states for monotonic transitions.
func statusRank(status string) int {
	switch status {
	case MessageStatusSent:
		return 0
	case MessageStatusDelivered:
		return 1
	case MessageStatusRead:
		return 2
	default:
		return -1
	}
}

// StatusAdvances reports whether moving from the current status to the
// proposed one is a forward transition.
func StatusAdvances(current, next string) bool {
	return statusRank(next) > statusRank(current)
}
