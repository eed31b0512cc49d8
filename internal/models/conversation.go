package models

import (
	"time"
)

// Conversation is a durable 1:1 thread between two users. The participant
// pair is stored in lexicographic order so the unordered pair maps to a
// single row; the composite unique index is what enforces find-or-create
// idempotence, not the generated id.
type Conversation struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	ParticipantA      string     `gorm:"size:64;not null;uniqueIndex:idx_conversation_pair,priority:1" json:"participant_a"`
	ParticipantB      string     `gorm:"size:64;not null;uniqueIndex:idx_conversation_pair,priority:2" json:"participant_b"`
	LastMessageID     *uint      `json:"last_message_id"`
	LastMessageBody   string     `gorm:"type:text" json:"last_message_body"`
	LastMessageSender string     `gorm:"size:64" json:"last_message_sender"`
	LastMessageAt     *time.Time `json:"last_message_at"`
	UnreadA           int        `gorm:"not null;default:0" json:"unread_a"`
	UnreadB           int        `gorm:"not null;default:0" json:"unread_b"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `gorm:"index" json:"updated_at"`
}

// NormalizePair returns the participant pair in storage order.
func NormalizePair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// HasParticipant reports whether the user belongs to the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.ParticipantA == userID || c.ParticipantB == userID)
}

// OtherParticipant returns the participant that is not the given user.
func (c Conversation) OtherParticipant(userID string) string {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// UnreadFor returns the unread counter belonging to the given participant.
func (c Conversation) UnreadFor(userID string) int {
	if c.ParticipantA == userID {
		return c.UnreadA
	}
	if c.ParticipantB == userID {
		return c.UnreadB
	}
	return 0
}
