package dto

import (
	"time"

	"github.com/wave-social/wave-api/internal/models"
)

// ConversationCreateRequest starts (or returns) the thread with another user.
type ConversationCreateRequest struct {
	ParticipantID string `json:"participant_id" validate:"required,max=64"`
}

// MessageSendRequest is the payload posted into a conversation.
type MessageSendRequest struct {
	Content string `json:"content" validate:"required,min=1,max=4000"`
	Type    string `json:"type" validate:"omitempty,oneof=text image system"`
}

// ParticipantSummary carries the display metadata of the other participant.
type ParticipantSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// MessageSummary mirrors the conversation's denormalised last-message columns.
type MessageSummary struct {
	ID        uint      `json:"id"`
	Content   string    `json:"content"`
	SenderID  string    `json:"sender_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationResponse is the per-caller view of a conversation.
type ConversationResponse struct {
	ID               string             `json:"id"`
	OtherParticipant ParticipantSummary `json:"other_participant"`
	LastMessage      *MessageSummary    `json:"last_message"`
	UnreadCount      int                `json:"unread_count"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// NewConversationResponse converts a model into the caller's view.
func NewConversationResponse(conversation models.Conversation, viewerID string, other ParticipantSummary) ConversationResponse {
	response := ConversationResponse{
		ID:               conversation.ID,
		OtherParticipant: other,
		UnreadCount:      conversation.UnreadFor(viewerID),
		CreatedAt:        conversation.CreatedAt,
		UpdatedAt:        conversation.UpdatedAt,
	}

	if conversation.LastMessageID != nil && conversation.LastMessageAt != nil {
		response.LastMessage = &MessageSummary{
			ID:        *conversation.LastMessageID,
			Content:   conversation.LastMessageBody,
			SenderID:  conversation.LastMessageSender,
			Timestamp: *conversation.LastMessageAt,
		}
	}

	return response
}

// MessageResponse is the serialized representation of a message.
type MessageResponse struct {
	ID             uint      `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	IsMine         bool      `json:"is_mine"`
}

// NewMessageResponse converts a model into a DTO from the viewer's perspective.
func NewMessageResponse(message models.Message, viewerID string) MessageResponse {
	return MessageResponse{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		Content:        message.Content,
		Type:           message.Type,
		Status:         message.Status,
		CreatedAt:      message.CreatedAt,
		IsMine:         message.SenderID == viewerID,
	}
}

// NewMessageResponseSlice converts a slice of models into DTOs.
func NewMessageResponseSlice(messages []models.Message, viewerID string) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewMessageResponse(message, viewerID))
	}
	return out
}
