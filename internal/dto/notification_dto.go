package dto

import (
	"time"

	"github.com/wave-social/wave-api/internal/models"
)

// NotificationCreateRequest describes the payload to create a notification.
type NotificationCreateRequest struct {
	UserID    string            `json:"user_id" validate:"required,max=64"`
	Type      string            `json:"type" validate:"required,max=64"`
	Title     string            `json:"title" validate:"omitempty,max=255"`
	Message   string            `json:"message" validate:"required,min=1,max=2000"`
	Data      map[string]string `json:"data" validate:"omitempty"`
	DedupeKey string            `json:"dedupe_key" validate:"omitempty,max=160"`
}

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID        uint                   `json:"id"`
	UserID    string                 `json:"user_id"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title,omitempty"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Read      bool                   `json:"read"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// NewNotificationResponse converts a notification model to DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        model.ID,
		UserID:    model.UserID,
		Type:      model.Type,
		Title:     model.Title,
		Message:   model.Message,
		Data:      model.Data,
		Read:      model.Read,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}

// SocialEventRequest is a like or comment event handed to the dispatcher
// by the feed subsystem. Delivery to online recipients is best effort;
// the durable notification is the contract.
type SocialEventRequest struct {
	Kind        string            `json:"kind" validate:"required,oneof=like comment"`
	ActorID     string            `json:"actor_id" validate:"required,max=64"`
	RecipientID string            `json:"recipient_id" validate:"required,max=64"`
	TargetID    string            `json:"target_id" validate:"required,max=64"`
	Preview     string            `json:"preview" validate:"omitempty,max=2000"`
	Data        map[string]string `json:"data" validate:"omitempty"`
}
