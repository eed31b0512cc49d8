package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is a durable record of an event the user has not yet seen.
// DedupeKey is unique so a retried triggering event lands on the existing
// row instead of producing a duplicate. Read flips false to true exactly
// once and never reverts.
type Notification struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    string            `gorm:"size:64;index:idx_notification_user" json:"user_id"`
	Type      string            `gorm:"size:64" json:"type"`
	Title     string            `gorm:"size:255" json:"title"`
	Message   string            `gorm:"type:text" json:"message"`
	Data      datatypes.JSONMap `gorm:"type:json" json:"data"`
	DedupeKey string            `gorm:"size:160;uniqueIndex" json:"-"`
	Read      bool              `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time         `gorm:"index:idx_notification_user" json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
