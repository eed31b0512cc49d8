package models

import "time"

// User carries the display metadata resolved into conversation and
// notification payloads. Rows are owned by the identity service; this
// API only ever reads them.
type User struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Name      string    `gorm:"size:255" json:"name"`
	Avatar    string    `gorm:"size:512" json:"avatar"`
	Bio       string    `gorm:"type:text" json:"bio"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
