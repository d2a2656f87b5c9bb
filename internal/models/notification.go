package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification represents a message targeted to a specific user, delivered
// fire-and-forget after grading and ranking events.
type Notification struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	UserID    string            `gorm:"size:64;index" json:"user_id"`
	Title     string            `gorm:"size:255" json:"title"`
	Type      string            `gorm:"size:64" json:"type"`
	Priority  string            `gorm:"size:16;default:medium" json:"priority"`
	Message   string            `gorm:"type:text" json:"message"`
	Metadata  datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	Read      bool              `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

const (
	// NotificationTypeExam groups exam lifecycle notifications.
	NotificationTypeExam = "exam"
)
