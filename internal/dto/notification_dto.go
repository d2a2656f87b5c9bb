package dto

import (
	"time"

	"github.com/invigilo/invigilo-go-api/internal/models"
)

// NotificationCreateRequest is the fire-and-forget payload accepted by the
// notification sink.
type NotificationCreateRequest struct {
	UserID   string                 `json:"user_id" validate:"required"`
	Title    string                 `json:"title" validate:"required,min=1,max=255"`
	Message  string                 `json:"message" validate:"required,min=1"`
	Type     string                 `json:"type" validate:"required"`
	Priority string                 `json:"priority" validate:"omitempty,oneof=low medium high"`
	Metadata map[string]interface{} `json:"metadata"`
}

// NotificationResponse is the API view of a stored notification.
type NotificationResponse struct {
	ID        uint                   `json:"id"`
	UserID    string                 `json:"user_id"`
	Title     string                 `json:"title"`
	Type      string                 `json:"type"`
	Priority  string                 `json:"priority"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Read      bool                   `json:"read"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewNotificationResponse converts a notification model into its API view.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        model.ID,
		UserID:    model.UserID,
		Title:     model.Title,
		Type:      model.Type,
		Priority:  model.Priority,
		Message:   model.Message,
		Metadata:  model.Metadata,
		Read:      model.Read,
		CreatedAt: model.CreatedAt,
	}
}

// NewNotificationResponseSlice converts a batch of notifications.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	responses := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewNotificationResponse(item))
	}
	return responses
}

// IdentityRegisterRequest enrolls a student's reference face.
type IdentityRegisterRequest struct {
	StudentID uint `form:"student_id" validate:"required,gt=0"`
}

// IdentityRegisterResponse reports the stored reference.
type IdentityRegisterResponse struct {
	StudentID   uint      `json:"student_id"`
	ReferenceID string    `json:"reference_id"`
	VerifiedAt  time.Time `json:"verified_at"`
}
