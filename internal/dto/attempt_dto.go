package dto

import (
	"time"

	"github.com/invigilo/invigilo-go-api/internal/models"
)

// StartAttemptRequest carries the multipart payload that begins an attempt.
// The verification frame itself travels as an uploaded file.
type StartAttemptRequest struct {
	ExamID    uint `form:"exam_id" validate:"required,gt=0"`
	StudentID uint `form:"student_id" validate:"required,gt=0"`
}

// StartAttemptResponse returns the created attempt and its verification session.
type StartAttemptResponse struct {
	AttemptID             uint    `json:"attempt_id"`
	AttemptNumber         int     `json:"attempt_number"`
	Status                string  `json:"status"`
	VerificationSessionID string  `json:"verification_session_id"`
	Similarity            float64 `json:"similarity"`
	Threshold             float64 `json:"threshold"`
}

// AnswerSubmission is one answered question inside a submit payload.
type AnswerSubmission struct {
	QuestionID uint   `json:"question_id" validate:"required,gt=0"`
	Answer     string `json:"answer"`
	TimeSpent  int    `json:"time_spent" validate:"gte=0"`
}

// SubmitAttemptRequest finalizes an in-progress attempt.
type SubmitAttemptRequest struct {
	StudentID uint               `json:"student_id" validate:"required,gt=0"`
	Answers   []AnswerSubmission `json:"answers" validate:"dive"`
	TimeSpent int                `json:"time_spent" validate:"gte=0"`
}

// LockAttemptRequest carries the reviewer-supplied lock reason.
type LockAttemptRequest struct {
	Reason string `json:"reason" validate:"required,min=3"`
}

// AttemptResponse is the API view of an exam attempt.
type AttemptResponse struct {
	ID                      uint       `json:"id"`
	ExamID                  uint       `json:"exam_id"`
	StudentID               uint       `json:"student_id"`
	AttemptNumber           int        `json:"attempt_number"`
	Status                  string     `json:"status"`
	StartedAt               time.Time  `json:"started_at"`
	SubmittedAt             *time.Time `json:"submitted_at"`
	GradedAt                *time.Time `json:"graded_at"`
	MaxScore                float64    `json:"max_score"`
	TotalScore              *float64   `json:"total_score"`
	Percentage              *float64   `json:"percentage"`
	Passed                  *bool      `json:"passed"`
	SuspiciousActivityCount int        `json:"suspicious_activity_count"`
	IsLocked                bool       `json:"is_locked"`
	LockedReason            string     `json:"locked_reason,omitempty"`
	UnlockedAt              *time.Time `json:"unlocked_at"`
}

// NewAttemptResponse converts an attempt model into its API view.
func NewAttemptResponse(model models.ExamAttempt) AttemptResponse {
	return AttemptResponse{
		ID:                      model.ID,
		ExamID:                  model.ExamID,
		StudentID:               model.StudentID,
		AttemptNumber:           model.AttemptNumber,
		Status:                  model.Status,
		StartedAt:               model.StartedAt,
		SubmittedAt:             model.SubmittedAt,
		GradedAt:                model.GradedAt,
		MaxScore:                model.MaxScore,
		TotalScore:              model.TotalScore,
		Percentage:              model.Percentage,
		Passed:                  model.Passed,
		SuspiciousActivityCount: model.SuspiciousActivityCount,
		IsLocked:                model.IsLocked,
		LockedReason:            model.LockedReason,
		UnlockedAt:              model.UnlockedAt,
	}
}
