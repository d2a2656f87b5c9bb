package dto

import (
	"time"

	"github.com/invigilo/invigilo-go-api/internal/models"
)

// GradeSummary is the result of a scoring pass over an attempt's answers.
type GradeSummary struct {
	AttemptID     uint    `json:"attempt_id"`
	TotalScore    float64 `json:"total_score"`
	MaxScore      float64 `json:"max_score"`
	Percentage    float64 `json:"percentage"`
	Passed        bool    `json:"passed"`
	GradedAnswers int     `json:"graded_answers"`
	PendingManual int     `json:"pending_manual"`
	Status        string  `json:"status"`
}

// ManualGradeRequest awards points for one free-text answer.
type ManualGradeRequest struct {
	Points    float64 `json:"points" validate:"gte=0"`
	IsCorrect bool    `json:"is_correct"`
}

// AnswerResponse is the API view of a graded or pending answer.
type AnswerResponse struct {
	ID            uint      `json:"id"`
	QuestionID    uint      `json:"question_id"`
	QuestionType  string    `json:"question_type"`
	Answer        string    `json:"answer"`
	IsCorrect     *bool     `json:"is_correct"`
	PointsAwarded *float64  `json:"points_awarded"`
	TimeSpent     int       `json:"time_spent"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewAnswerResponse converts an answer model into its API view.
func NewAnswerResponse(model models.ExamAnswer) AnswerResponse {
	return AnswerResponse{
		ID:            model.ID,
		QuestionID:    model.QuestionID,
		QuestionType:  model.Question.Type,
		Answer:        model.Answer,
		IsCorrect:     model.IsCorrect,
		PointsAwarded: model.PointsAwarded,
		TimeSpent:     model.TimeSpent,
		CreatedAt:     model.CreatedAt,
	}
}

// NewAnswerResponseSlice converts a batch of answers.
func NewAnswerResponseSlice(items []models.ExamAnswer) []AnswerResponse {
	responses := make([]AnswerResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewAnswerResponse(item))
	}
	return responses
}
