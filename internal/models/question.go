package models

import (
	"time"

	"gorm.io/datatypes"
)

// Question is one item in an exam paper.
type Question struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	ExamID        uint           `gorm:"index;not null" json:"exam_id"`
	Type          string         `gorm:"size:32;not null" json:"type"`
	Prompt        string         `gorm:"type:text;not null" json:"prompt"`
	Options       datatypes.JSON `gorm:"type:json" json:"options"`
	CorrectAnswer string         `gorm:"size:512" json:"-"`
	Points        float64        `gorm:"not null;default:1" json:"points"`
	Order         int            `gorm:"column:sort_order;not null;default:0" json:"order"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

const (
	// QuestionTypeMultipleChoice is an objective single-answer question.
	QuestionTypeMultipleChoice = "multiple_choice"
	// QuestionTypeTrueFalse is an objective boolean question.
	QuestionTypeTrueFalse = "true_false"
	// QuestionTypeShortAnswer requires a human grader.
	QuestionTypeShortAnswer = "short_answer"
	// QuestionTypeEssay requires a human grader.
	QuestionTypeEssay = "essay"
)

// AutoGradable reports whether correctness is decided by exact answer match.
func (q Question) AutoGradable() bool {
	return q.Type == QuestionTypeMultipleChoice || q.Type == QuestionTypeTrueFalse
}
