package models

import "time"

// ExamAnswer records a student's response to one question within an attempt.
// IsCorrect and PointsAwarded stay null until the answer is graded; for
// objective question types the auto grader sets them exactly once.
type ExamAnswer struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	AttemptID     uint      `gorm:"index:idx_answer_attempt_question,unique;not null" json:"attempt_id"`
	QuestionID    uint      `gorm:"index:idx_answer_attempt_question,unique;not null" json:"question_id"`
	Answer        string    `gorm:"type:text" json:"answer"`
	IsCorrect     *bool     `json:"is_correct"`
	PointsAwarded *float64  `json:"points_awarded"`
	GradedBy      *uint     `json:"graded_by"`
	TimeSpent     int       `gorm:"not null;default:0" json:"time_spent"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Question Question `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"question"`
}

// IsGraded reports whether points have been awarded for this answer.
func (a ExamAnswer) IsGraded() bool {
	return a.PointsAwarded != nil
}
