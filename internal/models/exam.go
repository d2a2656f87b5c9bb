package models

import "time"

// Exam represents a scheduled assessment that students attempt under proctoring.
type Exam struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Title           string     `gorm:"size:255;not null" json:"title"`
	ClassID         *uint      `gorm:"index" json:"class_id"`
	Status          string     `gorm:"size:32;not null;default:draft" json:"status"`
	TotalMarks      float64    `gorm:"not null" json:"total_marks"`
	PassingPercent  *float64   `json:"passing_percent"`
	AttemptsAllowed int        `gorm:"not null;default:1" json:"attempts_allowed"`
	EnableRanking   bool       `gorm:"not null;default:false" json:"enable_ranking"`
	TeacherID       *uint      `gorm:"index" json:"teacher_id"`
	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Questions       []Question `json:"questions"`
}

const (
	// ExamStatusDraft marks an exam that is not yet visible to students.
	ExamStatusDraft = "draft"
	// ExamStatusPublished marks an exam that students may attempt.
	ExamStatusPublished = "published"
	// ExamStatusArchived marks an exam closed to new attempts.
	ExamStatusArchived = "archived"
)

// DefaultPassingPercent applies when an exam does not configure its own threshold.
const DefaultPassingPercent = 50.0

// PassingThreshold returns the configured passing percentage or the default.
func (e Exam) PassingThreshold() float64 {
	if e.PassingPercent != nil && *e.PassingPercent > 0 {
		return *e.PassingPercent
	}
	return DefaultPassingPercent
}

// IsOpen reports whether the exam accepts new attempts at the given instant.
func (e Exam) IsOpen(now time.Time) bool {
	if e.Status != ExamStatusPublished {
		return false
	}
	if e.StartTime != nil && now.Before(*e.StartTime) {
		return false
	}
	if e.EndTime != nil && now.After(*e.EndTime) {
		return false
	}
	return true
}
