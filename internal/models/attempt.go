package models

import "time"

// ExamAttempt is one student's try at one exam. The attempt row is the unit
// of consistency: status transitions, the lock flag and the score are each
// written in a single atomic update.
type ExamAttempt struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	ExamID        uint   `gorm:"index:idx_attempt_exam_student;not null" json:"exam_id"`
	StudentID     uint   `gorm:"index:idx_attempt_exam_student;not null" json:"student_id"`
	AttemptNumber int    `gorm:"not null" json:"attempt_number"`
	Status        string `gorm:"size:32;not null;default:in_progress" json:"status"`

	StartedAt   time.Time  `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
	GradedAt    *time.Time `json:"graded_at"`
	TimeSpent   int        `gorm:"not null;default:0" json:"time_spent"`

	MaxScore   float64  `gorm:"not null" json:"max_score"`
	TotalScore *float64 `json:"total_score"`
	Percentage *float64 `json:"percentage"`
	Passed     *bool    `json:"passed"`

	SuspiciousActivityCount int        `gorm:"not null;default:0" json:"suspicious_activity_count"`
	IsLocked                bool       `gorm:"not null;default:false" json:"is_locked"`
	LockedAt                *time.Time `json:"locked_at"`
	LockedReason            string     `gorm:"size:255" json:"locked_reason"`
	UnlockedAt              *time.Time `json:"unlocked_at"`

	// Verification-session linkage is stored as typed columns rather than an
	// opaque blob so lifecycle invariants never depend on deserialization.
	VerificationSessionID *string  `gorm:"size:128" json:"verification_session_id"`
	VerificationScore     *float64 `json:"verification_score"`
	VerificationThreshold *float64 `json:"verification_threshold"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Exam    Exam    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"exam"`
	Student Student `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student"`
}

const (
	// AttemptStatusNotStarted is the conceptual initial state before start succeeds.
	AttemptStatusNotStarted = "not_started"
	// AttemptStatusInProgress marks an attempt accepting answers and monitor frames.
	AttemptStatusInProgress = "in_progress"
	// AttemptStatusSubmitted marks an attempt awaiting grading.
	AttemptStatusSubmitted = "submitted"
	// AttemptStatusFlagged marks an attempt submitted through the reviewer flag path.
	AttemptStatusFlagged = "flagged"
	// AttemptStatusGraded is the terminal state with a final score.
	AttemptStatusGraded = "graded"
)

// IsInProgress reports whether the attempt still accepts submissions and frames.
func (a ExamAttempt) IsInProgress() bool {
	return a.Status == AttemptStatusInProgress
}

// IsTerminal reports whether the attempt has reached its final state.
func (a ExamAttempt) IsTerminal() bool {
	return a.Status == AttemptStatusGraded
}

// HasVerificationSession reports whether a remote verification session is attached.
func (a ExamAttempt) HasVerificationSession() bool {
	return a.VerificationSessionID != nil && *a.VerificationSessionID != ""
}
