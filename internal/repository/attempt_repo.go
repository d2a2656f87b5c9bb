package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/invigilo/invigilo-go-api/internal/models"
)

// AnswerGrade carries the grading outcome for a single answer.
type AnswerGrade struct {
	AnswerID      uint
	IsCorrect     bool
	PointsAwarded float64
}

// GradeResult is the atomic payload applied when an attempt transitions to graded.
type GradeResult struct {
	Answers    []AnswerGrade
	TotalScore float64
	Percentage float64
	Passed     bool
	GradedAt   time.Time
}

// AttemptRepository defines data operations for exam attempts. Multi-row
// writes (submit, grade) run inside a single transaction so the attempt can
// never be observed half-transitioned.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.ExamAttempt) error
	Delete(ctx context.Context, id uint) error
	GetByID(ctx context.Context, id uint) (models.ExamAttempt, error)
	CountByExamAndStudent(ctx context.Context, examID, studentID uint) (int64, error)
	UpdateColumns(ctx context.Context, id uint, fields map[string]interface{}) error
	Lock(ctx context.Context, id uint, reason string, at time.Time, suspicionDelta int) (bool, error)
	IncrementSuspicion(ctx context.Context, id uint, delta int) error
	SubmitWithAnswers(ctx context.Context, id uint, status string, submittedAt time.Time, timeSpent int, answers []models.ExamAnswer) (bool, error)
	Grade(ctx context.Context, id uint, result GradeResult) (bool, error)
	ListGradedByExam(ctx context.Context, examID uint) ([]models.ExamAttempt, error)
}

type attemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository instantiates the repository.
func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) Create(ctx context.Context, attempt *models.ExamAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *attemptRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.ExamAttempt{}, id).Error
}

func (r *attemptRepository) GetByID(ctx context.Context, id uint) (models.ExamAttempt, error) {
	var attempt models.ExamAttempt
	if err := r.db.WithContext(ctx).
		Preload("Exam").
		Preload("Student").
		First(&attempt, id).Error; err != nil {
		return models.ExamAttempt{}, err
	}

	return attempt, nil
}

func (r *attemptRepository) CountByExamAndStudent(ctx context.Context, examID, studentID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ExamAttempt{}).
		Where("exam_id = ?", examID).
		Where("student_id = ?", studentID).
		Count(&count).Error

	return count, err
}

func (r *attemptRepository) UpdateColumns(ctx context.Context, id uint, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.ExamAttempt{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// Lock flips the lock flag exactly once. The conditional update makes the
// operation idempotent under retried or overlapping monitor calls: only the
// call that actually acquires the lock sees acquired=true.
func (r *attemptRepository) Lock(ctx context.Context, id uint, reason string, at time.Time, suspicionDelta int) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.ExamAttempt{}).
		Where("id = ?", id).
		Where("is_locked = ?", false).
		Where("status = ?", models.AttemptStatusInProgress).
		Updates(map[string]interface{}{
			"is_locked":                 true,
			"locked_at":                 at,
			"locked_reason":             reason,
			"suspicious_activity_count": gorm.Expr("suspicious_activity_count + ?", suspicionDelta),
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *attemptRepository) IncrementSuspicion(ctx context.Context, id uint, delta int) error {
	return r.db.WithContext(ctx).Model(&models.ExamAttempt{}).
		Where("id = ?", id).
		UpdateColumn("suspicious_activity_count", gorm.Expr("suspicious_activity_count + ?", delta)).Error
}

// SubmitWithAnswers records the submitted answers and moves the attempt out
// of in_progress in one transaction. Returns false when the attempt was not
// in progress, which also shields against duplicate submits.
func (r *attemptRepository) SubmitWithAnswers(ctx context.Context, id uint, status string, submittedAt time.Time, timeSpent int, answers []models.ExamAnswer) (bool, error) {
	submitted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ExamAttempt{}).
			Where("id = ?", id).
			Where("status = ?", models.AttemptStatusInProgress).
			Updates(map[string]interface{}{
				"status":       status,
				"submitted_at": submittedAt,
				"time_spent":   timeSpent,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		if len(answers) > 0 {
			if err := tx.Create(&answers).Error; err != nil {
				return err
			}
		}

		submitted = true
		return nil
	})

	return submitted, err
}

// Grade applies per-answer outcomes and the attempt totals atomically. The
// per-answer guard (points_awarded IS NULL) keeps auto-graded answers from
// ever being rewritten; the attempt guard keeps total_score a write-once
// field tied to the graded transition.
func (r *attemptRepository) Grade(ctx context.Context, id uint, result GradeResult) (bool, error) {
	graded := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, answer := range result.Answers {
			update := tx.Model(&models.ExamAnswer{}).
				Where("id = ?", answer.AnswerID).
				Where("attempt_id = ?", id).
				Where("points_awarded IS NULL").
				Updates(map[string]interface{}{
					"is_correct":     answer.IsCorrect,
					"points_awarded": answer.PointsAwarded,
				})
			if update.Error != nil {
				return update.Error
			}
		}

		outcome := tx.Model(&models.ExamAttempt{}).
			Where("id = ?", id).
			Where("status <> ?", models.AttemptStatusGraded).
			Updates(map[string]interface{}{
				"total_score": result.TotalScore,
				"percentage":  result.Percentage,
				"passed":      result.Passed,
				"status":      models.AttemptStatusGraded,
				"graded_at":   result.GradedAt,
			})
		if outcome.Error != nil {
			return outcome.Error
		}

		graded = outcome.RowsAffected > 0
		return nil
	})

	return graded, err
}

func (r *attemptRepository) ListGradedByExam(ctx context.Context, examID uint) ([]models.ExamAttempt, error) {
	var attempts []models.ExamAttempt
	err := r.db.WithContext(ctx).Model(&models.ExamAttempt{}).
		Preload("Student").
		Where("exam_id = ?", examID).
		Where("status = ?", models.AttemptStatusGraded).
		Order("total_score DESC").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}

	return attempts, nil
}
