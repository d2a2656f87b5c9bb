package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/invigilo/invigilo-go-api/internal/models"
)

// AnswerRepository defines data operations for attempt answers.
type AnswerRepository interface {
	ListByAttempt(ctx context.Context, attemptID uint) ([]models.ExamAnswer, error)
	GetByID(ctx context.Context, id uint) (models.ExamAnswer, error)
	AwardPoints(ctx context.Context, id uint, isCorrect bool, points float64, gradedBy uint, at time.Time) (bool, error)
}

type answerRepository struct {
	db *gorm.DB
}

// NewAnswerRepository instantiates the repository.
func NewAnswerRepository(db *gorm.DB) AnswerRepository {
	return &answerRepository{db: db}
}

func (r *answerRepository) ListByAttempt(ctx context.Context, attemptID uint) ([]models.ExamAnswer, error) {
	var answers []models.ExamAnswer
	err := r.db.WithContext(ctx).Model(&models.ExamAnswer{}).
		Preload("Question").
		Where("attempt_id = ?", attemptID).
		Order("id ASC").
		Find(&answers).Error
	if err != nil {
		return nil, err
	}

	return answers, nil
}

func (r *answerRepository) GetByID(ctx context.Context, id uint) (models.ExamAnswer, error) {
	var answer models.ExamAnswer
	if err := r.db.WithContext(ctx).Preload("Question").First(&answer, id).Error; err != nil {
		return models.ExamAnswer{}, err
	}

	return answer, nil
}

// AwardPoints grades a manually reviewed answer at most once. The null guard
// mirrors the auto grader's write-once rule.
func (r *answerRepository) AwardPoints(ctx context.Context, id uint, isCorrect bool, points float64, gradedBy uint, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.ExamAnswer{}).
		Where("id = ?", id).
		Where("points_awarded IS NULL").
		Updates(map[string]interface{}{
			"is_correct":     isCorrect,
			"points_awarded": points,
			"graded_by":      gradedBy,
			"updated_at":     at,
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}
