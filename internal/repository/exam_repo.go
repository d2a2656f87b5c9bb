package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/invigilo/invigilo-go-api/internal/models"
)

// ExamRepository defines data operations for exams and their questions.
type ExamRepository interface {
	GetByID(ctx context.Context, id uint) (models.Exam, error)
	GetWithQuestions(ctx context.Context, id uint) (models.Exam, error)
}

type examRepository struct {
	db *gorm.DB
}

// NewExamRepository instantiates the repository.
func NewExamRepository(db *gorm.DB) ExamRepository {
	return &examRepository{db: db}
}

func (r *examRepository) GetByID(ctx context.Context, id uint) (models.Exam, error) {
	var exam models.Exam
	if err := r.db.WithContext(ctx).First(&exam, id).Error; err != nil {
		return models.Exam{}, err
	}

	return exam, nil
}

func (r *examRepository) GetWithQuestions(ctx context.Context, id uint) (models.Exam, error) {
	var exam models.Exam
	if err := r.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("questions.sort_order ASC")
		}).
		First(&exam, id).Error; err != nil {
		return models.Exam{}, err
	}

	return exam, nil
}
