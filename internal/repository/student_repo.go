package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/invigilo/invigilo-go-api/internal/models"
)

// StudentRepository defines data operations for students and enrollments.
type StudentRepository interface {
	GetByID(ctx context.Context, id uint) (models.Student, error)
	Update(ctx context.Context, student *models.Student) error
	IsEnrolled(ctx context.Context, classID, studentID uint) (bool, error)
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository instantiates the repository.
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) GetByID(ctx context.Context, id uint) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).First(&student, id).Error; err != nil {
		return models.Student{}, err
	}

	return student, nil
}

func (r *studentRepository) Update(ctx context.Context, student *models.Student) error {
	return r.db.WithContext(ctx).Save(student).Error
}

func (r *studentRepository) IsEnrolled(ctx context.Context, classID, studentID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("class_id = ?", classID).
		Where("student_id = ?", studentID).
		Where("status = ?", models.EnrollmentStatusActive).
		Count(&count).Error
	if err != nil {
		return false, err
	}

	return count > 0, nil
}
