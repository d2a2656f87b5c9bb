package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/invigilo/invigilo-go-api/internal/models"
)

// IncidentRepository is the append-only store for proctoring incidents.
// There are deliberately no update or delete operations.
type IncidentRepository interface {
	Append(ctx context.Context, incident *models.ProctoringIncident) error
	ListByAttempt(ctx context.Context, attemptID uint, limit int) ([]models.ProctoringIncident, error)
	CountByAttempt(ctx context.Context, attemptID uint) (int64, error)
}

type incidentRepository struct {
	db *gorm.DB
}

// NewIncidentRepository instantiates the repository.
func NewIncidentRepository(db *gorm.DB) IncidentRepository {
	return &incidentRepository{db: db}
}

func (r *incidentRepository) Append(ctx context.Context, incident *models.ProctoringIncident) error {
	return r.db.WithContext(ctx).Create(incident).Error
}

func (r *incidentRepository) ListByAttempt(ctx context.Context, attemptID uint, limit int) ([]models.ProctoringIncident, error) {
	query := r.db.WithContext(ctx).Model(&models.ProctoringIncident{}).
		Where("attempt_id = ?", attemptID).
		Order("timestamp DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	var incidents []models.ProctoringIncident
	if err := query.Find(&incidents).Error; err != nil {
		return nil, err
	}

	return incidents, nil
}

func (r *incidentRepository) CountByAttempt(ctx context.Context, attemptID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ProctoringIncident{}).
		Where("attempt_id = ?", attemptID).
		Count(&count).Error

	return count, err
}
