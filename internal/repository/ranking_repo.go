package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/invigilo/invigilo-go-api/internal/models"
)

// RankingFilter narrows ranking board queries.
type RankingFilter struct {
	Scope    string
	District *string
	Zone     *string
}

// RankingRepository manages ranking rows. Recalculation is a full replace:
// delete plus insert inside one transaction, so concurrent readers see
// either the previous board or the new one, never a mix.
type RankingRepository interface {
	ReplaceForExam(ctx context.Context, examID uint, rows []models.ExamRanking) error
	ListByExam(ctx context.Context, examID uint, filter RankingFilter) ([]models.ExamRanking, error)
}

type rankingRepository struct {
	db *gorm.DB
}

// NewRankingRepository instantiates the repository.
func NewRankingRepository(db *gorm.DB) RankingRepository {
	return &rankingRepository{db: db}
}

func (r *rankingRepository) ReplaceForExam(ctx context.Context, examID uint, rows []models.ExamRanking) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("exam_id = ?", examID).Delete(&models.ExamRanking{}).Error; err != nil {
			return err
		}

		if len(rows) == 0 {
			return nil
		}

		return tx.Create(&rows).Error
	})
}

func (r *rankingRepository) ListByExam(ctx context.Context, examID uint, filter RankingFilter) ([]models.ExamRanking, error) {
	query := r.db.WithContext(ctx).Model(&models.ExamRanking{}).
		Where("exam_id = ?", examID)

	if filter.District != nil {
		query = query.Where("district = ?", *filter.District)
	}

	if filter.Zone != nil {
		query = query.Where("zone = ?", *filter.Zone)
	}

	switch filter.Scope {
	case models.RankScopeDistrict:
		query = query.Where("district_rank IS NOT NULL").Order("district_rank ASC")
	case models.RankScopeZone:
		query = query.Where("zone_rank IS NOT NULL").Order("zone_rank ASC")
	default:
		query = query.Order("global_rank ASC")
	}

	var rankings []models.ExamRanking
	if err := query.Find(&rankings).Error; err != nil {
		return nil, err
	}

	return rankings, nil
}
