package dto

import (
	"time"

	"github.com/invigilo/invigilo-go-api/internal/models"
)

// RankingEntryResponse is one row on a ranking board.
type RankingEntryResponse struct {
	StudentID  uint    `json:"student_id"`
	Score      float64 `json:"score"`
	Percentage float64 `json:"percentage"`
	District   *string `json:"district,omitempty"`
	Zone       *string `json:"zone,omitempty"`

	GlobalRank    int  `json:"global_rank"`
	GlobalTotal   int  `json:"global_total"`
	DistrictRank  *int `json:"district_rank,omitempty"`
	DistrictTotal *int `json:"district_total,omitempty"`
	ZoneRank      *int `json:"zone_rank,omitempty"`
	ZoneTotal     *int `json:"zone_total,omitempty"`
}

// RankingBoardResponse is the published board for one exam and scope.
type RankingBoardResponse struct {
	ExamID       uint                   `json:"exam_id"`
	Scope        string                 `json:"scope"`
	Entries      []RankingEntryResponse `json:"entries"`
	CalculatedAt time.Time              `json:"calculated_at"`
	CacheHit     bool                   `json:"cache_hit"`
}

// RankingFilterRequest narrows board queries.
type RankingFilterRequest struct {
	Scope    string  `query:"scope" validate:"omitempty,oneof=global district zone"`
	District *string `query:"district"`
	Zone     *string `query:"zone"`
}

// RecalculateResponse reports the size of a completed ranking pass.
type RecalculateResponse struct {
	ExamID      uint `json:"exam_id"`
	TotalRanked int  `json:"total_ranked"`
}

// NewRankingEntryResponse converts a ranking model into its API view.
func NewRankingEntryResponse(model models.ExamRanking) RankingEntryResponse {
	return RankingEntryResponse{
		StudentID:     model.StudentID,
		Score:         model.Score,
		Percentage:    model.Percentage,
		District:      model.District,
		Zone:          model.Zone,
		GlobalRank:    model.GlobalRank,
		GlobalTotal:   model.GlobalTotal,
		DistrictRank:  model.DistrictRank,
		DistrictTotal: model.DistrictTotal,
		ZoneRank:      model.ZoneRank,
		ZoneTotal:     model.ZoneTotal,
	}
}

// NewRankingEntryResponseSlice converts a batch of ranking rows.
func NewRankingEntryResponseSlice(items []models.ExamRanking) []RankingEntryResponse {
	responses := make([]RankingEntryResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewRankingEntryResponse(item))
	}
	return responses
}
