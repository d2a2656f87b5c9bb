package models

import "time"

// ExamRanking stores one student's rank for one exam across the supported
// scopes. Rows for an exam are replaced wholesale on every recalculation so
// readers never observe partially updated boards.
type ExamRanking struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	ExamID     uint    `gorm:"index:idx_ranking_exam_student,unique;not null" json:"exam_id"`
	StudentID  uint    `gorm:"index:idx_ranking_exam_student,unique;not null" json:"student_id"`
	Score      float64 `gorm:"not null" json:"score"`
	Percentage float64 `gorm:"not null" json:"percentage"`

	District *string `gorm:"size:64;index" json:"district"`
	Zone     *string `gorm:"size:64;index" json:"zone"`

	GlobalRank    int  `gorm:"not null" json:"global_rank"`
	GlobalTotal   int  `gorm:"not null" json:"global_total"`
	DistrictRank  *int `json:"district_rank"`
	DistrictTotal *int `json:"district_total"`
	ZoneRank      *int `json:"zone_rank"`
	ZoneTotal     *int `json:"zone_total"`

	CalculatedAt time.Time `gorm:"not null" json:"calculated_at"`
}

const (
	// RankScopeGlobal ranks every graded attempt for the exam.
	RankScopeGlobal = "global"
	// RankScopeDistrict ranks attempts sharing the student's district.
	RankScopeDistrict = "district"
	// RankScopeZone ranks attempts sharing the student's zone.
	RankScopeZone = "zone"
)
