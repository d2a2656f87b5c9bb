package dto

import (
	"time"

	"github.com/invigilo/invigilo-go-api/internal/models"
)

// MonitorResponse is the outcome of one proctoring tick. A failed gateway
// call yields Success=false with zero issues; the exam flow continues.
type MonitorResponse struct {
	Success        bool     `json:"success"`
	Issues         []string `json:"issues"`
	IncidentsCount int      `json:"incidents_count"`
	SessionLocked  bool     `json:"session_locked"`
	Message        string   `json:"message,omitempty"`
}

// IncidentResponse is the API view of a proctoring incident.
type IncidentResponse struct {
	ID          uint                   `json:"id"`
	AttemptID   uint                   `json:"attempt_id"`
	EventType   string                 `json:"event_type"`
	Severity    string                 `json:"severity"`
	Description string                 `json:"description"`
	EvidenceURL string                 `json:"evidence_url,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// NewIncidentResponse converts an incident model into its API view.
func NewIncidentResponse(model models.ProctoringIncident) IncidentResponse {
	return IncidentResponse{
		ID:          model.ID,
		AttemptID:   model.AttemptID,
		EventType:   model.EventType,
		Severity:    model.Severity,
		Description: model.Description,
		EvidenceURL: model.EvidenceURL,
		Metadata:    model.Metadata,
		Timestamp:   model.Timestamp,
	}
}

// NewIncidentResponseSlice converts a batch of incidents.
func NewIncidentResponseSlice(items []models.ProctoringIncident) []IncidentResponse {
	responses := make([]IncidentResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewIncidentResponse(item))
	}
	return responses
}

// ProctoringReportResponse summarizes an attempt's proctoring history for reviewers.
type ProctoringReportResponse struct {
	Attempt        AttemptResponse    `json:"attempt"`
	TotalIncidents int64              `json:"total_incidents"`
	SeverityCounts map[string]int     `json:"severity_counts"`
	TypeCounts     map[string]int     `json:"type_counts"`
	WasLocked      bool               `json:"was_locked"`
	Incidents      []IncidentResponse `json:"incidents"`
	Summary        string             `json:"summary,omitempty"`
}

// ReviewerMessageRequest is an ad hoc note from a reviewer to the student,
// recorded on the incident log.
type ReviewerMessageRequest struct {
	Message string `json:"message" validate:"required,min=1,max=2000"`
}

// FlagAttemptRequest marks an attempt for manual review.
type FlagAttemptRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=512"`
}
