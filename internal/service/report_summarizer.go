package service

import (
	"context"

	"github.com/invigilo/invigilo-go-api/internal/dto"
	"github.com/invigilo/invigilo-go-api/pkg/ai"
)

// NewAISummarizer adapts an AI summarizer to the proctoring report shape.
func NewAISummarizer(model ai.Summarizer) ReportSummarizer {
	return &aiReportSummarizer{model: model}
}

type aiReportSummarizer struct {
	model ai.Summarizer
}

func (s *aiReportSummarizer) Summarize(ctx context.Context, report dto.ProctoringReportResponse) (string, error) {
	input := ai.ReportInput{
		AttemptID:      report.Attempt.ID,
		SuspicionCount: report.Attempt.SuspiciousActivityCount,
		WasLocked:      report.WasLocked,
		LockedReason:   report.Attempt.LockedReason,
		SeverityCounts: report.SeverityCounts,
		TypeCounts:     report.TypeCounts,
	}

	for _, incident := range report.Incidents {
		input.Incidents = append(input.Incidents, ai.IncidentDigest{
			EventType:   incident.EventType,
			Severity:    incident.Severity,
			Description: incident.Description,
			At:          incident.Timestamp,
		})
	}

	return s.model.Summarize(ctx, input)
}
