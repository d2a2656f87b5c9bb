package ai

import (
	"context"
	"time"
)

// IncidentDigest is one incident condensed for the summarizer prompt.
type IncidentDigest struct {
	EventType   string
	Severity    string
	Description string
	At          time.Time
}

// ReportInput contains the artefacts needed to summarize an attempt's
// proctoring history.
type ReportInput struct {
	AttemptID      uint
	SuspicionCount int
	WasLocked      bool
	LockedReason   string
	SeverityCounts map[string]int
	TypeCounts     map[string]int
	Incidents      []IncidentDigest
}

// Summarizer describes an AI model capable of condensing an incident trail
// into a short reviewer-facing summary.
type Summarizer interface {
	Summarize(ctx context.Context, input ReportInput) (string, error)
}
