package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProctoringIncident is an immutable audit record of a proctoring-relevant
// event during an attempt. Incidents are only ever appended, never updated
// or deleted; together they form the dispute trail for an attempt.
type ProctoringIncident struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	AttemptID   uint              `gorm:"index;not null" json:"attempt_id"`
	EventType   string            `gorm:"size:64;not null" json:"event_type"`
	Severity    string            `gorm:"size:16;not null" json:"severity"`
	Description string            `gorm:"type:text" json:"description"`
	EvidenceURL string            `gorm:"size:512" json:"evidence_url"`
	Metadata    datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	Timestamp   time.Time         `gorm:"index;not null" json:"timestamp"`
}

const (
	// IncidentIdentityMismatch means the monitored face stopped matching the reference.
	IncidentIdentityMismatch = "identity_mismatch"
	// IncidentFaceNotDetected means no face was visible in the frame.
	IncidentFaceNotDetected = "face_not_detected"
	// IncidentMultipleFaces means more than one face was visible.
	IncidentMultipleFaces = "multiple_faces"
	// IncidentSuspiciousActivity covers behavioral heuristics from the oracle.
	IncidentSuspiciousActivity = "suspicious_activity"
	// IncidentSessionUnlocked records a manual unlock by a reviewer.
	IncidentSessionUnlocked = "session_unlocked"
	// IncidentReviewerMessage records an ad hoc reviewer note to the student.
	IncidentReviewerMessage = "reviewer_message"
	// IncidentReviewerFlag records a reviewer flagging the attempt.
	IncidentReviewerFlag = "reviewer_flag"
)

const (
	// SeverityInfo marks informational audit entries.
	SeverityInfo = "info"
	// SeverityWarning marks soft signals that did not lock the attempt.
	SeverityWarning = "warning"
	// SeverityCritical marks events that locked the attempt or flagged it for review.
	SeverityCritical = "critical"
)
