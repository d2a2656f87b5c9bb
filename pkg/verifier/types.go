package verifier

import "context"

// Frame is one captured image handed to the verification oracle.
type Frame struct {
	Name    string
	Content []byte
}

// IdentityMetadata accompanies a reference-face registration.
type IdentityMetadata struct {
	Name       string
	Email      string
	RollNumber string
}

// Registration is the oracle's record of an enrolled reference face.
type Registration struct {
	ReferenceID string    `json:"reference_id"`
	BoundingBox []float64 `json:"bbox"`
	Similarity  *float64  `json:"similarity,omitempty"`
}

// Session is a monitored verification session for one exam attempt.
type Session struct {
	SessionID  string  `json:"session_id"`
	Similarity float64 `json:"similarity"`
	Threshold  float64 `json:"threshold"`
}

// CheckResult is the outcome of one verification tick.
type CheckResult struct {
	Issues     []string `json:"issues"`
	ShouldLock bool     `json:"should_lock"`
	Reason     string   `json:"reason,omitempty"`
}

// Verifier is the narrow contract to the external identity-verification
// oracle. The vision model behind it is opaque; callers only see issues and
// lock decisions. All calls cross a network boundary and are bounded by the
// client timeout.
type Verifier interface {
	RegisterIdentity(ctx context.Context, subjectID string, frame Frame, meta IdentityMetadata) (Registration, error)
	StartSession(ctx context.Context, referenceID, examCode string, frame Frame) (Session, error)
	Check(ctx context.Context, sessionID string, frame Frame) (CheckResult, error)
	EndSession(ctx context.Context, sessionID string) error
	UnlockSession(ctx context.Context, sessionID string) error
}
