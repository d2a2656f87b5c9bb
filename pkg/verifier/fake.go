package verifier

import (
	"context"
	"fmt"
	"sync"
)

// Static is a deterministic in-memory Verifier for tests and local
// development. It never touches the network; behavior is scripted through
// its public fields.
type Static struct {
	mu sync.Mutex

	// Similarity and Threshold are returned by StartSession. A start fails
	// when Similarity < Threshold, matching the real oracle.
	Similarity float64
	Threshold  float64

	// Results are returned by successive Check calls; the last entry
	// repeats once the script is exhausted.
	Results []CheckResult

	// Err, when set, is returned by every call to simulate outages.
	Err error

	checkCalls int
	sessions   int
	Ended      []string
	Unlocked   []string
}

// NewStatic returns a fake that always passes verification with the given
// similarity and threshold.
func NewStatic(similarity, threshold float64) *Static {
	return &Static{Similarity: similarity, Threshold: threshold}
}

// RegisterIdentity records the subject and returns a synthetic reference id.
func (s *Static) RegisterIdentity(_ context.Context, subjectID string, _ Frame, _ IdentityMetadata) (Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return Registration{}, s.Err
	}

	return Registration{
		ReferenceID: "ref-" + subjectID,
		BoundingBox: []float64{0, 0, 100, 100},
	}, nil
}

// StartSession issues a synthetic session id, failing below the threshold.
func (s *Static) StartSession(_ context.Context, referenceID, _ string, _ Frame) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return Session{}, s.Err
	}

	if s.Similarity < s.Threshold {
		return Session{}, &APIError{StatusCode: 403, Detail: "similarity below threshold"}
	}

	s.sessions++
	return Session{
		SessionID:  fmt.Sprintf("session-%s-%d", referenceID, s.sessions),
		Similarity: s.Similarity,
		Threshold:  s.Threshold,
	}, nil
}

// Check walks the scripted results.
func (s *Static) Check(_ context.Context, _ string, _ Frame) (CheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return CheckResult{}, s.Err
	}

	if len(s.Results) == 0 {
		return CheckResult{Issues: []string{}}, nil
	}

	index := s.checkCalls
	if index >= len(s.Results) {
		index = len(s.Results) - 1
	}
	s.checkCalls++

	result := s.Results[index]
	if result.Issues == nil {
		result.Issues = []string{}
	}
	return result, nil
}

// EndSession records the ended session id.
func (s *Static) EndSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}

	s.Ended = append(s.Ended, sessionID)
	return nil
}

// UnlockSession records the unlocked session id.
func (s *Static) UnlockSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}

	s.Unlocked = append(s.Unlocked, sessionID)
	return nil
}

// CheckCalls reports how many verification ticks were served.
func (s *Static) CheckCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkCalls
}
