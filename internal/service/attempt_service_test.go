package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/invigilo/invigilo-go-api/internal/dto"
	"github.com/invigilo/invigilo-go-api/internal/models"
	"github.com/invigilo/invigilo-go-api/internal/repository"
	"github.com/invigilo/invigilo-go-api/pkg/verifier"
)

func publishedExam(id uint) models.Exam {
	return models.Exam{
		ID:              id,
		Title:           "Midterm",
		Status:          models.ExamStatusPublished,
		AttemptsAllowed: 3,
		Questions: []models.Question{
			{ID: 1, ExamID: id, Type: models.QuestionTypeMultipleChoice, CorrectAnswer: "B", Points: 5},
			{ID: 2, ExamID: id, Type: models.QuestionTypeTrueFalse, CorrectAnswer: "true", Points: 5},
		},
	}
}

func registeredStudent(id uint) models.Student {
	return models.Student{
		ID:              id,
		Name:            "Priya",
		Email:           "priya@example.com",
		FaceReferenceID: ptr(fmt.Sprintf("ref-student-%d", id)),
	}
}

func newAttemptFixture(oracle verifier.Verifier) (*attemptService, *fakeAttemptRepo, *fakeIncidentRepo) {
	attempts := newFakeAttemptRepo()
	incidents := &fakeIncidentRepo{}
	exams := &fakeExamRepo{exams: map[uint]models.Exam{1: publishedExam(1)}}
	students := &fakeStudentRepo{students: map[uint]models.Student{7: registeredStudent(7)}, enrolled: true}

	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewAttemptService(attempts, exams, students, incidents, oracle, nil, validate, testLogger()).(*attemptService)
	return svc, attempts, incidents
}

func TestAttemptStartOpensVerificationSession(t *testing.T) {
	oracle := verifier.NewStatic(0.92, 0.75)
	svc, attempts, _ := newAttemptFixture(oracle)

	resp, err := svc.Start(context.Background(), dto.StartAttemptRequest{ExamID: 1, StudentID: 7}, verifier.Frame{Name: "f.jpg", Content: []byte("img")})
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusInProgress, resp.Status)
	require.Equal(t, 1, resp.AttemptNumber)
	require.NotEmpty(t, resp.VerificationSessionID)
	require.Equal(t, 0.92, resp.Similarity)

	stored, err := attempts.GetByID(context.Background(), resp.AttemptID)
	require.NoError(t, err)
	require.Equal(t, 10.0, stored.MaxScore)
	require.True(t, stored.HasVerificationSession())
}

func TestAttemptStartRejectsFourthAttempt(t *testing.T) {
	oracle := verifier.NewStatic(0.92, 0.75)
	svc, _, _ := newAttemptFixture(oracle)

	for i := 0; i < 3; i++ {
		_, err := svc.Start(context.Background(), dto.StartAttemptRequest{ExamID: 1, StudentID: 7}, verifier.Frame{Name: "f.jpg", Content: []byte("img")})
		require.NoError(t, err)
	}

	_, err := svc.Start(context.Background(), dto.StartAttemptRequest{ExamID: 1, StudentID: 7}, verifier.Frame{Name: "f.jpg", Content: []byte("img")})
	require.ErrorIs(t, err, ErrMaxAttemptsExceeded)
}

func TestAttemptStartRollsBackOnVerificationFailure(t *testing.T) {
	oracle := verifier.NewStatic(0.40, 0.75)
	svc, attempts, _ := newAttemptFixture(oracle)

	_, err := svc.Start(context.Background(), dto.StartAttemptRequest{ExamID: 1, StudentID: 7}, verifier.Frame{Name: "f.jpg", Content: []byte("img")})
	require.ErrorIs(t, err, ErrVerificationFailed)

	// No orphan attempt survives, so the next attempt is number one again.
	count, err := attempts.CountByExamAndStudent(context.Background(), 1, 7)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestAttemptStartRequiresRegisteredIdentity(t *testing.T) {
	oracle := verifier.NewStatic(0.92, 0.75)
	svc, _, _ := newAttemptFixture(oracle)
	svc.students = &fakeStudentRepo{students: map[uint]models.Student{7: {ID: 7, Name: "Priya", Email: "priya@example.com"}}, enrolled: true}

	_, err := svc.Start(context.Background(), dto.StartAttemptRequest{ExamID: 1, StudentID: 7}, verifier.Frame{Name: "f.jpg", Content: []byte("img")})
	require.ErrorIs(t, err, ErrIdentityNotRegistered)
}

func TestAttemptStartRejectsClosedExam(t *testing.T) {
	oracle := verifier.NewStatic(0.92, 0.75)
	svc, _, _ := newAttemptFixture(oracle)

	closed := publishedExam(1)
	closed.Status = models.ExamStatusArchived
	svc.exams = &fakeExamRepo{exams: map[uint]models.Exam{1: closed}}

	_, err := svc.Start(context.Background(), dto.StartAttemptRequest{ExamID: 1, StudentID: 7}, verifier.Frame{Name: "f.jpg", Content: []byte("img")})
	require.ErrorIs(t, err, ErrExamClosed)
}

func TestAttemptSubmitTransitionsToSubmitted(t *testing.T) {
	oracle := verifier.NewStatic(0.92, 0.75)
	svc, attempts, _ := newAttemptFixture(oracle)

	started, err := svc.Start(context.Background(), dto.StartAttemptRequest{ExamID: 1, StudentID: 7}, verifier.Frame{Name: "f.jpg", Content: []byte("img")})
	require.NoError(t, err)

	resp, err := svc.Submit(context.Background(), started.AttemptID, dto.SubmitAttemptRequest{
		StudentID: 7,
		Answers: []dto.AnswerSubmission{
			{QuestionID: 1, Answer: "B"},
			{QuestionID: 2, Answer: "true"},
		},
		TimeSpent: 600,
	})
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusSubmitted, resp.Status)
	require.NotNil(t, resp.SubmittedAt)
	require.Len(t, oracle.Ended, 1)
	require.Len(t, attempts.answers[started.AttemptID], 2)
}

func TestAttemptSubmitWhileLockedStaysSubmitted(t *testing.T) {
	oracle := verifier.NewStatic(0.92, 0.75)
	svc, _, _ := newAttemptFixture(oracle)

	started, err := svc.Start(context.Background(), dto.StartAttemptRequest{ExamID: 1, StudentID: 7}, verifier.Frame{Name: "f.jpg", Content: []byte("img")})
	require.NoError(t, err)

	_, err = svc.Lock(context.Background(), started.AttemptID, "multiple faces observed")
	require.NoError(t, err)

	// A lock does not change the submission outcome; only an explicit
	// reviewer flag produces the flagged status.
	resp, err := svc.Submit(context.Background(), started.AttemptID, dto.SubmitAttemptRequest{StudentID: 7, TimeSpent: 60})
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusSubmitted, resp.Status)
	require.True(t, resp.IsLocked)
}

// stubAttemptGrader stands in for the grading service behind the submit
// hook. It marks the attempt graded through the same repository the service
// reads back from.
type stubAttemptGrader struct {
	attempts *fakeAttemptRepo
	calls    []uint
	err      error
}

func (s *stubAttemptGrader) AutoGrade(ctx context.Context, attemptID uint) (dto.GradeSummary, error) {
	s.calls = append(s.calls, attemptID)
	if s.err != nil {
		return dto.GradeSummary{}, s.err
	}
	if _, err := s.attempts.Grade(ctx, attemptID, repository.GradeResult{TotalScore: 10, Percentage: 100, Passed: true, GradedAt: time.Now()}); err != nil {
		return dto.GradeSummary{}, err
	}
	return dto.GradeSummary{AttemptID: attemptID, Status: models.AttemptStatusGraded}, nil
}

func TestAttemptSubmitTriggersGrading(t *testing.T) {
	oracle := verifier.NewStatic(0.92, 0.75)
	svc, attempts, _ := newAttemptFixture(oracle)
	grader := &stubAttemptGrader{attempts: attempts}
	svc.grader = grader

	started, err := svc.Start(context.Background(), dto.StartAttemptRequest{ExamID: 1, StudentID: 7}, verifier.Frame{Name: "f.jpg", Content: []byte("img")})
	require.NoError(t, err)

	resp, err := svc.Submit(context.Background(), started.AttemptID, dto.SubmitAttemptRequest{
		StudentID: 7,
		Answers: []dto.AnswerSubmission{
			{QuestionID: 1, Answer: "B"},
			{QuestionID: 2, Answer: "true"},
		},
		TimeSpent: 600,
	})
	require.NoError(t, err)
	require.Equal(t, []uint{started.AttemptID}, grader.calls)
	require.Equal(t, models.AttemptStatusGraded, resp.Status)
	require.NotNil(t, resp.GradedAt)
}

func TestAttemptSubmitWhileLockedSkipsGrading(t *testing.T) {
	oracle := verifier.NewStatic(0.92, 0.75)
	svc, attempts, _ := newAttemptFixture(oracle)
	grader := &stubAttemptGrader{attempts: attempts}
	svc.grader = grader

	started, err := svc.Start(context.Background(), dto.StartAttemptRequest{ExamID: 1, StudentID: 7}, verifier.Frame{Name: "f.jpg", Content: []byte("img")})
	require.NoError(t, err)

	_, err = svc.Lock(context.Background(), started.AttemptID, "impersonation suspected")
	require.NoError(t, err)

	resp, err := svc.Submit(context.Background(), started.AttemptID, dto.SubmitAttemptRequest{
		StudentID: 7,
		Answers:   []dto.AnswerSubmission{{QuestionID: 1, Answer: "B"}},
		TimeSpent: 60,
	})
	require.NoError(t, err)
	require.Empty(t, grader.calls)
	require.Equal(t, models.AttemptStatusSubmitted, resp.Status)
	require.Nil(t, resp.GradedAt)
}

func TestAttemptSubmitSurvivesGradingFailure(t *testing.T) {
	oracle := verifier.NewStatic(0.92, 0.75)
	svc, attempts, _ := newAttemptFixture(oracle)
	grader := &stubAttemptGrader{attempts: attempts, err: fmt.Errorf("grading store unavailable")}
	svc.grader = grader

	started, err := svc.Start(context.Background(), dto.StartAttemptRequest{ExamID: 1, StudentID: 7}, verifier.Frame{Name: "f.jpg", Content: []byte("img")})
	require.NoError(t, err)

	resp, err := svc.Submit(context.Background(), started.AttemptID, dto.SubmitAttemptRequest{StudentID: 7, TimeSpent: 60})
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusSubmitted, resp.Status)
	require.Len(t, grader.calls, 1)
}

func TestAttemptSubmitRejectsTerminalStates(t *testing.T) {
	oracle := verifier.NewStatic(0.92, 0.75)
	svc, attempts, _ := newAttemptFixture(oracle)

	attempt := attempts.put(models.ExamAttempt{
		ExamID:      1,
		StudentID:   7,
		Status:      models.AttemptStatusSubmitted,
		StartedAt:   time.Now(),
		SubmittedAt: ptr(time.Now()),
	})

	_, err := svc.Submit(context.Background(), attempt.ID, dto.SubmitAttemptRequest{StudentID: 7})
	require.ErrorIs(t, err, ErrAttemptNotInProgress)
}

func TestAttemptSubmitRejectsOtherStudents(t *testing.T) {
	oracle := verifier.NewStatic(0.92, 0.75)
	svc, _, _ := newAttemptFixture(oracle)

	started, err := svc.Start(context.Background(), dto.StartAttemptRequest{ExamID: 1, StudentID: 7}, verifier.Frame{Name: "f.jpg", Content: []byte("img")})
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), started.AttemptID, dto.SubmitAttemptRequest{StudentID: 99})
	require.ErrorIs(t, err, ErrStudentMismatch)
}

func TestAttemptLockIsIdempotent(t *testing.T) {
	oracle := verifier.NewStatic(0.92, 0.75)
	svc, _, incidents := newAttemptFixture(oracle)

	started, err := svc.Start(context.Background(), dto.StartAttemptRequest{ExamID: 1, StudentID: 7}, verifier.Frame{Name: "f.jpg", Content: []byte("img")})
	require.NoError(t, err)

	first, err := svc.Lock(context.Background(), started.AttemptID, "impersonation suspected")
	require.NoError(t, err)
	require.True(t, first.IsLocked)
	require.Equal(t, "impersonation suspected", first.LockedReason)

	second, err := svc.Lock(context.Background(), started.AttemptID, "different reason")
	require.NoError(t, err)
	require.True(t, second.IsLocked)
	require.Equal(t, "impersonation suspected", second.LockedReason)

	// Only the winning lock records an incident.
	require.Len(t, incidents.byType(models.IncidentReviewerFlag), 1)
}

func TestAttemptUnlockClearsLockAndRecordsIncident(t *testing.T) {
	oracle := verifier.NewStatic(0.92, 0.75)
	svc, _, incidents := newAttemptFixture(oracle)

	started, err := svc.Start(context.Background(), dto.StartAttemptRequest{ExamID: 1, StudentID: 7}, verifier.Frame{Name: "f.jpg", Content: []byte("img")})
	require.NoError(t, err)

	_, err = svc.Lock(context.Background(), started.AttemptID, "reviewing")
	require.NoError(t, err)

	resp, err := svc.Unlock(context.Background(), started.AttemptID)
	require.NoError(t, err)
	require.False(t, resp.IsLocked)
	require.Empty(t, resp.LockedReason)
	require.NotNil(t, resp.UnlockedAt)
	require.Len(t, oracle.Unlocked, 1)
	require.Len(t, incidents.byType(models.IncidentSessionUnlocked), 1)

	_, err = svc.Unlock(context.Background(), started.AttemptID)
	require.ErrorIs(t, err, ErrAttemptNotLocked)
}
