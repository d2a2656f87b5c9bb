package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/invigilo/invigilo-go-api/internal/dto"
	"github.com/invigilo/invigilo-go-api/internal/models"
	"github.com/invigilo/invigilo-go-api/internal/observability"
	"github.com/invigilo/invigilo-go-api/internal/repository"
	"github.com/invigilo/invigilo-go-api/pkg/verifier"
)

// ErrExamNotFound indicates the requested exam does not exist.
var ErrExamNotFound = errors.New("exam not found")

// ErrExamClosed indicates the exam is not currently accepting attempts.
var ErrExamClosed = errors.New("exam is not open for attempts")

// ErrStudentNotFound indicates the requested student does not exist.
var ErrStudentNotFound = errors.New("student not found")

// ErrIdentityNotRegistered indicates the student never enrolled a reference face.
var ErrIdentityNotRegistered = errors.New("student has no registered identity")

// ErrNotEnrolled indicates the student is not enrolled in the exam's class.
var ErrNotEnrolled = errors.New("student is not enrolled in this class")

// ErrMaxAttemptsExceeded indicates the student already used every allowed attempt.
var ErrMaxAttemptsExceeded = errors.New("maximum attempts exceeded")

// ErrVerificationFailed indicates identity verification rejected the student.
var ErrVerificationFailed = errors.New("identity verification failed")

// ErrAttemptNotFound indicates the requested attempt does not exist.
var ErrAttemptNotFound = errors.New("attempt not found")

// ErrAttemptNotInProgress indicates the attempt already left the in-progress state.
var ErrAttemptNotInProgress = errors.New("attempt is not in progress")

// ErrAttemptNotLocked indicates an unlock was requested for an unlocked attempt.
var ErrAttemptNotLocked = errors.New("attempt is not locked")

// ErrStudentMismatch indicates the caller does not own the attempt.
var ErrStudentMismatch = errors.New("attempt belongs to another student")

// AttemptGrader grades an attempt after submission. Implemented by the
// grading service; optional, so the attempt lifecycle also works with
// grading left unwired.
type AttemptGrader interface {
	AutoGrade(ctx context.Context, attemptID uint) (dto.GradeSummary, error)
}

// AttemptService drives the exam attempt lifecycle: starting under identity
// verification, submitting answers, and the reviewer lock controls.
type AttemptService interface {
	Start(ctx context.Context, payload dto.StartAttemptRequest, frame verifier.Frame) (dto.StartAttemptResponse, error)
	Get(ctx context.Context, id uint) (dto.AttemptResponse, error)
	Submit(ctx context.Context, attemptID uint, payload dto.SubmitAttemptRequest) (dto.AttemptResponse, error)
	Lock(ctx context.Context, attemptID uint, reason string) (dto.AttemptResponse, error)
	Unlock(ctx context.Context, attemptID uint) (dto.AttemptResponse, error)
}

type attemptService struct {
	attempts  repository.AttemptRepository
	exams     repository.ExamRepository
	students  repository.StudentRepository
	incidents repository.IncidentRepository
	verifier  verifier.Verifier
	grader    AttemptGrader
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewAttemptService builds the attempt lifecycle service.
func NewAttemptService(
	attempts repository.AttemptRepository,
	exams repository.ExamRepository,
	students repository.StudentRepository,
	incidents repository.IncidentRepository,
	v verifier.Verifier,
	grader AttemptGrader,
	validate *validator.Validate,
	logger zerolog.Logger,
) AttemptService {
	return &attemptService{
		attempts:  attempts,
		exams:     exams,
		students:  students,
		incidents: incidents,
		verifier:  v,
		grader:    grader,
		validator: validate,
		logger:    logger.With().Str("component", "attempt_service").Logger(),
		tracer:    otel.Tracer("github.com/invigilo/invigilo-go-api/internal/service/attempt"),
		now:       time.Now,
	}
}

// Start creates an attempt and opens its verification session. Creation is
// all-or-nothing: if the verification oracle rejects or fails, the freshly
// created attempt row is removed again so no orphan attempt survives.
func (s *attemptService) Start(ctx context.Context, payload dto.StartAttemptRequest, frame verifier.Frame) (dto.StartAttemptResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.StartAttemptResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "attempts.start", trace.WithAttributes(
		attribute.Int("exam.id", int(payload.ExamID)),
		attribute.Int("student.id", int(payload.StudentID)),
	))
	defer span.End()

	exam, err := s.exams.GetWithQuestions(spanCtx, payload.ExamID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.StartAttemptResponse{}, ErrExamNotFound
		}
		return dto.StartAttemptResponse{}, err
	}

	if !exam.IsOpen(s.now()) {
		return dto.StartAttemptResponse{}, ErrExamClosed
	}

	student, err := s.students.GetByID(spanCtx, payload.StudentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.StartAttemptResponse{}, ErrStudentNotFound
		}
		return dto.StartAttemptResponse{}, err
	}

	if !student.HasRegisteredIdentity() {
		return dto.StartAttemptResponse{}, ErrIdentityNotRegistered
	}

	if exam.ClassID != nil {
		enrolled, err := s.students.IsEnrolled(spanCtx, *exam.ClassID, student.ID)
		if err != nil {
			return dto.StartAttemptResponse{}, err
		}
		if !enrolled {
			return dto.StartAttemptResponse{}, ErrNotEnrolled
		}
	}

	used, err := s.attempts.CountByExamAndStudent(spanCtx, exam.ID, student.ID)
	if err != nil {
		return dto.StartAttemptResponse{}, err
	}
	if used >= int64(exam.AttemptsAllowed) {
		return dto.StartAttemptResponse{}, ErrMaxAttemptsExceeded
	}

	maxScore := 0.0
	for _, question := range exam.Questions {
		maxScore += question.Points
	}

	attempt := models.ExamAttempt{
		ExamID:        exam.ID,
		StudentID:     student.ID,
		AttemptNumber: int(used) + 1,
		Status:        models.AttemptStatusInProgress,
		StartedAt:     s.now(),
		MaxScore:      maxScore,
	}

	if err := s.attempts.Create(spanCtx, &attempt); err != nil {
		span.RecordError(err)
		return dto.StartAttemptResponse{}, err
	}

	session, err := s.verifier.StartSession(spanCtx, *student.FaceReferenceID, fmt.Sprintf("exam-%d", exam.ID), frame)
	if err != nil {
		span.RecordError(err)
		if deleteErr := s.attempts.Delete(spanCtx, attempt.ID); deleteErr != nil {
			s.logger.Error().Err(deleteErr).Uint("attempt_id", attempt.ID).Msg("failed to roll back attempt after verification failure")
		}

		var apiErr *verifier.APIError
		if errors.As(err, &apiErr) {
			return dto.StartAttemptResponse{}, fmt.Errorf("%w: %s", ErrVerificationFailed, apiErr.Detail)
		}
		return dto.StartAttemptResponse{}, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	fields := map[string]interface{}{
		"verification_session_id": session.SessionID,
		"verification_score":      session.Similarity,
		"verification_threshold":  session.Threshold,
	}
	if err := s.attempts.UpdateColumns(spanCtx, attempt.ID, fields); err != nil {
		return dto.StartAttemptResponse{}, err
	}

	s.logger.Info().
		Uint("attempt_id", attempt.ID).
		Uint("exam_id", exam.ID).
		Uint("student_id", student.ID).
		Int("attempt_number", attempt.AttemptNumber).
		Msg("attempt started")

	return dto.StartAttemptResponse{
		AttemptID:             attempt.ID,
		AttemptNumber:         attempt.AttemptNumber,
		Status:                attempt.Status,
		VerificationSessionID: session.SessionID,
		Similarity:            session.Similarity,
		Threshold:             session.Threshold,
	}, nil
}

func (s *attemptService) Get(ctx context.Context, id uint) (dto.AttemptResponse, error) {
	attempt, err := s.attempts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AttemptResponse{}, ErrAttemptNotFound
		}
		return dto.AttemptResponse{}, err
	}

	return dto.NewAttemptResponse(attempt), nil
}

// Submit finalizes an in-progress attempt as submitted, locked or not; only
// an explicit reviewer flag moves an attempt to flagged. Grading runs right
// after a clean submit, while locked attempts wait for a reviewer. The
// verification session is closed best-effort; a gateway failure never blocks
// submission.
func (s *attemptService) Submit(ctx context.Context, attemptID uint, payload dto.SubmitAttemptRequest) (dto.AttemptResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AttemptResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "attempts.submit", trace.WithAttributes(
		attribute.Int("attempt.id", int(attemptID)),
	))
	defer span.End()

	attempt, err := s.attempts.GetByID(spanCtx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AttemptResponse{}, ErrAttemptNotFound
		}
		return dto.AttemptResponse{}, err
	}

	if attempt.StudentID != payload.StudentID {
		return dto.AttemptResponse{}, ErrStudentMismatch
	}

	if !attempt.IsInProgress() {
		return dto.AttemptResponse{}, ErrAttemptNotInProgress
	}

	answers := make([]models.ExamAnswer, 0, len(payload.Answers))
	for _, answer := range payload.Answers {
		answers = append(answers, models.ExamAnswer{
			AttemptID:  attempt.ID,
			QuestionID: answer.QuestionID,
			Answer:     answer.Answer,
			TimeSpent:  answer.TimeSpent,
		})
	}

	submitted, err := s.attempts.SubmitWithAnswers(spanCtx, attempt.ID, models.AttemptStatusSubmitted, s.now(), payload.TimeSpent, answers)
	if err != nil {
		span.RecordError(err)
		return dto.AttemptResponse{}, err
	}
	if !submitted {
		// Lost the race with a concurrent submit or a grading pass.
		return dto.AttemptResponse{}, ErrAttemptNotInProgress
	}

	if attempt.HasVerificationSession() {
		if err := s.verifier.EndSession(spanCtx, *attempt.VerificationSessionID); err != nil {
			s.logger.Warn().Err(err).Uint("attempt_id", attempt.ID).Msg("failed to end verification session")
		}
	}

	s.logger.Info().Uint("attempt_id", attempt.ID).Msg("attempt submitted")

	s.gradeAfterSubmit(spanCtx, attempt)

	updated, err := s.attempts.GetByID(spanCtx, attempt.ID)
	if err != nil {
		return dto.AttemptResponse{}, err
	}

	return dto.NewAttemptResponse(updated), nil
}

// gradeAfterSubmit hands the attempt to the grading service. Objective exams
// finalize immediately; mixed content gets its objective answers graded and
// waits for manual grading. Locked attempts are skipped so a reviewer rules
// on the integrity hold before any score exists, and a grading failure never
// surfaces to the student.
func (s *attemptService) gradeAfterSubmit(ctx context.Context, attempt models.ExamAttempt) {
	if s.grader == nil || attempt.IsLocked {
		return
	}

	if _, err := s.grader.AutoGrade(ctx, attempt.ID); err != nil {
		s.logger.Warn().Err(err).Uint("attempt_id", attempt.ID).Msg("grading after submit failed")
	}
}

// Lock marks an in-progress attempt as locked on reviewer request. Locking
// is idempotent: repeating the call on an already locked attempt changes
// nothing and records no further incident.
func (s *attemptService) Lock(ctx context.Context, attemptID uint, reason string) (dto.AttemptResponse, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AttemptResponse{}, ErrAttemptNotFound
		}
		return dto.AttemptResponse{}, err
	}

	if !attempt.IsInProgress() {
		return dto.AttemptResponse{}, ErrAttemptNotInProgress
	}

	acquired, err := s.attempts.Lock(ctx, attempt.ID, reason, s.now(), 0)
	if err != nil {
		return dto.AttemptResponse{}, err
	}

	if acquired {
		observability.AttemptLocks().Inc()
		incident := models.ProctoringIncident{
			AttemptID:   attempt.ID,
			EventType:   models.IncidentReviewerFlag,
			Severity:    models.SeverityCritical,
			Description: reason,
			Timestamp:   s.now(),
		}
		if err := s.incidents.Append(ctx, &incident); err != nil {
			s.logger.Error().Err(err).Uint("attempt_id", attempt.ID).Msg("failed to record lock incident")
		}
		s.logger.Warn().Uint("attempt_id", attempt.ID).Str("reason", reason).Msg("attempt locked by reviewer")
	}

	updated, err := s.attempts.GetByID(ctx, attempt.ID)
	if err != nil {
		return dto.AttemptResponse{}, err
	}

	return dto.NewAttemptResponse(updated), nil
}

// Unlock clears the lock flag so the student can resume. The verification
// session unlock is best-effort; the local state change always wins.
func (s *attemptService) Unlock(ctx context.Context, attemptID uint) (dto.AttemptResponse, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AttemptResponse{}, ErrAttemptNotFound
		}
		return dto.AttemptResponse{}, err
	}

	if !attempt.IsLocked {
		return dto.AttemptResponse{}, ErrAttemptNotLocked
	}

	if attempt.HasVerificationSession() {
		if err := s.verifier.UnlockSession(ctx, *attempt.VerificationSessionID); err != nil {
			s.logger.Warn().Err(err).Uint("attempt_id", attempt.ID).Msg("failed to unlock verification session")
		}
	}

	fields := map[string]interface{}{
		"is_locked":     false,
		"locked_reason": "",
		"unlocked_at":   s.now(),
	}
	if err := s.attempts.UpdateColumns(ctx, attempt.ID, fields); err != nil {
		return dto.AttemptResponse{}, err
	}

	incident := models.ProctoringIncident{
		AttemptID:   attempt.ID,
		EventType:   models.IncidentSessionUnlocked,
		Severity:    models.SeverityInfo,
		Description: "Session manually unlocked by reviewer",
		Timestamp:   s.now(),
	}
	if err := s.incidents.Append(ctx, &incident); err != nil {
		s.logger.Error().Err(err).Uint("attempt_id", attempt.ID).Msg("failed to record unlock incident")
	}

	s.logger.Info().Uint("attempt_id", attempt.ID).Msg("attempt unlocked")

	updated, err := s.attempts.GetByID(ctx, attempt.ID)
	if err != nil {
		return dto.AttemptResponse{}, err
	}

	return dto.NewAttemptResponse(updated), nil
}
