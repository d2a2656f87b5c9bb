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
	"github.com/invigilo/invigilo-go-api/internal/repository"
)

// ErrAttemptNotGradable indicates the attempt has not been submitted yet.
var ErrAttemptNotGradable = errors.New("attempt has not been submitted")

// ErrAlreadyGraded indicates the attempt already carries a final score.
var ErrAlreadyGraded = errors.New("attempt is already graded")

// ErrAnswerNotFound indicates the requested answer does not exist.
var ErrAnswerNotFound = errors.New("answer not found")

// ErrAnswerAlreadyGraded indicates points were already awarded for the answer.
var ErrAnswerAlreadyGraded = errors.New("answer is already graded")

// ErrPointsExceedMax indicates a manual grade above the question's points.
var ErrPointsExceedMax = errors.New("points exceed the question maximum")

// ScoreResult is the outcome of a pure scoring pass over an attempt's answers.
type ScoreResult struct {
	Grades        []repository.AnswerGrade
	TotalScore    float64
	Percentage    float64
	Passed        bool
	GradedAnswers int
	PendingManual int
}

// Complete reports whether every answer has a grade, so the attempt can be
// finalized.
func (r ScoreResult) Complete() bool {
	return r.PendingManual == 0
}

// ComputeScore scores an attempt's answers against their questions. Objective
// questions (multiple choice, true/false) are graded by exact match against
// the stored correct answer; free-text answers keep any manually awarded
// points and otherwise count as pending. The function is pure: it touches no
// storage and depends only on its inputs.
func ComputeScore(answers []models.ExamAnswer, maxScore, passingThreshold float64) ScoreResult {
	var result ScoreResult

	for _, answer := range answers {
		switch {
		case answer.IsGraded():
			result.TotalScore += *answer.PointsAwarded
			result.GradedAnswers++
		case answer.Question.AutoGradable():
			correct := answersMatch(answer.Question, answer.Answer)
			points := 0.0
			if correct {
				points = answer.Question.Points
			}
			result.Grades = append(result.Grades, repository.AnswerGrade{
				AnswerID:      answer.ID,
				IsCorrect:     correct,
				PointsAwarded: points,
			})
			result.TotalScore += points
			result.GradedAnswers++
		default:
			result.PendingManual++
		}
	}

	if maxScore > 0 {
		result.Percentage = result.TotalScore / maxScore * 100
	}
	result.Passed = result.Percentage >= passingThreshold

	return result
}

// answersMatch compares the submitted value against the canonical answer by
// exact string equality. No trimming, no case folding: the stored answer is
// the single source of truth.
func answersMatch(question models.Question, given string) bool {
	return given == question.CorrectAnswer
}

// GradingService scores submitted attempts and handles manual grading of
// free-text answers.
type GradingService interface {
	AutoGrade(ctx context.Context, attemptID uint) (dto.GradeSummary, error)
	ManualGrade(ctx context.Context, answerID uint, payload dto.ManualGradeRequest, graderID uint) (dto.GradeSummary, error)
	ListAnswers(ctx context.Context, attemptID uint) ([]dto.AnswerResponse, error)
}

// RankingRecalculator refreshes an exam's ranking board after grading.
type RankingRecalculator interface {
	Recalculate(ctx context.Context, examID uint) (dto.RecalculateResponse, error)
}

type gradingService struct {
	attempts      repository.AttemptRepository
	answers       repository.AnswerRepository
	notifications NotificationService
	rankings      RankingRecalculator
	validator     *validator.Validate
	logger        zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// NewGradingService builds the grading service. The notification service and
// ranking recalculator are optional; without them grade notifications and
// board refreshes are skipped.
func NewGradingService(
	attempts repository.AttemptRepository,
	answers repository.AnswerRepository,
	notifications NotificationService,
	rankings RankingRecalculator,
	validate *validator.Validate,
	logger zerolog.Logger,
) GradingService {
	return &gradingService{
		attempts:      attempts,
		answers:       answers,
		notifications: notifications,
		rankings:      rankings,
		validator:     validate,
		logger:        logger.With().Str("component", "grading_service").Logger(),
		tracer:        otel.Tracer("github.com/invigilo/invigilo-go-api/internal/service/grading"),
		now:           time.Now,
	}
}

// AutoGrade scores every objective answer of a submitted attempt. When no
// manual grading remains the attempt transitions to graded in one atomic
// write; otherwise the objective points are stored and the attempt waits for
// the remaining manual grades.
func (s *gradingService) AutoGrade(ctx context.Context, attemptID uint) (dto.GradeSummary, error) {
	spanCtx, span := s.tracer.Start(ctx, "grading.auto_grade", trace.WithAttributes(
		attribute.Int("attempt.id", int(attemptID)),
	))
	defer span.End()

	attempt, err := s.attempts.GetByID(spanCtx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GradeSummary{}, ErrAttemptNotFound
		}
		return dto.GradeSummary{}, err
	}

	switch attempt.Status {
	case models.AttemptStatusSubmitted, models.AttemptStatusFlagged:
	case models.AttemptStatusGraded:
		return dto.GradeSummary{}, ErrAlreadyGraded
	default:
		return dto.GradeSummary{}, ErrAttemptNotGradable
	}

	answers, err := s.answers.ListByAttempt(spanCtx, attemptID)
	if err != nil {
		return dto.GradeSummary{}, err
	}

	result := ComputeScore(answers, attempt.MaxScore, attempt.Exam.PassingThreshold())

	if result.Complete() {
		return s.finalize(spanCtx, attempt, result)
	}

	// Store the objective grades now; the attempt finalizes once the last
	// manual grade lands.
	for _, grade := range result.Grades {
		if _, err := s.answers.AwardPoints(spanCtx, grade.AnswerID, grade.IsCorrect, grade.PointsAwarded, 0, s.now()); err != nil {
			return dto.GradeSummary{}, err
		}
	}

	s.logger.Info().
		Uint("attempt_id", attempt.ID).
		Int("pending_manual", result.PendingManual).
		Msg("objective answers graded, awaiting manual grading")

	s.notifyManualPending(spanCtx, attempt, result.PendingManual)

	return dto.GradeSummary{
		AttemptID:     attempt.ID,
		TotalScore:    result.TotalScore,
		MaxScore:      attempt.MaxScore,
		Percentage:    result.Percentage,
		Passed:        result.Passed,
		GradedAnswers: result.GradedAnswers,
		PendingManual: result.PendingManual,
		Status:        attempt.Status,
	}, nil
}

// ManualGrade awards points for one free-text answer. When it was the last
// ungraded answer the attempt finalizes immediately.
func (s *gradingService) ManualGrade(ctx context.Context, answerID uint, payload dto.ManualGradeRequest, graderID uint) (dto.GradeSummary, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.GradeSummary{}, err
	}

	answer, err := s.answers.GetByID(ctx, answerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GradeSummary{}, ErrAnswerNotFound
		}
		return dto.GradeSummary{}, err
	}

	if payload.Points > answer.Question.Points {
		return dto.GradeSummary{}, ErrPointsExceedMax
	}

	attempt, err := s.attempts.GetByID(ctx, answer.AttemptID)
	if err != nil {
		return dto.GradeSummary{}, err
	}

	if attempt.Status == models.AttemptStatusGraded {
		return dto.GradeSummary{}, ErrAlreadyGraded
	}

	awarded, err := s.answers.AwardPoints(ctx, answer.ID, payload.IsCorrect, payload.Points, graderID, s.now())
	if err != nil {
		return dto.GradeSummary{}, err
	}
	if !awarded {
		return dto.GradeSummary{}, ErrAnswerAlreadyGraded
	}

	answers, err := s.answers.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return dto.GradeSummary{}, err
	}

	result := ComputeScore(answers, attempt.MaxScore, attempt.Exam.PassingThreshold())
	if result.Complete() {
		return s.finalize(ctx, attempt, result)
	}

	return dto.GradeSummary{
		AttemptID:     attempt.ID,
		TotalScore:    result.TotalScore,
		MaxScore:      attempt.MaxScore,
		Percentage:    result.Percentage,
		Passed:        result.Passed,
		GradedAnswers: result.GradedAnswers,
		PendingManual: result.PendingManual,
		Status:        attempt.Status,
	}, nil
}

func (s *gradingService) ListAnswers(ctx context.Context, attemptID uint) ([]dto.AnswerResponse, error) {
	if _, err := s.attempts.GetByID(ctx, attemptID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}

	answers, err := s.answers.ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	return dto.NewAnswerResponseSlice(answers), nil
}

// finalize applies the score to the attempt in one atomic write and sends
// the grade notification fire-and-forget.
func (s *gradingService) finalize(ctx context.Context, attempt models.ExamAttempt, result ScoreResult) (dto.GradeSummary, error) {
	graded, err := s.attempts.Grade(ctx, attempt.ID, repository.GradeResult{
		Answers:    result.Grades,
		TotalScore: result.TotalScore,
		Percentage: result.Percentage,
		Passed:     result.Passed,
		GradedAt:   s.now(),
	})
	if err != nil {
		return dto.GradeSummary{}, err
	}
	if !graded {
		return dto.GradeSummary{}, ErrAlreadyGraded
	}

	s.logger.Info().
		Uint("attempt_id", attempt.ID).
		Float64("total_score", result.TotalScore).
		Float64("percentage", result.Percentage).
		Bool("passed", result.Passed).
		Msg("attempt graded")

	s.notifyGraded(ctx, attempt, result)

	if s.rankings != nil && attempt.Exam.EnableRanking {
		if _, err := s.rankings.Recalculate(ctx, attempt.ExamID); err != nil {
			s.logger.Warn().Err(err).Uint("exam_id", attempt.ExamID).Msg("failed to refresh rankings after grading")
		}
	}

	return dto.GradeSummary{
		AttemptID:     attempt.ID,
		TotalScore:    result.TotalScore,
		MaxScore:      attempt.MaxScore,
		Percentage:    result.Percentage,
		Passed:        result.Passed,
		GradedAnswers: result.GradedAnswers,
		PendingManual: 0,
		Status:        models.AttemptStatusGraded,
	}, nil
}

func (s *gradingService) notifyGraded(ctx context.Context, attempt models.ExamAttempt, result ScoreResult) {
	if s.notifications == nil {
		return
	}

	payload := dto.NotificationCreateRequest{
		UserID:  fmt.Sprintf("%d", attempt.StudentID),
		Title:   "Exam Graded",
		Message: fmt.Sprintf("Your exam has been graded. You scored %.1f out of %.1f (%.1f%%).", result.TotalScore, attempt.MaxScore, result.Percentage),
		Type:    models.NotificationTypeExam,
		Metadata: map[string]interface{}{
			"exam_id":    attempt.ExamID,
			"attempt_id": attempt.ID,
			"passed":     result.Passed,
		},
	}

	if _, err := s.notifications.Publish(ctx, payload); err != nil {
		s.logger.Warn().Err(err).Uint("attempt_id", attempt.ID).Msg("failed to send grade notification")
	}
}

func (s *gradingService) notifyManualPending(ctx context.Context, attempt models.ExamAttempt, pending int) {
	if s.notifications == nil || attempt.Exam.TeacherID == nil {
		return
	}

	payload := dto.NotificationCreateRequest{
		UserID:  fmt.Sprintf("%d", *attempt.Exam.TeacherID),
		Title:   "New Submission to Grade",
		Message: fmt.Sprintf("An attempt on %q has %d answers waiting for manual grading.", attempt.Exam.Title, pending),
		Type:    models.NotificationTypeExam,
		Metadata: map[string]interface{}{
			"exam_id":        attempt.ExamID,
			"attempt_id":     attempt.ID,
			"pending_manual": pending,
		},
	}

	if _, err := s.notifications.Publish(ctx, payload); err != nil {
		s.logger.Warn().Err(err).Uint("attempt_id", attempt.ID).Msg("failed to send manual grading notification")
	}
}
