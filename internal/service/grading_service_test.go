package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/invigilo/invigilo-go-api/internal/dto"
	"github.com/invigilo/invigilo-go-api/internal/models"
)

func TestComputeScoreObjectiveAnswers(t *testing.T) {
	answers := []models.ExamAnswer{
		{
			ID:       1,
			Answer:   "B",
			Question: models.Question{ID: 1, Type: models.QuestionTypeMultipleChoice, CorrectAnswer: "B", Points: 5},
		},
		{
			ID:       2,
			Answer:   "true",
			Question: models.Question{ID: 2, Type: models.QuestionTypeTrueFalse, CorrectAnswer: "true", Points: 5},
		},
		{
			ID:       3,
			Answer:   "C",
			Question: models.Question{ID: 3, Type: models.QuestionTypeMultipleChoice, CorrectAnswer: "A", Points: 5},
		},
	}

	result := ComputeScore(answers, 15, 50)
	require.True(t, result.Complete())
	require.Equal(t, 10.0, result.TotalScore)
	require.InDelta(t, 66.67, result.Percentage, 0.01)
	require.True(t, result.Passed)
	require.Equal(t, 3, result.GradedAnswers)
	require.Len(t, result.Grades, 3)
}

func TestComputeScoreRequiresExactMatch(t *testing.T) {
	// Grading compares raw strings: no trimming, no case folding.
	answers := []models.ExamAnswer{
		{
			ID:       1,
			Answer:   "b",
			Question: models.Question{ID: 1, Type: models.QuestionTypeMultipleChoice, CorrectAnswer: "B", Points: 5},
		},
		{
			ID:       2,
			Answer:   " A",
			Question: models.Question{ID: 2, Type: models.QuestionTypeMultipleChoice, CorrectAnswer: "A", Points: 5},
		},
		{
			ID:       3,
			Answer:   "TRUE",
			Question: models.Question{ID: 3, Type: models.QuestionTypeTrueFalse, CorrectAnswer: "true", Points: 5},
		},
	}

	result := ComputeScore(answers, 15, 50)
	require.Zero(t, result.TotalScore)
	require.False(t, result.Passed)
	require.Equal(t, 3, result.GradedAnswers)
}

func TestComputeScoreCountsPendingManual(t *testing.T) {
	answers := []models.ExamAnswer{
		{
			ID:       1,
			Answer:   "B",
			Question: models.Question{ID: 1, Type: models.QuestionTypeMultipleChoice, CorrectAnswer: "B", Points: 5},
		},
		{
			ID:       2,
			Answer:   "Photosynthesis converts light into chemical energy.",
			Question: models.Question{ID: 2, Type: models.QuestionTypeEssay, Points: 10},
		},
	}

	result := ComputeScore(answers, 15, 50)
	require.False(t, result.Complete())
	require.Equal(t, 1, result.PendingManual)
	require.Equal(t, 5.0, result.TotalScore)
}

func TestComputeScoreZeroMaxScore(t *testing.T) {
	result := ComputeScore(nil, 0, 50)
	require.Zero(t, result.Percentage)
	require.False(t, result.Passed)
}

func gradingFixture(t *testing.T, attempt models.ExamAttempt, answers ...models.ExamAnswer) (GradingService, *fakeAttemptRepo, *fakeAnswerRepo, *fakeNotifications) {
	t.Helper()

	attempts := newFakeAttemptRepo()
	attempts.put(attempt)
	answerRepo := newFakeAnswerRepo(answers...)
	notifications := &fakeNotifications{}
	validate := validator.New(validator.WithRequiredStructEnabled())

	svc := NewGradingService(attempts, answerRepo, notifications, nil, validate, testLogger())
	return svc, attempts, answerRepo, notifications
}

func submittedAttempt(id uint) models.ExamAttempt {
	return models.ExamAttempt{
		ID:          id,
		ExamID:      1,
		StudentID:   7,
		Status:      models.AttemptStatusSubmitted,
		StartedAt:   time.Now().Add(-time.Hour),
		SubmittedAt: ptr(time.Now()),
		MaxScore:    15,
	}
}

func TestAutoGradeFinalizesObjectiveAttempt(t *testing.T) {
	svc, attempts, _, notifications := gradingFixture(t, submittedAttempt(1),
		models.ExamAnswer{ID: 1, AttemptID: 1, QuestionID: 1, Answer: "B", Question: models.Question{ID: 1, Type: models.QuestionTypeMultipleChoice, CorrectAnswer: "B", Points: 5}},
		models.ExamAnswer{ID: 2, AttemptID: 1, QuestionID: 2, Answer: "true", Question: models.Question{ID: 2, Type: models.QuestionTypeTrueFalse, CorrectAnswer: "true", Points: 5}},
		models.ExamAnswer{ID: 3, AttemptID: 1, QuestionID: 3, Answer: "D", Question: models.Question{ID: 3, Type: models.QuestionTypeMultipleChoice, CorrectAnswer: "A", Points: 5}},
	)

	summary, err := svc.AutoGrade(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusGraded, summary.Status)
	require.Equal(t, 10.0, summary.TotalScore)
	require.InDelta(t, 66.67, summary.Percentage, 0.01)
	require.True(t, summary.Passed)
	require.Zero(t, summary.PendingManual)

	stored, _ := attempts.GetByID(context.Background(), 1)
	require.Equal(t, models.AttemptStatusGraded, stored.Status)
	require.NotNil(t, stored.GradedAt)
	require.Equal(t, 1, notifications.count())
}

func TestAutoGradeIsWriteOnce(t *testing.T) {
	svc, _, _, notifications := gradingFixture(t, submittedAttempt(1),
		models.ExamAnswer{ID: 1, AttemptID: 1, QuestionID: 1, Answer: "B", Question: models.Question{ID: 1, Type: models.QuestionTypeMultipleChoice, CorrectAnswer: "B", Points: 15}},
	)

	_, err := svc.AutoGrade(context.Background(), 1)
	require.NoError(t, err)

	_, err = svc.AutoGrade(context.Background(), 1)
	require.ErrorIs(t, err, ErrAlreadyGraded)
	require.Equal(t, 1, notifications.count())
}

func TestAutoGradeRejectsInProgressAttempt(t *testing.T) {
	attempt := submittedAttempt(1)
	attempt.Status = models.AttemptStatusInProgress
	attempt.SubmittedAt = nil
	svc, _, _, _ := gradingFixture(t, attempt)

	_, err := svc.AutoGrade(context.Background(), 1)
	require.ErrorIs(t, err, ErrAttemptNotGradable)
}

func TestAutoGradeGradesFlaggedAttempt(t *testing.T) {
	attempt := submittedAttempt(1)
	attempt.Status = models.AttemptStatusFlagged
	attempt.IsLocked = true
	svc, _, _, _ := gradingFixture(t, attempt,
		models.ExamAnswer{ID: 1, AttemptID: 1, QuestionID: 1, Answer: "A", Question: models.Question{ID: 1, Type: models.QuestionTypeMultipleChoice, CorrectAnswer: "A", Points: 15}},
	)

	summary, err := svc.AutoGrade(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusGraded, summary.Status)
	require.Equal(t, 100.0, summary.Percentage)
}

func TestAutoGradeWaitsForManualAnswers(t *testing.T) {
	svc, attempts, answers, notifications := gradingFixture(t, submittedAttempt(1),
		models.ExamAnswer{ID: 1, AttemptID: 1, QuestionID: 1, Answer: "B", Question: models.Question{ID: 1, Type: models.QuestionTypeMultipleChoice, CorrectAnswer: "B", Points: 5}},
		models.ExamAnswer{ID: 2, AttemptID: 1, QuestionID: 2, Answer: "Energy flows through trophic levels.", Question: models.Question{ID: 2, Type: models.QuestionTypeEssay, Points: 10}},
	)

	summary, err := svc.AutoGrade(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusSubmitted, summary.Status)
	require.Equal(t, 1, summary.PendingManual)
	require.Equal(t, 5.0, summary.TotalScore)
	require.Zero(t, notifications.count())

	// The objective answer got its points stored.
	objective, _ := answers.GetByID(context.Background(), 1)
	require.NotNil(t, objective.PointsAwarded)
	require.Equal(t, 5.0, *objective.PointsAwarded)

	stored, _ := attempts.GetByID(context.Background(), 1)
	require.Equal(t, models.AttemptStatusSubmitted, stored.Status)
}

func TestAutoGradeNotifiesTeacherOfPendingManualAnswers(t *testing.T) {
	attempt := submittedAttempt(1)
	attempt.Exam = models.Exam{ID: 1, Title: "Biology Final", TeacherID: ptr(uint(33))}
	svc, _, _, notifications := gradingFixture(t, attempt,
		models.ExamAnswer{ID: 1, AttemptID: 1, QuestionID: 1, Answer: "Energy flows through trophic levels.", Question: models.Question{ID: 1, Type: models.QuestionTypeEssay, Points: 10}},
	)

	summary, err := svc.AutoGrade(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, summary.PendingManual)

	require.Equal(t, 1, notifications.count())
	require.Equal(t, "33", notifications.published[0].UserID)
	require.Equal(t, "New Submission to Grade", notifications.published[0].Title)
}

func TestManualGradeFinalizesLastAnswer(t *testing.T) {
	svc, attempts, _, notifications := gradingFixture(t, submittedAttempt(1),
		models.ExamAnswer{ID: 1, AttemptID: 1, QuestionID: 1, Answer: "B", IsCorrect: ptr(true), PointsAwarded: ptr(5.0), Question: models.Question{ID: 1, Type: models.QuestionTypeMultipleChoice, CorrectAnswer: "B", Points: 5}},
		models.ExamAnswer{ID: 2, AttemptID: 1, QuestionID: 2, Answer: "A long essay.", Question: models.Question{ID: 2, Type: models.QuestionTypeEssay, Points: 10}},
	)

	summary, err := svc.ManualGrade(context.Background(), 2, dto.ManualGradeRequest{Points: 8, IsCorrect: true}, 42)
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusGraded, summary.Status)
	require.Equal(t, 13.0, summary.TotalScore)
	require.InDelta(t, 86.67, summary.Percentage, 0.01)
	require.True(t, summary.Passed)

	stored, _ := attempts.GetByID(context.Background(), 1)
	require.Equal(t, models.AttemptStatusGraded, stored.Status)
	require.Equal(t, 1, notifications.count())
}

func TestManualGradeRejectsExcessPoints(t *testing.T) {
	svc, _, _, _ := gradingFixture(t, submittedAttempt(1),
		models.ExamAnswer{ID: 2, AttemptID: 1, QuestionID: 2, Answer: "essay", Question: models.Question{ID: 2, Type: models.QuestionTypeEssay, Points: 10}},
	)

	_, err := svc.ManualGrade(context.Background(), 2, dto.ManualGradeRequest{Points: 11}, 42)
	require.ErrorIs(t, err, ErrPointsExceedMax)
}

func TestManualGradeRejectsRegrade(t *testing.T) {
	svc, _, _, _ := gradingFixture(t, submittedAttempt(1),
		models.ExamAnswer{ID: 2, AttemptID: 1, QuestionID: 2, Answer: "essay", IsCorrect: ptr(false), PointsAwarded: ptr(3.0), GradedBy: ptr(uint(42)), Question: models.Question{ID: 2, Type: models.QuestionTypeEssay, Points: 10}},
		models.ExamAnswer{ID: 3, AttemptID: 1, QuestionID: 3, Answer: "another essay", Question: models.Question{ID: 3, Type: models.QuestionTypeEssay, Points: 5}},
	)

	_, err := svc.ManualGrade(context.Background(), 2, dto.ManualGradeRequest{Points: 5}, 42)
	require.ErrorIs(t, err, ErrAnswerAlreadyGraded)
}
