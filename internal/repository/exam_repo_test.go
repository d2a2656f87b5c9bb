package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/invigilo/invigilo-go-api/internal/models"
)

func TestExamRepositoryGetWithQuestionsOrdersByPosition(t *testing.T) {
	db := setupTestDB(t)
	repo := NewExamRepository(db)

	exam := models.Exam{Title: "History Final", Status: models.ExamStatusPublished, TotalMarks: 15, AttemptsAllowed: 1}
	require.NoError(t, db.Create(&exam).Error)

	questions := []models.Question{
		{ExamID: exam.ID, Type: models.QuestionTypeTrueFalse, Prompt: "Third", CorrectAnswer: "true", Points: 5, Order: 3},
		{ExamID: exam.ID, Type: models.QuestionTypeMultipleChoice, Prompt: "First", CorrectAnswer: "A", Points: 5, Order: 1},
		{ExamID: exam.ID, Type: models.QuestionTypeMultipleChoice, Prompt: "Second", CorrectAnswer: "C", Points: 5, Order: 2},
	}
	require.NoError(t, db.Create(&questions).Error)

	loaded, err := repo.GetWithQuestions(context.Background(), exam.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Questions, 3)
	require.Equal(t, "First", loaded.Questions[0].Prompt)
	require.Equal(t, "Second", loaded.Questions[1].Prompt)
	require.Equal(t, "Third", loaded.Questions[2].Prompt)
}
