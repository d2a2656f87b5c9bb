package service

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/invigilo/invigilo-go-api/internal/dto"
	"github.com/invigilo/invigilo-go-api/internal/models"
	"github.com/invigilo/invigilo-go-api/pkg/verifier"
)

func identityFixture(oracle verifier.Verifier) (IdentityService, *fakeStudentRepo) {
	students := &fakeStudentRepo{students: map[uint]models.Student{
		5: {ID: 5, Name: "Amina", Email: "amina@example.com"},
	}}
	validate := validator.New(validator.WithRequiredStructEnabled())
	return NewIdentityService(students, oracle, validate, testLogger()), students
}

func TestIdentityRegisterStoresReference(t *testing.T) {
	oracle := verifier.NewStatic(0.9, 0.75)
	svc, students := identityFixture(oracle)

	resp, err := svc.Register(context.Background(), dto.IdentityRegisterRequest{StudentID: 5}, pngFrame())
	require.NoError(t, err)
	require.Equal(t, uint(5), resp.StudentID)
	require.Equal(t, "ref-student-5", resp.ReferenceID)
	require.False(t, resp.VerifiedAt.IsZero())

	stored := students.students[5]
	require.True(t, stored.HasRegisteredIdentity())
	require.Equal(t, "ref-student-5", *stored.FaceReferenceID)
	require.NotNil(t, stored.FaceVerifiedAt)
	require.Equal(t, 1, students.updates)
}

func TestIdentityRegisterRejectsNonImageFrame(t *testing.T) {
	oracle := verifier.NewStatic(0.9, 0.75)
	svc, _ := identityFixture(oracle)

	_, err := svc.Register(context.Background(), dto.IdentityRegisterRequest{StudentID: 5}, verifier.Frame{Name: "face.txt", Content: []byte("definitely not an image")})
	require.ErrorIs(t, err, ErrInvalidFrame)

	_, err = svc.Register(context.Background(), dto.IdentityRegisterRequest{StudentID: 5}, verifier.Frame{Name: "empty.png"})
	require.ErrorIs(t, err, ErrInvalidFrame)
}

func TestIdentityRegisterUnknownStudent(t *testing.T) {
	oracle := verifier.NewStatic(0.9, 0.75)
	svc, _ := identityFixture(oracle)

	_, err := svc.Register(context.Background(), dto.IdentityRegisterRequest{StudentID: 404}, pngFrame())
	require.ErrorIs(t, err, ErrStudentNotFound)
}

func TestIdentityRegisterOracleFailure(t *testing.T) {
	oracle := verifier.NewStatic(0.9, 0.75)
	oracle.Err = errors.New("oracle down")
	svc, students := identityFixture(oracle)

	_, err := svc.Register(context.Background(), dto.IdentityRegisterRequest{StudentID: 5}, pngFrame())
	require.ErrorIs(t, err, ErrVerificationFailed)
	require.Zero(t, students.updates)
}
