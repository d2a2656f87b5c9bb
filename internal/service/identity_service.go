package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/invigilo/invigilo-go-api/internal/dto"
	"github.com/invigilo/invigilo-go-api/internal/repository"
	"github.com/invigilo/invigilo-go-api/pkg/verifier"
)

// IdentityService enrolls student reference faces with the verification oracle.
type IdentityService interface {
	Register(ctx context.Context, payload dto.IdentityRegisterRequest, frame verifier.Frame) (dto.IdentityRegisterResponse, error)
}

type identityService struct {
	students  repository.StudentRepository
	verifier  verifier.Verifier
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewIdentityService builds the identity enrollment service.
func NewIdentityService(students repository.StudentRepository, v verifier.Verifier, validate *validator.Validate, logger zerolog.Logger) IdentityService {
	return &identityService{
		students:  students,
		verifier:  v,
		validator: validate,
		logger:    logger.With().Str("component", "identity_service").Logger(),
		now:       time.Now,
	}
}

// Register enrolls the student's reference face. Re-registration replaces
// the stored reference so a student can refresh an outdated photo.
func (s *identityService) Register(ctx context.Context, payload dto.IdentityRegisterRequest, frame verifier.Frame) (dto.IdentityRegisterResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.IdentityRegisterResponse{}, err
	}

	if len(frame.Content) == 0 {
		return dto.IdentityRegisterResponse{}, ErrInvalidFrame
	}
	if kind := mimetype.Detect(frame.Content); !strings.HasPrefix(kind.String(), "image/") {
		return dto.IdentityRegisterResponse{}, ErrInvalidFrame
	}

	student, err := s.students.GetByID(ctx, payload.StudentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.IdentityRegisterResponse{}, ErrStudentNotFound
		}
		return dto.IdentityRegisterResponse{}, err
	}

	registration, err := s.verifier.RegisterIdentity(ctx, fmt.Sprintf("student-%d", student.ID), frame, verifier.IdentityMetadata{
		Name:  student.Name,
		Email: student.Email,
	})
	if err != nil {
		var apiErr *verifier.APIError
		if errors.As(err, &apiErr) {
			return dto.IdentityRegisterResponse{}, fmt.Errorf("%w: %s", ErrVerificationFailed, apiErr.Detail)
		}
		return dto.IdentityRegisterResponse{}, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	verifiedAt := s.now()
	student.FaceReferenceID = &registration.ReferenceID
	student.FaceVerifiedAt = &verifiedAt
	if err := s.students.Update(ctx, &student); err != nil {
		return dto.IdentityRegisterResponse{}, err
	}

	s.logger.Info().Uint("student_id", student.ID).Msg("identity registered")

	return dto.IdentityRegisterResponse{
		StudentID:   student.ID,
		ReferenceID: registration.ReferenceID,
		VerifiedAt:  verifiedAt,
	}, nil
}
