package handler

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-go-api/internal/dto"
	"github.com/invigilo/invigilo-go-api/internal/service"
	"github.com/invigilo/invigilo-go-api/internal/utils"
)

// AttemptHandler wires exam attempt HTTP routes.
type AttemptHandler struct {
	service   service.AttemptService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAttemptHandler constructs the handler.
func NewAttemptHandler(service service.AttemptService, validator *validator.Validate, logger zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "attempt_handler").Logger(),
	}
}

// Register attaches attempt endpoints to the router group.
func (h *AttemptHandler) Register(router fiber.Router) {
	router.Post("/start", h.start)
	router.Get("/:id", h.get)
	router.Post("/:id/submit", h.submit)
}

// RegisterReviewer attaches the reviewer-only lock controls.
func (h *AttemptHandler) RegisterReviewer(router fiber.Router) {
	router.Post("/:id/lock", h.lock)
	router.Post("/:id/unlock", h.unlock)
}

func (h *AttemptHandler) start(c *fiber.Ctx) error {
	payload := dto.StartAttemptRequest{}
	if examID, err := strconv.ParseUint(c.FormValue("exam_id"), 10, 64); err == nil {
		payload.ExamID = uint(examID)
	}
	payload.StudentID = userIDFromContext(c)
	if payload.StudentID == 0 {
		if studentID, err := strconv.ParseUint(c.FormValue("student_id"), 10, 64); err == nil {
			payload.StudentID = uint(studentID)
		}
	}

	frame, err := readFrame(c, "frame", true)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.service.Start(c.Context(), payload, frame)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "attempt started", response)
}

func (h *AttemptHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	attempt, err := h.service.Get(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attempt retrieved", attempt)
}

func (h *AttemptHandler) submit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SubmitAttemptRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if payload.StudentID == 0 {
		payload.StudentID = userIDFromContext(c)
	}

	attempt, err := h.service.Submit(c.Context(), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attempt submitted", attempt)
}

func (h *AttemptHandler) lock(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.LockAttemptRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	attempt, err := h.service.Lock(c.Context(), id, payload.Reason)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attempt locked", attempt)
}

func (h *AttemptHandler) unlock(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	attempt, err := h.service.Unlock(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attempt unlocked", attempt)
}

func (h *AttemptHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrExamNotFound),
		errors.Is(err, service.ErrStudentNotFound),
		errors.Is(err, service.ErrAttemptNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrExamClosed),
		errors.Is(err, service.ErrMaxAttemptsExceeded),
		errors.Is(err, service.ErrAttemptNotInProgress),
		errors.Is(err, service.ErrAttemptNotLocked),
		errors.Is(err, service.ErrIdentityNotRegistered):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNotEnrolled),
		errors.Is(err, service.ErrStudentMismatch):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrVerificationFailed):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
