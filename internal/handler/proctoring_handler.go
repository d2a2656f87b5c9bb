package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-go-api/internal/dto"
	"github.com/invigilo/invigilo-go-api/internal/service"
	"github.com/invigilo/invigilo-go-api/internal/utils"
)

const defaultIncidentLimit = 50

// ProctoringHandler wires the monitoring tick and incident review routes.
type ProctoringHandler struct {
	service   service.ProctoringService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewProctoringHandler constructs the handler.
func NewProctoringHandler(service service.ProctoringService, validator *validator.Validate, logger zerolog.Logger) *ProctoringHandler {
	return &ProctoringHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "proctoring_handler").Logger(),
	}
}

// Register attaches the student-facing monitor endpoint.
func (h *ProctoringHandler) Register(router fiber.Router) {
	router.Post("/:id/monitor", h.monitor)
}

// RegisterReviewer attaches the reviewer-only incident endpoints.
func (h *ProctoringHandler) RegisterReviewer(router fiber.Router) {
	router.Get("/:id/incidents", h.incidents)
	router.Get("/:id/report", h.report)
	router.Post("/:id/message", h.message)
	router.Post("/:id/flag", h.flag)
}

func (h *ProctoringHandler) monitor(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	frame, err := readFrame(c, "frame", true)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.service.Monitor(c.Context(), id, frame)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "monitor tick processed", response)
}

func (h *ProctoringHandler) incidents(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	if limit <= 0 {
		limit = defaultIncidentLimit
	}

	incidents, err := h.service.ListIncidents(c.Context(), id, limit)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "incidents retrieved", incidents)
}

func (h *ProctoringHandler) report(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	report, err := h.service.Report(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "proctoring report", report)
}

func (h *ProctoringHandler) message(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ReviewerMessageRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	incident, err := h.service.ReviewerMessage(c.Context(), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message recorded", incident)
}

func (h *ProctoringHandler) flag(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.FlagAttemptRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	incident, err := h.service.Flag(c.Context(), id, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "attempt flagged", incident)
}

func (h *ProctoringHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrAttemptNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrAttemptNotInProgress),
		errors.Is(err, service.ErrNoVerificationSession):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidFrame):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
