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

// IdentityHandler exposes the identity enrollment endpoint.
type IdentityHandler struct {
	service   service.IdentityService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewIdentityHandler constructs the handler.
func NewIdentityHandler(service service.IdentityService, validator *validator.Validate, logger zerolog.Logger) *IdentityHandler {
	return &IdentityHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "identity_handler").Logger(),
	}
}

// Register attaches the identity routes.
func (h *IdentityHandler) Register(router fiber.Router) {
	router.Post("/register", h.register)
}

func (h *IdentityHandler) register(c *fiber.Ctx) error {
	var payload dto.IdentityRegisterRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if payload.StudentID == 0 {
		payload.StudentID = userIDFromContext(c)
	}

	frame, err := readFrame(c, "frame", true)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Register(c.Context(), payload, frame)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "identity registered", result)
}

func (h *IdentityHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrStudentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidFrame):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrVerificationFailed):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
