package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-go-api/internal/dto"
	"github.com/invigilo/invigilo-go-api/internal/service"
	"github.com/invigilo/invigilo-go-api/internal/utils"
)

// RankingHandler wires the ranking board routes.
type RankingHandler struct {
	service   service.RankingService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewRankingHandler constructs the handler.
func NewRankingHandler(service service.RankingService, validator *validator.Validate, logger zerolog.Logger) *RankingHandler {
	return &RankingHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "ranking_handler").Logger(),
	}
}

// Register attaches the public board route.
func (h *RankingHandler) Register(router fiber.Router) {
	router.Get("/:id/rankings", h.board)
}

// RegisterReviewer attaches the recalculation trigger.
func (h *RankingHandler) RegisterReviewer(router fiber.Router) {
	router.Post("/:id/rankings/recalculate", h.recalculate)
}

func (h *RankingHandler) board(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	filter := dto.RankingFilterRequest{
		Scope: strings.ToLower(strings.TrimSpace(c.Query("scope"))),
	}
	if district := strings.TrimSpace(c.Query("district")); district != "" {
		filter.District = &district
	}
	if zone := strings.TrimSpace(c.Query("zone")); zone != "" {
		filter.Zone = &zone
	}

	board, err := h.service.Board(c.Context(), id, filter)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "ranking board", board)
}

func (h *RankingHandler) recalculate(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.Recalculate(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "rankings recalculated", result)
}

func (h *RankingHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrExamNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrRankingDisabled):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
