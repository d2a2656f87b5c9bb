package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-go-api/internal/middleware"
	"github.com/invigilo/invigilo-go-api/internal/service"
)

// LiveFeedHandler wires the websocket upgrade for the incident feed.
type LiveFeedHandler struct {
	service service.LiveFeedService
	logger  zerolog.Logger
}

// NewLiveFeedHandler creates a live feed handler instance.
func NewLiveFeedHandler(service service.LiveFeedService, logger zerolog.Logger) *LiveFeedHandler {
	return &LiveFeedHandler{
		service: service,
		logger:  logger.With().Str("component", "live_feed_handler").Logger(),
	}
}

// Register binds the feed routes under the provided router group.
func (h *LiveFeedHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			ctx := c.UserContext()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
			c.Locals("request_ctx", ctx)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *LiveFeedHandler) handleConnection(conn *websocket.Conn) {
	userID := websocketUserID(conn)
	if userID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusUnauthorized, "user id missing"))
		_ = conn.Close()
		return
	}

	examRaw := strings.TrimSpace(conn.Query("exam_id"))
	examID, err := strconv.ParseUint(examRaw, 10, 64)
	if err != nil || examID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusBadRequest, "exam_id required"))
		_ = conn.Close()
		return
	}

	role := fmt.Sprint(conn.Locals("user_role"))
	correlation := fmt.Sprint(conn.Locals("correlation_id"))
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)

	opts := service.FeedConnectionOptions{
		UserID:        userID,
		Role:          role,
		ExamID:        uint(examID),
		CorrelationID: correlation,
		Context:       baseCtx,
	}

	h.logger.Info().Str("user_id", userID).Uint("exam_id", uint(examID)).Msg("feed websocket connected")
	h.service.ServeConnection(conn, opts)
	h.logger.Info().Str("user_id", userID).Uint("exam_id", uint(examID)).Msg("feed websocket disconnected")
}

func websocketUserID(conn *websocket.Conn) string {
	if value := conn.Locals("user_id"); value != nil {
		switch v := value.(type) {
		case float64:
			return fmt.Sprintf("%d", uint(v))
		case uint:
			return fmt.Sprintf("%d", v)
		case int:
			return fmt.Sprintf("%d", v)
		case string:
			return strings.TrimSpace(v)
		}
	}
	return ""
}
