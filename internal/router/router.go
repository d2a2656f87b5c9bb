package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/invigilo/invigilo-go-api/internal/config"
	"github.com/invigilo/invigilo-go-api/internal/handler"
	"github.com/invigilo/invigilo-go-api/internal/middleware"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AttemptHandler      *handler.AttemptHandler
	ProctoringHandler   *handler.ProctoringHandler
	GradingHandler      *handler.GradingHandler
	RankingHandler      *handler.RankingHandler
	IdentityHandler     *handler.IdentityHandler
	NotificationHandler *handler.NotificationHandler
	LiveFeedHandler     *handler.LiveFeedHandler
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	reviewerOnly := middleware.RequireRole("admin", "teacher")

	// Identity enrollment
	if deps.IdentityHandler != nil {
		identity := app.Group("/api/v1/identity", jwtMiddleware)
		deps.IdentityHandler.Register(identity)
	}

	// Attempt lifecycle. Student routes register before the reviewer groups:
	// group middlewares are prefix-wide, so a reviewer gate registered early
	// would also intercept later student routes on the same prefix.
	if deps.AttemptHandler != nil {
		attempts := app.Group("/api/v1/attempts", jwtMiddleware)
		deps.AttemptHandler.Register(attempts)
	}

	// Proctoring monitor
	if deps.ProctoringHandler != nil {
		proctoring := app.Group("/api/v1/attempts", jwtMiddleware)
		proctoring.Use(middleware.RateLimit("monitor", 120, time.Minute))
		deps.ProctoringHandler.Register(proctoring)
	}

	// Reviewer-only lock controls and incident review
	if deps.AttemptHandler != nil {
		attemptReview := app.Group("/api/v1/attempts", jwtMiddleware, reviewerOnly)
		deps.AttemptHandler.RegisterReviewer(attemptReview)
	}
	if deps.ProctoringHandler != nil {
		review := app.Group("/api/v1/attempts", jwtMiddleware, reviewerOnly)
		deps.ProctoringHandler.RegisterReviewer(review)
	}

	// Grading
	if deps.GradingHandler != nil {
		grading := app.Group("/api/v1/grading", jwtMiddleware, reviewerOnly)
		deps.GradingHandler.Register(grading)
	}

	// Rankings
	if deps.RankingHandler != nil {
		exams := app.Group("/api/v1/exams", jwtMiddleware)
		deps.RankingHandler.Register(exams)

		examReview := app.Group("/api/v1/exams", jwtMiddleware, reviewerOnly)
		deps.RankingHandler.RegisterReviewer(examReview)
	}

	// Notifications (SSE stream + inbox)
	if deps.NotificationHandler != nil {
		notifications := app.Group("/api/v1/notifications", jwtMiddleware)
		deps.NotificationHandler.Register(notifications)
	}

	// Live incident feed for reviewers
	if deps.LiveFeedHandler != nil {
		feed := app.Group("/api/v1/feed", jwtMiddleware, reviewerOnly)
		deps.LiveFeedHandler.Register(feed)
	}
}
