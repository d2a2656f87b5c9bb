package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-go-api/internal/config"
	"github.com/invigilo/invigilo-go-api/internal/database"
	"github.com/invigilo/invigilo-go-api/internal/handler"
	"github.com/invigilo/invigilo-go-api/internal/middleware"
	"github.com/invigilo/invigilo-go-api/internal/models"
	"github.com/invigilo/invigilo-go-api/internal/repository"
	"github.com/invigilo/invigilo-go-api/internal/router"
	"github.com/invigilo/invigilo-go-api/internal/service"
	"github.com/invigilo/invigilo-go-api/pkg/ai"
	cloud "github.com/invigilo/invigilo-go-api/pkg/cloudinary"
	"github.com/invigilo/invigilo-go-api/pkg/verifier"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Student{},
		&models.Enrollment{},
		&models.Exam{},
		&models.Question{},
		&models.ExamAttempt{},
		&models.ExamAnswer{},
		&models.ProctoringIncident{},
		&models.ExamRanking{},
		&models.Notification{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	verifierClient, err := verifier.NewClient(verifier.Config{
		BaseURL: cfg.VerifierBaseURL,
		Timeout: cfg.VerifierTimeout,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("failed to create verifier client: %v", err)
	}

	var uploader service.FileUploader
	if cfg.CloudinaryCloudName != "" {
		cloudService, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		uploader = cloudService
	}

	var summarizer service.ReportSummarizer
	if cfg.OpenAIAPIKey != "" {
		model, err := ai.NewOpenAISummarizer(ai.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
			Logger: logger,
		})
		if err != nil {
			log.Fatalf("failed to create report summarizer: %v", err)
		}
		summarizer = service.NewAISummarizer(model)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	studentRepo := repository.NewStudentRepository(db)
	examRepo := repository.NewExamRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	answerRepo := repository.NewAnswerRepository(db)
	incidentRepo := repository.NewIncidentRepository(db)
	rankingRepo := repository.NewRankingRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	notificationService := service.NewNotificationService(notificationRepo, redisClient, cfg.ChannelBase, natsConn, validate, logger)
	liveFeedService := service.NewLiveFeedService(redisClient, cfg.ChannelBase, natsConn, logger)
	identityService := service.NewIdentityService(studentRepo, verifierClient, validate, logger)
	proctoringService := service.NewProctoringService(attemptRepo, incidentRepo, verifierClient, uploader, summarizer, liveFeedService, validate, logger)
	rankingService := service.NewRankingService(examRepo, attemptRepo, rankingRepo, notificationService, redisClient, cfg.RankingCacheTTL, cfg.RankingBatchSize, validate, logger)
	gradingService := service.NewGradingService(attemptRepo, answerRepo, notificationService, rankingService, validate, logger)
	attemptService := service.NewAttemptService(attemptRepo, examRepo, studentRepo, incidentRepo, verifierClient, gradingService, validate, logger)

	attemptHandler := handler.NewAttemptHandler(attemptService, validate, logger)
	proctoringHandler := handler.NewProctoringHandler(proctoringService, validate, logger)
	gradingHandler := handler.NewGradingHandler(gradingService, validate, logger)
	rankingHandler := handler.NewRankingHandler(rankingService, validate, logger)
	identityHandler := handler.NewIdentityHandler(identityService, validate, logger)
	notificationHandler := handler.NewNotificationHandler(notificationService, logger, 30*time.Second)
	liveFeedHandler := handler.NewLiveFeedHandler(liveFeedService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AttemptHandler:      attemptHandler,
		ProctoringHandler:   proctoringHandler,
		GradingHandler:      gradingHandler,
		RankingHandler:      rankingHandler,
		IdentityHandler:     identityHandler,
		NotificationHandler: notificationHandler,
		LiveFeedHandler:     liveFeedHandler,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationService.Start(runCtx)
	liveFeedService.Start(runCtx)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-runCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
