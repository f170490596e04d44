package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adaptix-edu/exam-service/internal/ai"
	"github.com/adaptix-edu/exam-service/internal/cache"
	"github.com/adaptix-edu/exam-service/internal/config"
	"github.com/adaptix-edu/exam-service/internal/grading"
	"github.com/adaptix-edu/exam-service/internal/handlers"
	"github.com/adaptix-edu/exam-service/internal/repositories/postgres"
	"github.com/adaptix-edu/exam-service/internal/services"
	"github.com/adaptix-edu/exam-service/internal/utils"
	"github.com/adaptix-edu/exam-service/pkg"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Exit(1)
	}

	var logger utils.Logger
	if cfg.Environment == "development" {
		logger = utils.NewDevelopmentLogger()
	} else {
		logger = utils.NewDefaultLogger()
		gin.SetMode(gin.ReleaseMode)
	}
	slogLogger := utils.ToSlogLogger(logger)

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := pkg.Migrate(db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	redisClient, err := pkg.NewRedisClient(cfg)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	publisher, err := cfg.Events.CreateEventPublisher(slogLogger)
	if err != nil {
		logger.Error("failed to create event publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	repo := postgres.NewRepository(db)
	cacheService := cache.NewRedisCache(redisClient, slogLogger)
	validator := utils.NewValidator()
	clock := services.SystemClock()

	embeddings := ai.NewOpenAIEmbeddingClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.GradingTimeout)
	ocr := ai.NewTesseractOCR(cfg.OCRLanguage)
	grader := grading.NewGrader(embeddings, ocr, cfg.Policy, cfg.GradingTimeout, slogLogger)

	examService := services.NewExamService(repo, cacheService, validator, slogLogger)
	sessionService := services.NewSessionService(repo, grader, cfg.Policy, publisher, clock, slogLogger)
	reviewService := services.NewReviewService(repo, validator, publisher, clock, slogLogger)
	exportService := services.NewExportService(repo, examService, slogLogger)
	analyticsService := services.NewAnalyticsService(repo, clock, slogLogger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.LoggerMiddleware(logger))

	handlerManager := handlers.NewHandlerManager(
		examService,
		sessionService,
		reviewService,
		exportService,
		analyticsService,
		validator,
		logger,
	)
	handlerManager.SetupRoutes(router)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("Starting exam service", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
}
