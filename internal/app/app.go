package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/jtarrant/recfuse/internal/config"
	"github.com/jtarrant/recfuse/internal/database"
	"github.com/jtarrant/recfuse/internal/handlers"
	"github.com/jtarrant/recfuse/internal/middleware"
	"github.com/jtarrant/recfuse/internal/services"
	"github.com/jtarrant/recfuse/internal/validation"
	"github.com/jtarrant/recfuse/pkg/models"
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine

	rateLimit *services.RateLimitService

	consumerCtx    context.Context
	consumerCancel context.CancelFunc
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	svcs, err := services.New(cfg, app.logger, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svcs

	app.rateLimit = services.NewRateLimitService(&cfg.Server.RateLimit, app.logger, db.Redis)
	app.handlers = handlers.New(app.logger, svcs)

	if err := app.setupRouter(); err != nil {
		return nil, err
	}

	if err := svcs.Learning.Start(); err != nil {
		return nil, fmt.Errorf("failed to start learning buffer: %w", err)
	}

	app.startFeedbackConsumer()

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// startFeedbackConsumer drains the feedback topic into the sink, which
// fans each event out to the learning buffer, the candidate graph, and the
// rating log.
func (a *App) startFeedbackConsumer() {
	a.consumerCtx, a.consumerCancel = context.WithCancel(context.Background())

	go func() {
		err := a.services.FeedbackBus.Consume(a.consumerCtx, func(event models.FeedbackEvent) {
			a.services.Sink.Handle(a.consumerCtx, event)
		})
		if err != nil && a.consumerCtx.Err() == nil {
			a.logger.WithError(err).Error("Feedback consumer stopped")
		}
	}()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.consumerCancel != nil {
		a.consumerCancel()
	}

	a.services.Learning.Stop()

	if err := a.services.FeedbackBus.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing feedback bus")
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() error {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))
	router.Use(middleware.CompressionMiddleware())

	validator, err := validation.NewSchemaValidator()
	if err != nil {
		return fmt.Errorf("failed to build schema validator: %w", err)
	}
	validationMiddleware := middleware.NewValidationMiddleware(validator)

	// Health and metrics endpoints
	router.GET("/health", a.handlers.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1")
	{
		api.Use(middleware.RateLimit(a.rateLimit, a.logger))

		recommendations := api.Group("/recommendations")
		{
			recommendations.GET("/:userId", a.handlers.Recommendation.Get)
		}

		api.POST("/feedback", validationMiddleware.ValidateFeedbackEvent(), a.handlers.Feedback.Submit)
		api.PUT("/items/:itemId", a.handlers.Item.Upsert)

		learning := api.Group("/learning")
		{
			learning.POST("/trigger", a.handlers.Feedback.TriggerUpdate)
			learning.GET("/stats", a.handlers.Feedback.Stats)
		}

		experiments := api.Group("/experiments")
		{
			experiments.GET("", a.handlers.Experiment.List)
			experiments.GET("/:experimentId/assignment/:userId", a.handlers.Experiment.GetAssignment)
		}
	}

	a.router = router
	return nil
}
