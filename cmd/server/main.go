// Package main runs the event registration HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-events/backend/config"
	"github.com/aura-events/backend/internal/auth"
	"github.com/aura-events/backend/internal/events"
	"github.com/aura-events/backend/internal/middleware"
	"github.com/aura-events/backend/internal/models"
	"github.com/aura-events/backend/internal/moderation"
	"github.com/aura-events/backend/internal/notify"
	"github.com/aura-events/backend/internal/registrations"
	"github.com/aura-events/backend/internal/stats"
	"github.com/aura-events/backend/internal/store"
	"github.com/aura-events/backend/internal/store/postgres"
	"github.com/aura-events/backend/internal/store/sqlite"
	"github.com/aura-events/backend/internal/users"
	"github.com/aura-events/backend/internal/worker"
	"github.com/aura-events/backend/pkg/database"
	"github.com/aura-events/backend/pkg/mailer"
	"github.com/aura-events/backend/pkg/queue"
	"github.com/aura-events/backend/pkg/redis"
	"github.com/aura-events/backend/pkg/response"
	"github.com/aura-events/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer st.Close()

	authRepo := auth.NewRepository(st)
	if cfg.Admin.Email != "" {
		created, err := authRepo.EnsureAdmin(ctx, cfg.Admin.Name, cfg.Admin.Email, cfg.Admin.Password)
		if err != nil {
			logger.Fatal("seed admin", zap.Error(err))
		}
		if created {
			logger.Info("admin account created", zap.String("email", cfg.Admin.Email))
		}
	}

	// Notifications go through the Redis email queue when it is configured.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		jobQueue := queue.NewQueue(rdb.Client, logger)
		notifier = notify.NewQueueNotifier(jobQueue)

		if cfg.Email.InlineWorker {
			processor := worker.NewEmailProcessor(jobQueue, newSender(cfg.Email, logger), cfg.Email.From(), logger)
			go processor.Run(workerCtx)
		}
	} else {
		logger.Warn("REDIS_ADDR not set, notifications are only logged")
	}

	var images events.ImageStore
	if cfg.AWS.EventImagesBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			ImagesBucket:    cfg.AWS.EventImagesBucket,
			Endpoint:        cfg.AWS.S3Endpoint,
			PublicRead:      cfg.AWS.PublicRead,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			images = s3Client
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	eventSvc := events.NewService(st, images, notifier, cfg.App.MaxEventCapacity, logger)
	eventHandler := events.NewHandler(eventSvc, cfg.App.MaxImageBytes, logger)

	registrationSvc := registrations.NewService(st, notifier, logger)
	registrationHandler := registrations.NewHandler(registrationSvc, logger)

	moderationSvc := moderation.NewService(st, notifier, logger)
	moderationHandler := moderation.NewHandler(moderationSvc, logger)

	statsHandler := stats.NewHandler(stats.NewService(st, logger))

	userHandler := users.NewHandler(users.NewService(st, images, logger), logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/signup", authHandler.Signup)
		authGroup.POST("/login", authHandler.Login)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Events
		api.GET("/events", eventHandler.List)
		api.POST("/events", middleware.RequireRole(models.RoleOrganizer), eventHandler.Create)
		api.GET("/events/:id", eventHandler.Get)
		api.PATCH("/events/:id", middleware.RequireRole(models.RoleOrganizer), eventHandler.Update)
		api.DELETE("/events/:id", middleware.RequireRole(models.RoleOrganizer), eventHandler.Delete)
		api.POST("/events/:id/image", middleware.RequireRole(models.RoleOrganizer), eventHandler.UploadImage)
		api.GET("/events/:id/attendees", middleware.RequireRole(models.RoleOrganizer, models.RoleAdmin), eventHandler.Attendees)

		// Registrations
		api.POST("/events/:id/register", middleware.RequireRole(models.RoleAttendee), registrationHandler.Register)
		api.DELETE("/events/:id/register", middleware.RequireRole(models.RoleAttendee), registrationHandler.Cancel)
		api.GET("/me/reservations", middleware.RequireRole(models.RoleAttendee), registrationHandler.Mine)
	}

	// Admin
	admin := api.Group("/admin")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/events", moderationHandler.Queue)
		admin.POST("/events/:id/approve", moderationHandler.Approve)
		admin.POST("/events/:id/reject", moderationHandler.Reject)
		admin.GET("/stats", statsHandler.Summary)
		admin.GET("/users", userHandler.List)
		admin.PATCH("/users/:id/role", userHandler.ChangeRole)
		admin.DELETE("/users/:id", userHandler.Delete)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("driver", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (store.Store, error) {
	if cfg.Driver == config.DriverSQLite {
		return sqlite.Open(ctx, cfg.SQLitePath, logger)
	}
	pool, err := database.NewPostgresPool(ctx, cfg.DSN(), cfg.MaxConns, logger)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return postgres.New(pool), nil
}

func newSender(cfg config.EmailConfig, logger *zap.Logger) mailer.Sender {
	if cfg.ResendAPIKey == "" {
		logger.Warn("RESEND_API_KEY not set, emails are only logged")
		return mailer.NewLogSender(logger)
	}
	return mailer.NewResendSender(cfg.ResendAPIKey, cfg.From(), logger)
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
