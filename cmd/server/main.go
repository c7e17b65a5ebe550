// Package main runs the NGO directory HTTP server with graceful shutdown.
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

	"github.com/good-deed-map/backend/config"
	"github.com/good-deed-map/backend/internal/auth"
	"github.com/good-deed-map/backend/internal/catalog"
	"github.com/good-deed-map/backend/internal/middleware"
	"github.com/good-deed-map/backend/internal/moderation"
	"github.com/good-deed-map/backend/internal/notifications"
	"github.com/good-deed-map/backend/internal/organizations"
	"github.com/good-deed-map/backend/pkg/database"
	"github.com/good-deed-map/backend/pkg/queue"
	"github.com/good-deed-map/backend/pkg/redis"
	"github.com/good-deed-map/backend/pkg/response"
	"github.com/good-deed-map/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			LogosBucket:          cfg.AWS.LogosBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Accounts
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Reference data
	catalogRepo := catalog.NewRepository(pool)
	catalogHandler := catalog.NewHandler(catalogRepo, logger)

	// Public directory and logos
	dirRepo := organizations.NewRepository(pool)
	dirHandler := organizations.NewHandler(dirRepo, s3Client, logger)

	// Moderation: applications, versions, decisions
	jobQueue := queue.NewQueue(rdb.Client, logger)
	dispatcher := notifications.NewQueueDispatcher(jobQueue)
	moderationStore := moderation.NewPGStore(pool)
	// a typed nil must not reach the interface value
	var logoStore moderation.LogoStore
	if s3Client != nil {
		logoStore = s3Client
	}
	moderationService := moderation.NewService(moderationStore, authRepo, dispatcher, logoStore, logger)
	moderationHandler := moderation.NewHandler(moderationService, logger)
	notificationsHandler := notifications.NewHandler(notifications.NewRepository(pool), logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Public directory: the map and listing pages need no account
	public := router.Group("")
	catalogHandler.RegisterRoutes(public)

	authed := router.Group("")
	authed.Use(middleware.JWT(jwtService))
	dirHandler.RegisterRoutes(public, authed)

	admin := router.Group("")
	admin.Use(middleware.JWT(jwtService), middleware.RequireRole("admin"))
	admin.GET("/users", authHandler.List)
	moderationHandler.RegisterRoutes(authed, admin)
	notificationsHandler.RegisterRoutes(admin)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
