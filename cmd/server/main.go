package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alcyxob/lms-progress/internal/api"
	"github.com/alcyxob/lms-progress/internal/config"
	"github.com/alcyxob/lms-progress/internal/logger"
	"github.com/alcyxob/lms-progress/internal/repository/mongo"
	"github.com/alcyxob/lms-progress/internal/service"
	"github.com/alcyxob/lms-progress/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// @title LMS Progress API
// @version 1.0
// @description Video progress tracking, course completion and certificates.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		// No logger yet; zap's example logger is enough to report this.
		zap.NewExample().Fatal("Could not load config", zap.Error(err))
	}

	log := logger.New(cfg.Log)
	defer func() { _ = log.Sync() }()
	log.Info("Starting LMS progress server", zap.String("address", cfg.Server.Address))

	// --- Database Connection ---
	dbClient, err := mongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		log.Fatal("Could not connect to MongoDB", zap.Error(err))
	}
	defer func() {
		log.Info("Disconnecting MongoDB...")
		if err := mongo.DisconnectDB(dbClient); err != nil {
			log.Error("Failed to disconnect MongoDB", zap.Error(err))
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)
	log.Info("Database connection established", zap.String("database", cfg.Database.Name))

	// --- Ensure Indexes ---
	go func() { // Run index creation in background
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		if err := mongo.EnsureIndexes(ctx, appDB); err != nil {
			log.Error("Index creation failed", zap.Error(err))
			return
		}
		log.Info("Index creation process completed")
	}()

	// --- Initialize Storage ---
	// Certificate documents are optional; everything else works without S3.
	var fileStorage storage.FileStorage
	if cfg.S3.Endpoint != "" || cfg.S3.AccessKeyID != "" {
		storageCtx, storageCancel := context.WithTimeout(context.Background(), 10*time.Second)
		fileStorage, err = storage.NewS3Storage(storageCtx, cfg.S3, log)
		storageCancel()
		if err != nil {
			log.Warn("S3 storage unavailable, certificate documents disabled", zap.Error(err))
			fileStorage = nil
		}
	} else {
		log.Info("S3 not configured, certificate documents disabled")
	}

	// --- Rate Limiting ---
	var rateLimiter *api.RateLimiter
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn("Redis not reachable at startup, limiter will fail open", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		pingCancel()
		rateLimiter = api.NewRateLimiter(rdb, log.Named("ratelimit"))
	}

	// --- Initialize Repositories ---
	userRepo := mongo.NewMongoUserRepository(appDB)
	courseRepo := mongo.NewMongoCourseRepository(appDB)
	videoRepo := mongo.NewMongoVideoRepository(appDB)
	recordRepo := mongo.NewMongoViewingRecordRepository(appDB)
	certRepo := mongo.NewMongoCertificateRepository(appDB)

	// --- Initialize Services ---
	evaluator := service.NewCompletionEvaluator(videoRepo, recordRepo)
	certificateService := service.NewCertificateService(certRepo, userRepo, courseRepo, evaluator, fileStorage, log)
	progressService := service.NewProgressService(recordRepo, videoRepo, certificateService, log)
	sweepService := service.NewSweepService(videoRepo, recordRepo, certificateService, cfg.Sweep.Concurrency, log)

	// --- Scheduled Sweep ---
	if cfg.Sweep.Enabled {
		scheduler, err := service.NewSweepScheduler(sweepService, cfg.Sweep.Schedule, cfg.Sweep.Timeout, log)
		if err != nil {
			log.Fatal("Could not schedule reconciliation sweep", zap.Error(err))
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	// --- Initialize Gin Engine ---
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api.SetupRoutes(router, api.RouterDeps{
		JWTSecret:          cfg.JWT.Secret,
		AllowedOrigins:     cfg.CORS.AllowedOrigins,
		RequestTimeout:     cfg.Server.RequestTimeout,
		SweepTimeout:       cfg.Sweep.Timeout,
		ProgressPerMinute:  cfg.RateLimit.ProgressPerMinute,
		ProgressService:    progressService,
		Evaluator:          evaluator,
		CertificateService: certificateService,
		SweepService:       sweepService,
		RateLimiter:        rateLimiter,
		Logger:             log.Named("http"),
	})

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Sweep.Timeout + 10*time.Second, // Admin sweeps can run this long
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("ListenAndServe error", zap.Error(err))
		}
	}()
	log.Info("Server listening", zap.String("address", cfg.Server.Address))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exiting")
}
