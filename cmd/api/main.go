package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"integration-school-portal/internal/api"
	"integration-school-portal/internal/cache"
	"integration-school-portal/internal/config"
	"integration-school-portal/internal/db"
	"integration-school-portal/internal/logger"
	"integration-school-portal/internal/queue"
	"integration-school-portal/internal/retrieval"
	"integration-school-portal/internal/storage"
	"integration-school-portal/internal/vault"
	"integration-school-portal/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting API server")

	// Redis backs the refresh queue and, when selected, the vault and cache
	needsRedis := cfg.Vault.Backend == "redis" || cfg.Cache.Backend == "redis"
	redisClient, err := queue.NewRedisClient(cfg)
	if err != nil {
		if needsRedis {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		log.Warn().Err(err).Msg("Redis unavailable, refresh queue disabled")
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	// Snapshots are optional
	var (
		repo     db.Repository
		database *sql.DB
	)
	if cfg.Database.Name != "" {
		database, err = db.NewConnection(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer database.Close()
		repo = db.NewRepository(database)
	}

	store, err := storage.New(cfg, redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize vault storage")
	}
	timetableCache, err := cache.New(cfg, redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize timetable cache")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Prefetches run in the background on their own pool
	prefetchPool := worker.NewWorkerPool("prefetch", cfg.Workers.Prefetch)
	prefetchPool.Start(ctx)

	service := retrieval.NewService(cfg, vault.New(store, cfg.Vault), timetableCache, prefetchPool)

	var producer api.JobQueue
	if redisClient != nil {
		producer = queue.NewProducer(redisClient, cfg.Redis.RefreshQueue)
	}

	// Initialize API handler
	handler := api.NewHandler(service, repo, producer, cfg)
	if redisClient != nil {
		handler.WithHealthCheck("redis", redisClient.Ping)
	}
	if database != nil {
		handler.WithHealthCheck("mysql", database.PingContext)
	}

	// Setup Gin router
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(handler)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	cancel()
	prefetchPool.Stop()

	log.Info().Msg("Server exited")
}
