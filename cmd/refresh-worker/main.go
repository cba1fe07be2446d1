package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"integration-school-portal/internal/cache"
	"integration-school-portal/internal/config"
	"integration-school-portal/internal/db"
	"integration-school-portal/internal/logger"
	"integration-school-portal/internal/queue"
	"integration-school-portal/internal/retrieval"
	"integration-school-portal/internal/storage"
	"integration-school-portal/internal/vault"
	"integration-school-portal/internal/worker"
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

	log.Info().Str("version", cfg.App.Version).Msg("Starting refresh worker")

	// Initialize database
	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	if err := db.Migrate(context.Background(), database); err != nil {
		log.Fatal().Err(err).Msg("Failed to create snapshot tables")
	}

	// Initialize repository
	repo := db.NewRepository(database)

	// Initialize Redis client
	redisClient, err := queue.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	store, err := storage.New(cfg, redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize vault storage")
	}
	timetableCache, err := cache.New(cfg, redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize timetable cache")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prefetchPool := worker.NewWorkerPool("prefetch", cfg.Workers.Prefetch)
	prefetchPool.Start(ctx)

	service := retrieval.NewService(cfg, vault.New(store, cfg.Vault), timetableCache, prefetchPool)

	// Create refresh worker
	refreshWorker := worker.NewRefreshWorker(cfg, service, repo, redisClient)

	// Start worker
	go func() {
		if err := refreshWorker.Start(ctx); err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("Refresh worker failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down refresh worker...")

	// Cancel context to stop worker
	cancel()
	refreshWorker.Stop()
	prefetchPool.Stop()

	log.Info().Msg("Refresh worker exited")
}
