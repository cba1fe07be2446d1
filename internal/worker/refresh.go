package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"integration-school-portal/internal/config"
	"integration-school-portal/internal/db"
	"integration-school-portal/internal/logger"
	"integration-school-portal/internal/model"
	"integration-school-portal/internal/queue"
	perrors "integration-school-portal/pkg/errors"

	"github.com/rs/zerolog"
)

// Retriever is the part of the retrieval service a refresh needs.
type Retriever interface {
	RetrieveStored(ctx context.Context, week time.Time) (*model.RetrievalResult, error)
}

// RefreshWorker consumes refresh jobs, runs a retrieval with the stored
// credentials and saves the result as a snapshot. Jobs that fail on the
// pool are moved to the dead-letter queue.
type RefreshWorker struct {
	service    Retriever
	repo       db.Repository
	consumer   *queue.Consumer
	workerPool *WorkerPool
	log        zerolog.Logger
}

func NewRefreshWorker(
	cfg *config.Config,
	service Retriever,
	repo db.Repository,
	redisClient *queue.RedisClient,
) *RefreshWorker {
	return &RefreshWorker{
		service:    service,
		repo:       repo,
		consumer:   queue.NewConsumer(redisClient, cfg.Redis.RefreshQueue, cfg.Redis.DLQSuffix),
		workerPool: NewWorkerPool("refresh", cfg.Workers.Refresh),
		log:        logger.For("refresh-worker"),
	}
}

func (w *RefreshWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting refresh worker")

	w.workerPool.Start(ctx)

	return w.consumer.Consume(ctx, w.handleMessage)
}

func (w *RefreshWorker) Stop() {
	w.log.Info().Msg("Stopping refresh worker")
	w.workerPool.Stop()
}

func (w *RefreshWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.RefreshJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal refresh job")
		return err
	}
	if job.WeekStart != "" {
		if _, err := model.ParseWeek(job.WeekStart); err != nil {
			w.log.Error().Err(err).Str("job_id", job.ID).Msg("Refresh job has invalid week")
			return err
		}
	}

	w.log.Info().
		Str("job_id", job.ID).
		Str("week", job.WeekStart).
		Msg("Processing refresh job")

	if !w.workerPool.Submit(func(ctx context.Context) error {
		_, err := w.Process(ctx, job)
		if err != nil {
			// Shutdown must not lose the message.
			dlqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			w.consumer.DeadLetter(dlqCtx, data)
		}
		return err
	}) {
		return fmt.Errorf("refresh job %s not scheduled", job.ID)
	}
	return nil
}

// Process runs one refresh and returns the stored snapshot.
func (w *RefreshWorker) Process(ctx context.Context, job model.RefreshJob) (*model.Snapshot, error) {
	var week time.Time
	if job.WeekStart != "" {
		parsed, err := model.ParseWeek(job.WeekStart)
		if err != nil {
			return nil, err
		}
		week = parsed
	}

	result, err := w.service.RetrieveStored(ctx, week)
	if err != nil {
		w.log.Warn().
			Err(err).
			Str("job_id", job.ID).
			Bool("retryable", perrors.IsRetryable(err)).
			Msg("Refresh retrieval failed")
		return nil, err
	}

	snapshot := model.NewSnapshot(result.Identifier, result)
	id, err := w.repo.SaveSnapshot(ctx, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	w.log.Info().
		Str("job_id", job.ID).
		Int64("snapshot_id", id).
		Interface("status", result.Status).
		Msg("Refresh job completed")
	return snapshot, nil
}
