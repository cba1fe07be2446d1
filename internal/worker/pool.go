package worker

import (
	"context"
	"fmt"
	"sync"

	"integration-school-portal/internal/config"
	"integration-school-portal/internal/logger"

	"github.com/rs/zerolog"
)

type Job func(context.Context) error

type WorkerPool struct {
	name        string
	workerCount int
	jobChan     chan Job
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
	log         zerolog.Logger
}

func NewWorkerPool(name string, cfg config.PoolConfig) *WorkerPool {
	count := cfg.Count
	if count <= 0 {
		count = 1
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = count * 2
	}
	return &WorkerPool{
		name:        name,
		workerCount: count,
		jobChan:     make(chan Job, size),
		log:         logger.For("worker-pool").With().Str("pool", name).Logger(),
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	wp.log.Info().Int("worker_count", wp.workerCount).Msg("Starting worker pool")

	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Stop closes the queue and waits for queued jobs to finish. Safe to call
// more than once.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.log.Info().Msg("Stopping worker pool")
	wp.closed = true
	close(wp.jobChan)
	wp.mu.Unlock()

	wp.wg.Wait()
	wp.log.Info().Msg("Worker pool stopped")
}

// Submit queues job without blocking. It reports false when the queue is
// full or the pool is stopped.
func (wp *WorkerPool) Submit(job func(context.Context) error) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		wp.log.Warn().Msg("Worker pool stopped, job dropped")
		return false
	}
	select {
	case wp.jobChan <- job:
		return true
	default:
		wp.log.Warn().Msg("Worker pool job queue full, job dropped")
		return false
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	log := wp.log.With().Int("worker_id", id).Logger()
	log.Debug().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Worker stopping due to context cancellation")
			return
		case job, ok := <-wp.jobChan:
			if !ok {
				log.Debug().Msg("Worker stopping due to closed job channel")
				return
			}

			if err := run(ctx, job); err != nil {
				log.Error().Err(err).Msg("Job execution failed")
			}
		}
	}
}

func run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job(ctx)
}
