package worker

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"integration-school-portal/internal/config"
)

func TestWorkerPoolRunsSubmittedJobs(t *testing.T) {
	pool := NewWorkerPool("test", config.PoolConfig{Count: 3, QueueSize: 16})
	pool.Start(context.Background())

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		assert.True(t, pool.Submit(func(context.Context) error {
			ran.Add(1)
			return nil
		}))
	}
	pool.Stop()

	assert.Equal(t, int32(10), ran.Load())
}

func TestWorkerPoolSurvivesPanickingJob(t *testing.T) {
	pool := NewWorkerPool("test", config.PoolConfig{Count: 1, QueueSize: 4})
	pool.Start(context.Background())

	var ran atomic.Bool
	pool.Submit(func(context.Context) error { panic("boom") })
	pool.Submit(func(context.Context) error {
		ran.Store(true)
		return nil
	})
	pool.Stop()

	assert.True(t, ran.Load())
}

func TestWorkerPoolDropsWhenFull(t *testing.T) {
	pool := NewWorkerPool("test", config.PoolConfig{Count: 1, QueueSize: 1})

	assert.True(t, pool.Submit(func(context.Context) error { return nil }))
	assert.False(t, pool.Submit(func(context.Context) error { return nil }))

	pool.Start(context.Background())
	pool.Stop()
}

func TestWorkerPoolSubmitAfterStop(t *testing.T) {
	pool := NewWorkerPool("test", config.PoolConfig{})
	pool.Start(context.Background())
	pool.Stop()
	pool.Stop()

	assert.False(t, pool.Submit(func(context.Context) error { return nil }))
}
