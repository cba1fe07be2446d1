package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"integration-school-portal/internal/model"
)

func TestProducerConsumerWithDLQ(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	client := Wrap(rdb)

	producer := NewProducer(client, "portal:refresh")
	ctx := context.Background()
	require.NoError(t, producer.EnqueueRefreshJob(ctx, model.RefreshJob{ID: "ok", WeekStart: "2026-03-02"}))
	require.NoError(t, producer.EnqueueRefreshJob(ctx, model.RefreshJob{ID: "bad"}))

	consumer := NewConsumer(client, "portal:refresh", ":dlq")
	consumer.WithPollTimeout(time.Second)

	runCtx, cancel := context.WithCancel(ctx)
	seen := make(chan model.RefreshJob, 2)
	done := make(chan error, 1)
	go func() {
		done <- consumer.Consume(runCtx, func(_ context.Context, data []byte) error {
			var job model.RefreshJob
			assert.NoError(t, json.Unmarshal(data, &job))
			seen <- job
			if job.ID == "bad" {
				return errors.New("boom")
			}
			return nil
		})
	}()

	first, second := <-seen, <-seen
	assert.Equal(t, "ok", first.ID)
	assert.Equal(t, "2026-03-02", first.WeekStart)
	assert.Equal(t, "bad", second.ID)

	assert.Eventually(t, func() bool {
		n, err := rdb.LLen(ctx, "portal:refresh:dlq").Result()
		return err == nil && n == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWithPollTimeoutFloor(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{in: 50 * time.Millisecond, want: time.Second},
		{in: 0, want: time.Second},
		{in: 3 * time.Second, want: 3 * time.Second},
	}
	for _, tt := range tests {
		c := NewConsumer(Wrap(rdb), "portal:refresh", ":dlq").WithPollTimeout(tt.in)
		assert.Equal(t, tt.want, c.pollTimeout)
	}
}

func TestDeadLetter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	c := NewConsumer(Wrap(rdb), "portal:refresh", ":dlq")
	c.DeadLetter(ctx, []byte(`{"id":"j1"}`))

	got, err := rdb.LRange(ctx, "portal:refresh:dlq", 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{`{"id":"j1"}`}, got)
}

func TestRedisClientKey(t *testing.T) {
	r := &RedisClient{prefix: "portal:"}
	assert.Equal(t, "portal:vault:", r.Key("vault", ""))
	assert.Equal(t, "portal:timetable:2026-03-02", r.Key("timetable", "2026-03-02"))
	assert.Equal(t, "refresh", Wrap(nil).Key("refresh"))
}
