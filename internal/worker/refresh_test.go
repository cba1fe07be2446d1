package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"integration-school-portal/internal/config"
	"integration-school-portal/internal/model"
	"integration-school-portal/internal/queue"
	perrors "integration-school-portal/pkg/errors"
)

type fakeRetriever struct {
	mu         sync.Mutex
	identifier string
	err        error
	weeks      []time.Time
}

func (f *fakeRetriever) RetrieveStored(_ context.Context, week time.Time) (*model.RetrievalResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.identifier == "" {
		return nil, perrors.ErrNoStoredCredentials
	}
	f.weeks = append(f.weeks, week)
	if f.err != nil {
		return nil, f.err
	}
	r := model.NewRetrievalResult()
	r.Identifier = f.identifier
	r.AuthStatus = model.AuthAuthenticated
	r.WeekStart = "2026-03-02"
	r.Grades = []model.GradeEntry{{Subject: "Fizyka", Value: "5", Semester: 2}}
	r.Status[model.ResourceGrades] = model.ResourceOK
	return r, nil
}

func (f *fakeRetriever) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.weeks)
}

type fakeRepo struct {
	mu        sync.Mutex
	snapshots []*model.Snapshot
	err       error
}

func (f *fakeRepo) SaveSnapshot(_ context.Context, s *model.Snapshot) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.snapshots = append(f.snapshots, s)
	s.ID = int64(len(f.snapshots))
	return s.ID, nil
}

func (f *fakeRepo) LatestSnapshot(context.Context, string) (*model.Snapshot, error) {
	return nil, perrors.ErrNotFound
}

func (f *fakeRepo) ListSnapshots(context.Context, string, int) ([]model.Snapshot, error) {
	return nil, nil
}

func (f *fakeRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshots)
}

func newRefreshWorker(t *testing.T, svc Retriever, repo *fakeRepo) (*RefreshWorker, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	w := NewRefreshWorker(config.Default(), svc, repo, queue.Wrap(rdb))
	w.consumer.WithPollTimeout(time.Second)
	return w, rdb
}

func TestProcessSavesSnapshot(t *testing.T) {
	svc := &fakeRetriever{identifier: "jan.kowalski"}
	repo := &fakeRepo{}
	w, _ := newRefreshWorker(t, svc, repo)

	snapshot, err := w.Process(context.Background(), model.RefreshJob{ID: "j1", WeekStart: "2026-03-04"})
	require.NoError(t, err)

	assert.Equal(t, "jan.kowalski", snapshot.Identifier)
	assert.Equal(t, "2026-03-02", snapshot.WeekStart)
	assert.Equal(t, int64(1), snapshot.ID)
	require.Len(t, svc.weeks, 1)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), svc.weeks[0])
}

func TestProcessWithoutStoredCredentials(t *testing.T) {
	repo := &fakeRepo{}
	w, _ := newRefreshWorker(t, &fakeRetriever{}, repo)

	_, err := w.Process(context.Background(), model.RefreshJob{ID: "j1"})

	assert.True(t, errors.Is(err, perrors.ErrNoStoredCredentials))
	assert.Zero(t, repo.count())
}

func TestProcessRetrievalFailureSkipsSave(t *testing.T) {
	repo := &fakeRepo{}
	svc := &fakeRetriever{identifier: "x", err: perrors.AuthError{Rejected: true, Reason: "invalid credentials"}}
	w, _ := newRefreshWorker(t, svc, repo)

	_, err := w.Process(context.Background(), model.RefreshJob{ID: "j1"})

	assert.True(t, errors.Is(err, perrors.ErrAuthRejected))
	assert.Zero(t, repo.count())
	assert.True(t, svc.weeks[0].IsZero())
}

func TestRefreshWorkerConsumesQueue(t *testing.T) {
	repo := &fakeRepo{}
	w, rdb := newRefreshWorker(t, &fakeRetriever{identifier: "jan.kowalski"}, repo)
	cfg := config.Default()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	producer := queue.NewProducer(queue.Wrap(rdb), cfg.Redis.RefreshQueue)
	require.NoError(t, producer.EnqueueRefreshJob(ctx, model.RefreshJob{ID: "j1", WeekStart: "2026-03-02"}))
	require.NoError(t, rdb.LPush(ctx, cfg.Redis.RefreshQueue, "{not json").Err())
	require.NoError(t, producer.EnqueueRefreshJob(ctx, model.RefreshJob{ID: "j2", WeekStart: "03/02/2026"}))

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	assert.Eventually(t, func() bool { return repo.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		n, err := rdb.LLen(ctx, cfg.Redis.RefreshQueue+cfg.Redis.DLQSuffix).Result()
		return err == nil && n == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	w.Stop()
}

func TestRefreshWorkerDeadLettersFailedJobs(t *testing.T) {
	tests := []struct {
		name string
		svc  *fakeRetriever
		repo *fakeRepo
	}{
		{
			name: "portal error",
			svc:  &fakeRetriever{identifier: "jan.kowalski", err: perrors.AuthError{Reason: "portal down"}},
			repo: &fakeRepo{},
		},
		{
			name: "rejected credentials",
			svc:  &fakeRetriever{identifier: "jan.kowalski", err: perrors.AuthError{Rejected: true, Reason: "invalid credentials"}},
			repo: &fakeRepo{},
		},
		{
			name: "no stored credentials",
			svc:  &fakeRetriever{},
			repo: &fakeRepo{},
		},
		{
			name: "snapshot save fails",
			svc:  &fakeRetriever{identifier: "jan.kowalski"},
			repo: &fakeRepo{err: errors.New("connection refused")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, rdb := newRefreshWorker(t, tt.svc, tt.repo)
			cfg := config.Default()
			dlq := cfg.Redis.RefreshQueue + cfg.Redis.DLQSuffix
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			producer := queue.NewProducer(queue.Wrap(rdb), cfg.Redis.RefreshQueue)
			require.NoError(t, producer.EnqueueRefreshJob(ctx, model.RefreshJob{ID: "j1", WeekStart: "2026-03-02"}))

			done := make(chan error, 1)
			go func() { done <- w.Start(ctx) }()

			assert.Eventually(t, func() bool {
				n, err := rdb.LLen(ctx, dlq).Result()
				return err == nil && n == 1
			}, 2*time.Second, 10*time.Millisecond)

			raw, err := rdb.LIndex(ctx, dlq, 0).Result()
			require.NoError(t, err)
			assert.Contains(t, raw, `"j1"`)
			assert.Zero(t, tt.repo.count())

			cancel()
			<-done
			w.Stop()
		})
	}
}

func TestProcessLabelsSnapshotWithRetrievedIdentifier(t *testing.T) {
	repo := &fakeRepo{}
	svc := &fakeRetriever{identifier: "anna.nowak"}
	w, _ := newRefreshWorker(t, svc, repo)

	snapshot, err := w.Process(context.Background(), model.RefreshJob{ID: "j1"})
	require.NoError(t, err)

	assert.Equal(t, "anna.nowak", snapshot.Identifier)
	assert.Equal(t, 1, svc.calls())
}
