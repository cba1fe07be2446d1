// Package cache holds fetched timetable weeks keyed by their Monday
// (YYYY-MM-DD). Put merges day by day: days missing from a later, partial
// fetch stay cached.
package cache

import (
	"context"
	"fmt"
	"sync"

	"integration-school-portal/internal/config"
	"integration-school-portal/internal/model"
	"integration-school-portal/internal/queue"
)

type TimetableCache interface {
	Get(ctx context.Context, weekStart string) (model.TimetableMap, bool)
	Put(ctx context.Context, weekStart string, data model.TimetableMap) error
}

func New(cfg *config.Config, redisClient *queue.RedisClient) (TimetableCache, error) {
	switch cfg.Cache.Backend {
	case "memory":
		return NewMemoryCache(), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("redis cache backend requires a redis client")
		}
		return NewRedisCache(redisClient.Client(), redisClient.Key("timetable", ""), cfg.Cache.TTL), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// MemoryCache is unbounded; a school year is a few dozen small weeks.
type MemoryCache struct {
	mu    sync.RWMutex
	weeks map[string]model.TimetableMap
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{weeks: make(map[string]model.TimetableMap)}
}

func (c *MemoryCache) Get(_ context.Context, weekStart string) (model.TimetableMap, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	week, ok := c.weeks[weekStart]
	if !ok {
		return nil, false
	}
	return week.Clone(), true
}

// Put merges data into the week. An empty map still marks the week cached.
func (c *MemoryCache) Put(_ context.Context, weekStart string, data model.TimetableMap) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	week, ok := c.weeks[weekStart]
	if !ok {
		week = model.TimetableMap{}
		c.weeks[weekStart] = week
	}
	week.Merge(data)
	return nil
}
