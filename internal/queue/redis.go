package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"integration-school-portal/internal/config"

	"github.com/go-redis/redis/v8"
)

const dialTimeout = 5 * time.Second

// RedisClient is the connection shared by the refresh queue, the Redis
// vault store and the Redis timetable cache. Keys those components
// write are built with Key so they share the configured prefix.
type RedisClient struct {
	client *redis.Client
	prefix string
}

func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr(),
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: dialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	r := &RedisClient{client: rdb, prefix: cfg.Redis.KeyPrefix}
	if err := r.Ping(ctx); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr(), err)
	}
	return r, nil
}

// Wrap adapts an already configured client. Keys are not prefixed.
func Wrap(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

// Key joins parts with ":" under the client's prefix.
func (r *RedisClient) Key(parts ...string) string {
	return r.prefix + strings.Join(parts, ":")
}

func (r *RedisClient) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

func (r *RedisClient) Client() *redis.Client {
	return r.client
}
