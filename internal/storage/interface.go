package storage

import (
	"context"
	"fmt"

	"integration-school-portal/internal/config"
	"integration-school-portal/internal/queue"
)

// Storage persists small opaque blobs by key. Get returns
// errors.ErrNotFound for missing keys and Delete is idempotent.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// New builds the backend selected by vault.backend. redisClient is only
// used by the redis backend and may be nil otherwise.
func New(cfg *config.Config, redisClient *queue.RedisClient) (Storage, error) {
	switch cfg.Vault.Backend {
	case "file":
		return NewFileStorage(cfg.Vault.Dir)
	case "memory":
		return NewMemoryStorage(), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("redis vault backend requires a redis client")
		}
		return NewRedisStorage(redisClient.Client(), redisClient.Key("vault", "")), nil
	case "s3":
		return NewS3Storage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Vault.Backend)
	}
}
