package queue

import (
	"context"
	"encoding/json"

	"integration-school-portal/internal/model"

	"github.com/go-redis/redis/v8"
)

type Producer struct {
	client *redis.Client
	queue  string
}

func NewProducer(redisClient *RedisClient, queueName string) *Producer {
	return &Producer{
		client: redisClient.Client(),
		queue:  queueName,
	}
}

func (p *Producer) EnqueueRefreshJob(ctx context.Context, job model.RefreshJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	return p.client.LPush(ctx, p.queue, data).Err()
}
