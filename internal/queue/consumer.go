package queue

import (
	"context"
	"errors"
	"time"

	"integration-school-portal/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

type Consumer struct {
	client      *redis.Client
	queue       string
	dlq         string
	pollTimeout time.Duration
	log         zerolog.Logger
}

type MessageHandler func(ctx context.Context, data []byte) error

func NewConsumer(redisClient *RedisClient, queueName, dlqSuffix string) *Consumer {
	return &Consumer{
		client:      redisClient.Client(),
		queue:       queueName,
		dlq:         queueName + dlqSuffix,
		pollTimeout: 5 * time.Second,
		log:         logger.For("queue"),
	}
}

// WithPollTimeout sets how long one blocking pop waits before the context
// is checked again. Redis counts BRPOP timeouts in whole seconds, so
// anything shorter than a second is raised to one.
func (c *Consumer) WithPollTimeout(d time.Duration) *Consumer {
	if d < time.Second {
		d = time.Second
	}
	c.pollTimeout = d
	return c
}

// Consume blocks until ctx is done. Messages whose handler fails are
// pushed to the dead-letter queue.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := c.client.BRPop(ctx, c.pollTimeout, c.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error().Err(err).Str("queue", c.queue).Msg("Failed to consume message")
			continue
		}

		if len(result) < 2 {
			continue
		}

		message := result[1]
		if err := handler(ctx, []byte(message)); err != nil {
			c.log.Error().Err(err).Str("queue", c.queue).Msg("Failed to process message")
			c.DeadLetter(ctx, []byte(message))
		}
	}
}

// DeadLetter pushes a message to the dead-letter queue. Handlers that
// finish a message asynchronously call it themselves.
func (c *Consumer) DeadLetter(ctx context.Context, message []byte) {
	if err := c.client.LPush(ctx, c.dlq, message).Err(); err != nil {
		c.log.Error().Err(err).Str("dlq", c.dlq).Msg("Failed to move message to DLQ")
	}
}
