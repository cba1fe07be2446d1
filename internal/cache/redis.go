package cache

import (
	"context"
	"encoding/json"
	"time"

	"integration-school-portal/internal/logger"
	"integration-school-portal/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// weekMarker is set on every put so a week without lessons is still
// cached.
const weekMarker = "_week"

// RedisCache stores one hash per week with a field per date, so HSET
// merges concurrent puts for the same week field by field.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    zerolog.Logger
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		log:    logger.For("timetable-cache"),
	}
}

func (c *RedisCache) Get(ctx context.Context, weekStart string) (model.TimetableMap, bool) {
	fields, err := c.client.HGetAll(ctx, c.prefix+weekStart).Result()
	if err != nil {
		c.log.Warn().Err(err).Str("week_start", weekStart).Msg("Timetable cache read failed")
		return nil, false
	}
	if len(fields) == 0 {
		return nil, false
	}
	week := make(model.TimetableMap, len(fields))
	for date, raw := range fields {
		if date == weekMarker {
			continue
		}
		var slots []model.LessonSlot
		if err := json.Unmarshal([]byte(raw), &slots); err != nil {
			c.log.Warn().Err(err).Str("week_start", weekStart).Str("date", date).Msg("Dropping unreadable cached day")
			continue
		}
		week[date] = slots
	}
	return week, true
}

func (c *RedisCache) Put(ctx context.Context, weekStart string, data model.TimetableMap) error {
	values := make(map[string]interface{}, len(data)+1)
	values[weekMarker] = "1"
	for date, slots := range data {
		raw, err := json.Marshal(slots)
		if err != nil {
			return err
		}
		values[date] = raw
	}

	key := c.prefix + weekStart
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, values)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
