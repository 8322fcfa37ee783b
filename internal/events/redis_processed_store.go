package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// RedisProcessedStore records processed ids with SETNX so several processes
// behind one webhook URL agree on what was handled.
type RedisProcessedStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisProcessedStore(redisClient *redis.Client, ttl time.Duration) *RedisProcessedStore {
	if redisClient == nil {
		panic("events: redis client cannot be nil")
	}
	return &RedisProcessedStore{
		redis:  redisClient,
		ttl:    ttl,
		tracer: otel.Tracer("whatsapp-companion.internal.events.processed"),
	}
}

func (s *RedisProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "events.processed.mark")
	defer span.End()

	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	ok, err := s.redis.SetNX(ctx, processedKey(provider, eventID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ok, nil
}
