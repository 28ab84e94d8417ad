package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"erasure/pkg/platform/sentinel"
)

const (
	redisAlertKeyPrefix = "erasure:alert:"
	redisActiveSetKey   = "erasure:alerts:active"
	redisByTimeKey      = "erasure:alerts:by_time"
)

// RedisAlertStore persists alerts in Redis so they survive process restarts
// and are visible across instances. Each alert lives in its own key; an
// active set and a time-ordered index support the two list shapes.
type RedisAlertStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisAlertStore creates a store. ttl bounds how long resolved alerts
// linger; zero keeps them forever.
func NewRedisAlertStore(client redis.Cmdable, ttl time.Duration) *RedisAlertStore {
	return &RedisAlertStore{client: client, ttl: ttl}
}

func (s *RedisAlertStore) Save(ctx context.Context, alert *Alert) error {
	raw, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	key := redisAlertKeyPrefix + alert.ID

	pipe := s.client.TxPipeline()
	if s.ttl > 0 && alert.Resolved {
		pipe.Set(ctx, key, raw, s.ttl)
	} else {
		pipe.Set(ctx, key, raw, 0)
	}
	if alert.Resolved {
		pipe.SRem(ctx, redisActiveSetKey, alert.ID)
	} else {
		pipe.SAdd(ctx, redisActiveSetKey, alert.ID)
	}
	pipe.ZAdd(ctx, redisByTimeKey, redis.Z{
		Score:  float64(alert.TriggeredAt.UnixMilli()),
		Member: alert.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save alert: %w", err)
	}
	return nil
}

func (s *RedisAlertStore) Get(ctx context.Context, id string) (*Alert, error) {
	raw, err := s.client.Get(ctx, redisAlertKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}
	var alert Alert
	if err := json.Unmarshal(raw, &alert); err != nil {
		return nil, fmt.Errorf("unmarshal alert: %w", err)
	}
	return &alert, nil
}

func (s *RedisAlertStore) ListActive(ctx context.Context) ([]*Alert, error) {
	ids, err := s.client.SMembers(ctx, redisActiveSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}
	return s.fetch(ctx, ids)
}

func (s *RedisAlertStore) ListSince(ctx context.Context, since time.Time) ([]*Alert, error) {
	ids, err := s.client.ZRangeByScore(ctx, redisByTimeKey, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", since.UnixMilli()),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list alerts since: %w", err)
	}
	return s.fetch(ctx, ids)
}

func (s *RedisAlertStore) fetch(ctx context.Context, ids []string) ([]*Alert, error) {
	out := make([]*Alert, 0, len(ids))
	for _, id := range ids {
		alert, err := s.Get(ctx, id)
		if err != nil {
			// Expired entries can linger in the indexes.
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, alert)
	}
	return out, nil
}
