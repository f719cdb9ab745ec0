package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "ratelimit:"

// RedisStore хранит счетчики окон в Redis — общие лимиты для всех реплик.
// INCR атомарен на стороне Redis; PEXPIRE ставится только первому запросу
// окна, дальше TTL определяет остаток окна.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string, winLen time.Duration) (int64, time.Duration, error) {
	rkey := redisKeyPrefix + key

	count, err := s.client.Incr(ctx, rkey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis incr failed: %w", err)
	}

	if count == 1 {
		if err := s.client.PExpire(ctx, rkey, winLen).Err(); err != nil {
			return 0, 0, fmt.Errorf("redis pexpire failed: %w", err)
		}
		return count, winLen, nil
	}

	ttl, err := s.client.PTTL(ctx, rkey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis pttl failed: %w", err)
	}
	if ttl < 0 {
		// Ключ без TTL: PEXPIRE первого запроса не прошел. Ставим заново,
		// иначе счетчик никогда не сбросится.
		if err := s.client.PExpire(ctx, rkey, winLen).Err(); err != nil {
			return 0, 0, fmt.Errorf("redis pexpire failed: %w", err)
		}
		ttl = winLen
	}

	return count, ttl, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
