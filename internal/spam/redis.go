package spam

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "ratelimit"

// RedisWindowStore хранит окна в Redis, что позволяет разделять лимиты между экземплярами.
type RedisWindowStore struct {
	client *redis.Client
	prefix string
}

// NewRedisWindowStore создаёт хранилище окон поверх клиента Redis.
func NewRedisWindowStore(client *redis.Client, prefix string) *RedisWindowStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisWindowStore{client: client, prefix: prefix}
}

// Hit увеличивает счётчик окна. Окно задаётся временем жизни ключа.
func (s *RedisWindowStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration) (int, time.Time, error) {
	k := s.prefix + ":" + key

	count, err := s.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis incr: %w", err)
	}

	if count == 1 {
		if err := s.client.PExpire(ctx, k, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("redis pexpire: %w", err)
		}
		return 1, now.Add(window), nil
	}

	ttl, err := s.client.PTTL(ctx, k).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis pttl: %w", err)
	}
	if ttl < 0 {
		// Ключ без срока жизни остался после сбоя между INCR и PEXPIRE.
		if err := s.client.PExpire(ctx, k, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("redis pexpire: %w", err)
		}
		ttl = window
	}

	return int(count), now.Add(ttl), nil
}

// Sweep ничего не делает: Redis удаляет истёкшие ключи сам.
func (s *RedisWindowStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}
