package verification

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "verify"

	fieldReference = "reference"
	fieldEmail     = "email"
	fieldCode      = "code"
	fieldExpiresAt = "expires_at"
	fieldAttempts  = "attempts"
	fieldVerified  = "verified"
)

// RedisStore хранит коды в хешах Redis со сроком жизни, равным сроку действия кода.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore создаёт хранилище кодов поверх клиента Redis.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Save записывает хеш и выставляет время истечения ключа.
func (s *RedisStore) Save(ctx context.Context, key string, e Entry) error {
	k := s.key(key)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, k)
	pipe.HSet(ctx, k, map[string]any{
		fieldReference: e.Reference,
		fieldEmail:     e.Email,
		fieldCode:      e.Code,
		fieldExpiresAt: strconv.FormatInt(e.ExpiresAt.UnixMilli(), 10),
		fieldAttempts:  strconv.Itoa(e.Attempts),
		fieldVerified:  strconv.FormatBool(e.Verified),
	})
	pipe.PExpireAt(ctx, k, e.ExpiresAt)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store code: %w", err)
	}
	return nil
}

// Load читает запись. Отсутствующий ключ означает ErrNoCode.
func (s *RedisStore) Load(ctx context.Context, key string) (*Entry, error) {
	values, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall code: %w", err)
	}
	if len(values) == 0 || values[fieldCode] == "" {
		return nil, ErrNoCode
	}

	expiresMs, err := strconv.ParseInt(values[fieldExpiresAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	attempts, err := strconv.Atoi(values[fieldAttempts])
	if err != nil {
		return nil, fmt.Errorf("parse attempts: %w", err)
	}
	verified, _ := strconv.ParseBool(values[fieldVerified])

	return &Entry{
		Reference: values[fieldReference],
		Email:     values[fieldEmail],
		Code:      values[fieldCode],
		ExpiresAt: time.UnixMilli(expiresMs),
		Attempts:  attempts,
		Verified:  verified,
	}, nil
}

// Delete удаляет запись.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete code: %w", err)
	}
	return nil
}

// DeleteExpired ничего не делает: ключи истекают в Redis сами.
func (s *RedisStore) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}
