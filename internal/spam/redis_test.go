package spam

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestRedisWindowStore_CountsWithinWindow(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewRedisWindowStore(client, "test")
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		count, resetAt, err := store.Hit(ctx, "ip", now, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
		assert.False(t, resetAt.Before(now))
	}

	server.FastForward(61 * time.Second)

	count, _, err := store.Hit(ctx, "ip", now.Add(61*time.Second), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "window must restart after expiry")
}

func TestRedisWindowStore_WithRateLimiter(t *testing.T) {
	client, _ := newTestRedis(t)
	limiter := NewRateLimiter(NewRedisWindowStore(client, ""), nil)

	for i := 0; i < DefaultLimit; i++ {
		require.False(t, limiter.Check(context.Background(), "198.51.100.7").Limited)
	}
	assert.True(t, limiter.Check(context.Background(), "198.51.100.7").Limited)
}
