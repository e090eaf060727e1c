package verification

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

func TestRedisStore_SaveLoadDelete(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewRedisStore(client, "")
	ctx := context.Background()

	expires := time.Now().Add(CodeTTL).Truncate(time.Millisecond)
	in := Entry{
		Reference: "NF-AB12CD34",
		Email:     "x@y.com",
		Code:      "012345",
		ExpiresAt: expires,
		Attempts:  2,
		Verified:  true,
	}

	require.NoError(t, store.Save(ctx, "k", in))

	out, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, in.Code, out.Code)
	assert.Equal(t, in.Attempts, out.Attempts)
	assert.True(t, out.Verified)
	assert.True(t, in.ExpiresAt.Equal(out.ExpiresAt))

	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Load(ctx, "k")
	assert.ErrorIs(t, err, ErrNoCode)
}

func TestRedisStore_ManagerFlow(t *testing.T) {
	client, _ := newTestRedis(t)
	m := NewManager(NewRedisStore(client, "test"), nil)
	ctx := context.Background()

	code, err := m.Issue(ctx, "NF-AB12CD34", "x@y.com")
	require.NoError(t, err)

	require.NoError(t, m.Verify(ctx, "NF-AB12CD34", "x@y.com", code))
	assert.True(t, m.IsAuthorized(ctx, "NF-AB12CD34", "x@y.com"))
}

func TestRedisStore_KeyExpires(t *testing.T) {
	client, server := newTestRedis(t)
	m := NewManager(NewRedisStore(client, "test"), nil)
	ctx := context.Background()

	_, err := m.Issue(ctx, "NF-AB12CD34", "x@y.com")
	require.NoError(t, err)

	server.FastForward(CodeTTL + time.Second)

	err = m.Verify(ctx, "NF-AB12CD34", "x@y.com", "123456")
	assert.ErrorIs(t, err, ErrNoCode)
}
