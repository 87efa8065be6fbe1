package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, limit int, window time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:rl:", limit, window), mr
}

func TestRedisStore_LimitAndReset(t *testing.T) {
	s, mr := newRedisStore(t, 10, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		d, err := s.Allow(ctx, "0xAbC")
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, i, d.Count)
	}

	d, err := s.Allow(ctx, "0xabc")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 10, d.Count)

	val, err := mr.Get("test:rl:0xabc")
	require.NoError(t, err)
	assert.Equal(t, "10", val)
	assert.True(t, mr.TTL("test:rl:0xabc") > 0)

	mr.FastForward(time.Minute + time.Millisecond)

	d, err = s.Allow(ctx, "0xABC")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
}

func TestRedisStore_PeekAndReset(t *testing.T) {
	s, _ := newRedisStore(t, 2, time.Minute)
	ctx := context.Background()

	_, ok, err := s.Peek(ctx, "0x01")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _ = s.Allow(ctx, "0x01")
	_, _ = s.Allow(ctx, "0x01")

	rec, ok, err := s.Peek(ctx, "0x01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, rec.Count)

	require.NoError(t, s.Reset(ctx, "0x01"))
	d, err := s.Allow(ctx, "0x01")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	s := NewRedisStore(client, "test:rl:", 2, time.Minute)
	mr.Close()

	_, err = s.Allow(context.Background(), "0x01")
	assert.Error(t, err)
}
