package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStoreFromClient(client)
}

func TestRedisStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	mr, s := newTestRedis(t)

	_, ok, err := s.Get(ctx, "receipts:u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "receipts:u1", []byte(`[]`), time.Minute))
	got, ok, err := s.Get(ctx, "receipts:u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[]`, string(got))

	mr.FastForward(2 * time.Minute)
	_, ok, err = s.Get(ctx, "receipts:u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisStore_IncrementAndExpire(t *testing.T) {
	ctx := context.Background()
	mr, s := newTestRedis(t)

	for want := int64(1); want <= 6; want++ {
		n, err := s.IncrementAndExpire(ctx, "ratelimit:login:1.2.3.4", 900*time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	assert.Equal(t, 900*time.Second, mr.TTL("ratelimit:login:1.2.3.4"))

	mr.FastForward(901 * time.Second)
	n, err := s.IncrementAndExpire(ctx, "ratelimit:login:1.2.3.4", 900*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisStore_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	s := NewRedisStoreFromClient(client)

	_, _, err := s.Get(context.Background(), "k")
	assert.Error(t, err)
}
