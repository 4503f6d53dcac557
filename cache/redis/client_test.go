package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewCache(Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisKV(t *testing.T) {
	c, mr := newTestRedis(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisIncr(t *testing.T) {
	c, _ := newTestRedis(t)
	ctx := context.Background()
	n, err := c.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = c.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRedisHashAndList(t *testing.T) {
	c, _ := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.HSet(ctx, "h", map[string]string{"a": "1", "b": "2"}))
	h, err := c.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, h)

	require.NoError(t, c.RPush(ctx, "l", "x", "y"))
	require.NoError(t, c.RPush(ctx, "l", "z"))
	l, err := c.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, l)
	n, err := c.LLen(ctx, "l")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, c.Del(ctx, "l", "h"))
	n, err = c.LLen(ctx, "l")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisPubSub(t *testing.T) {
	mr := miniredis.RunT(t)
	ps, err := NewPubSub(Config{Addr: mr.Addr()})
	require.NoError(t, err)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "quest:actions")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "quest:actions", "hello"))
	select {
	case msg := <-ch:
		assert.Equal(t, "quest:actions", msg.Channel)
		assert.Equal(t, "hello", msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestNewCache_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := NewCache(Config{Addr: addr})
	assert.Error(t, err)
}
