package quest

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/kasuganosora/questboard/cache"
	"github.com/kasuganosora/questboard/config"
	"github.com/kasuganosora/questboard/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batch(prefix string, n int) []Quest {
	out := make([]Quest, n)
	for i := range out {
		out[i] = namedQuest(fmt.Sprintf("%s-%d", prefix, i), "miner")
	}
	return out
}

func localAccumulator(t *testing.T, maxRequests int) *Accumulator {
	c, _ := testutil.SetupTestCache(t)
	return NewAccumulator(c, maxRequests, testutil.NopLogger(t))
}

func TestAccumulator_CycleClearsAfterMaxRequests(t *testing.T) {
	a := localAccumulator(t, 3)
	ctx := context.Background()

	for i, want := range []int{2, 4, 6} {
		require.NoError(t, a.Accumulate(ctx, "miner", batch(fmt.Sprint(i), 2)))
		p, err := a.Pending(ctx, "miner")
		require.NoError(t, err)
		assert.Len(t, p, want)
		n, _ := a.RequestCount(ctx, "miner")
		assert.Equal(t, i+1, n)
	}
	clearNext, err := a.ShouldClearOnNextFetch(ctx, "miner")
	require.NoError(t, err)
	assert.True(t, clearNext)

	require.NoError(t, a.Accumulate(ctx, "miner", batch("fresh", 2)))
	p, err := a.Pending(ctx, "miner")
	require.NoError(t, err)
	require.Len(t, p, 2)
	assert.Equal(t, "fresh-0", p[0].ID)
	n, _ := a.RequestCount(ctx, "miner")
	assert.Equal(t, 1, n)
}

func TestAccumulator_EmptyBatchIgnored(t *testing.T) {
	a := localAccumulator(t, 3)
	ctx := context.Background()
	require.NoError(t, a.Accumulate(ctx, "miner", nil))
	n, err := a.RequestCount(ctx, "miner")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAccumulator_TakeRemoveClear(t *testing.T) {
	a := localAccumulator(t, 0)
	assert.Equal(t, DefaultMaxRequests, a.MaxRequests())
	ctx := context.Background()
	require.NoError(t, a.Accumulate(ctx, "origins:Miner", batch("x", 3)))

	ok, err := a.Remove(ctx, "miner", "x-1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = a.Remove(ctx, "miner", "x-1")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := a.Take(ctx, "miner")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	left, _ := a.Pending(ctx, "miner")
	assert.Empty(t, left)
	n, _ := a.RequestCount(ctx, "miner")
	assert.Equal(t, 1, n, "take keeps the counter")

	require.NoError(t, a.Clear(ctx, "miner"))
	n, _ = a.RequestCount(ctx, "miner")
	assert.Zero(t, n)
}

func TestAccumulator_Stats(t *testing.T) {
	a := localAccumulator(t, 2)
	ctx := context.Background()
	require.NoError(t, a.Accumulate(ctx, "miner", batch("a", 1)))
	require.NoError(t, a.Accumulate(ctx, "miner", batch("b", 1)))

	stats, err := a.Stats(ctx, "courier")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, AccumulationStats{Class: "courier", MaxRequests: 2}, stats[0])
	assert.Equal(t, AccumulationStats{Class: "miner", Pending: 2, Requests: 2, MaxRequests: 2, ClearOnNext: true}, stats[1])
}

func TestAccumulator_RedisBackendSurvivesRestart(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.CacheConfig{RedisAddr: mr.Addr()}
	ctx := context.Background()

	c1, err := cache.NewCache(cfg)
	require.NoError(t, err)
	require.NoError(t, NewAccumulator(c1, 3, testutil.NopLogger(t)).Accumulate(ctx, "miner", batch("r", 2)))

	c2, err := cache.NewCache(cfg)
	require.NoError(t, err)
	a := NewAccumulator(c2, 3, testutil.NopLogger(t))
	p, err := a.Pending(ctx, "miner")
	require.NoError(t, err)
	assert.Len(t, p, 2)
	n, err := a.RequestCount(ctx, "miner")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
