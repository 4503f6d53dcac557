package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kasuganosora/questboard/config"
	"github.com/kasuganosora/questboard/game/quest"
	"github.com/kasuganosora/questboard/game/world"
	"github.com/kasuganosora/questboard/scheduler"
	"github.com/kasuganosora/questboard/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const draftBody = `{"quests": [
  {"id": "miner_ab12cd34", "playerClass": "origins:miner", "level": 2, "title": "Deep Vein",
   "description": "Dig.", "timeLimit": 30,
   "objective": {"type": "mine", "target": "minecraft:iron_ore", "amount": 12},
   "reward": {"type": "skill_point_token", "tier": 2, "experience": 0}},
  {"title": "Bare Draft", "objective": {"type": "collect", "target": "coal", "amount": 4}},
  {"id": "broken", "title": "No Amount", "objective": {"type": "collect", "target": "coal"}}
]}`

func newClient(t *testing.T, url string) *Client {
	return NewClient(config.GeneratorConfig{BaseURL: url, QuestsPerFetch: 3, Timeout: time.Second}, testutil.NopLogger(t))
}

func TestClient_FetchQuestsNormalisesDrafts(t *testing.T) {
	var gotPath, gotCount string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotCount = r.URL.Path, r.URL.Query().Get("quest_count")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, draftBody)
	}))
	defer srv.Close()

	qs, err := newClient(t, srv.URL+"/").FetchQuests(context.Background(), "origins:Miner")
	require.NoError(t, err)
	assert.Equal(t, "/quests/miner", gotPath)
	assert.Equal(t, "3", gotCount)
	require.Len(t, qs, 2, "invalid draft dropped")

	assert.Equal(t, "miner_ab12cd34", qs[0].ID)
	assert.Equal(t, "miner", qs[0].Class)
	assert.Equal(t, 2, qs[0].MinLevel)
	assert.Equal(t, 30, qs[0].TimeLimit)
	assert.Equal(t, quest.Reward{Type: quest.RewardSkillPointToken, Tier: 2}, qs[0].Reward)

	bare := qs[1]
	assert.Regexp(t, `^miner_[0-9a-f]{8}$`, bare.ID)
	assert.Equal(t, "miner", bare.Class)
	assert.Equal(t, DraftLevel, bare.MinLevel)
	assert.Equal(t, DraftTimeLimit, bare.TimeLimit)
	assert.Equal(t, quest.Reward{Type: quest.RewardExperience, Amount: DraftExperience}, bare.Reward)
}

func TestClient_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quests/cook":
			http.Error(w, "class not found", http.StatusNotFound)
		default:
			fmt.Fprint(w, "{not json")
		}
	}))
	c := newClient(t, srv.URL)
	ctx := context.Background()

	_, err := c.FetchQuests(ctx, "cook")
	assert.True(t, IsUnavailable(err))
	assert.ErrorIs(t, err, quest.ErrContentUnavailable)
	assert.Contains(t, err.Error(), "404")

	_, err = c.FetchQuests(ctx, "miner")
	assert.True(t, IsUnavailable(err))

	srv.Close()
	_, err = c.FetchQuests(ctx, "miner")
	assert.True(t, IsUnavailable(err))
	assert.Error(t, c.Ping(ctx))
}

func TestClient_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":"ok"}`)
	}))
	defer srv.Close()
	assert.NoError(t, newClient(t, srv.URL).Ping(context.Background()))
}

// fakeSource returns batches from fn and counts calls.
type fakeSource struct {
	calls atomic.Int32
	fn    func(class string) ([]quest.Quest, error)
}

func (f *fakeSource) FetchQuests(_ context.Context, class string) ([]quest.Quest, error) {
	f.calls.Add(1)
	return f.fn(class)
}

type pingSource struct {
	fakeSource
	up atomic.Bool
}

func (p *pingSource) Ping(context.Context) error {
	if p.up.Load() {
		return nil
	}
	return ErrUnavailable
}

type refreshRecorder struct {
	mu      sync.Mutex
	classes []string
}

func (r *refreshRecorder) RefreshClass(_ context.Context, class string) (int, error) {
	r.mu.Lock()
	r.classes = append(r.classes, class)
	r.mu.Unlock()
	return 0, nil
}

func draftBatch(class string, n int) []quest.Quest {
	out := make([]quest.Quest, n)
	for i := range out {
		out[i] = quest.Quest{
			ID: fmt.Sprintf("%s_%d", class, i), Class: class, Title: "Q",
			Objective: quest.Objective{Type: quest.ObjectiveCollect, Target: "wood", Amount: 1},
			Reward:    quest.Reward{Type: quest.RewardExperience, Amount: 1},
		}
	}
	return out
}

func newFetcher(t *testing.T, src Source, boards BoardRefresher, classes ...string) (*Fetcher, *quest.Accumulator) {
	t.Helper()
	logger := testutil.NopLogger(t)
	c, _ := testutil.SetupTestCache(t)
	loop := world.NewLoop(16, logger)
	go loop.Run()
	t.Cleanup(loop.Stop)
	accum := quest.NewAccumulator(c, 3, logger)
	f := NewFetcher(FetcherDeps{Source: src, Loop: loop, Accumulator: accum, Boards: boards}, classes, time.Second, logger)
	t.Cleanup(f.Stop)
	return f, accum
}

func TestFetcher_ForceUpdateAccumulatesAndRefreshes(t *testing.T) {
	src := &fakeSource{fn: func(class string) ([]quest.Quest, error) { return draftBatch(class, 2), nil }}
	rec := &refreshRecorder{}
	f, accum := newFetcher(t, src, rec, "miner")
	ctx := context.Background()

	n, err := f.ForceUpdateClass(ctx, "origins:miner")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pending, err := accum.Pending(ctx, "miner")
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	assert.Equal(t, []string{"miner"}, rec.classes)
	assert.False(t, f.LastFetch("miner").IsZero())
}

// loopRefresher reads the pending batch on the loop, as board.Manager does.
type loopRefresher struct {
	loop  *world.Loop
	accum *quest.Accumulator
	seen  atomic.Int32
}

func (r *loopRefresher) RefreshClass(ctx context.Context, class string) (int, error) {
	err := r.loop.Do(ctx, func() error {
		pending, err := r.accum.Pending(ctx, class)
		r.seen.Store(int32(len(pending)))
		return err
	})
	return 0, err
}

func TestFetcher_BackgroundFetchQueuesBatch(t *testing.T) {
	logger := testutil.NopLogger(t)
	c, _ := testutil.SetupTestCache(t)
	loop := world.NewLoop(1, logger)
	go loop.Run()
	t.Cleanup(loop.Stop)
	accum := quest.NewAccumulator(c, 3, logger)
	rec := &loopRefresher{loop: loop, accum: accum}
	src := &fakeSource{fn: func(class string) ([]quest.Quest, error) { return draftBatch(class, 2), nil }}
	f := NewFetcher(FetcherDeps{Source: src, Loop: loop, Accumulator: accum, Boards: rec}, []string{"miner"}, time.Second, logger)
	t.Cleanup(f.Stop)

	require.True(t, f.Fetch("miner"))
	require.Eventually(t, func() bool { return rec.seen.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, f.LastFetch("miner").IsZero())

	// With the loop busy and its queue full the batch is dropped.
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, loop.Post(func() { <-release }))
	require.Eventually(t, func() bool { return loop.Post(func() {}) == nil }, time.Second, 5*time.Millisecond)
	require.True(t, f.Fetch("cook"))
	require.Eventually(t, func() bool { return f.Fetch("cook") }, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	n, err := accum.RequestCount(ctx, "cook")
	require.NoError(t, err)
	assert.Zero(t, n)
	pending, err := accum.Pending(ctx, "cook")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFetcher_FailureIsDropped(t *testing.T) {
	src := &fakeSource{fn: func(string) ([]quest.Quest, error) { return nil, ErrUnavailable }}
	rec := &refreshRecorder{}
	f, accum := newFetcher(t, src, rec, "miner")
	ctx := context.Background()
	require.NoError(t, accum.Accumulate(ctx, "miner", draftBatch("miner", 1)))

	_, err := f.ForceUpdateClass(ctx, "miner")
	assert.ErrorIs(t, err, ErrUnavailable)

	pending, _ := accum.Pending(ctx, "miner")
	assert.Len(t, pending, 1, "failed fetch leaves the cache untouched")
	n, _ := accum.RequestCount(ctx, "miner")
	assert.Equal(t, 1, n)
	assert.Empty(t, rec.classes)
}

func TestFetcher_DedupesInFlight(t *testing.T) {
	release := make(chan struct{})
	src := &fakeSource{fn: func(class string) ([]quest.Quest, error) {
		<-release
		return draftBatch(class, 1), nil
	}}
	f, accum := newFetcher(t, src, nil, "miner", "cook")

	assert.True(t, f.Fetch("miner"))
	assert.False(t, f.Fetch("miner"))
	_, err := f.ForceUpdateClass(context.Background(), "miner")
	assert.ErrorIs(t, err, ErrInFlight)
	assert.True(t, f.Fetch("cook"))
	close(release)

	require.Eventually(t, func() bool {
		n, _ := accum.RequestCount(context.Background(), "cook")
		m, _ := accum.RequestCount(context.Background(), "miner")
		return n == 1 && m == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), src.calls.Load())
	// The in-flight mark is released once the fetch returns.
	require.Eventually(t, func() bool { return f.Fetch("miner") }, 2*time.Second, 10*time.Millisecond)
}

func TestFetcher_HealthGatesScheduledFetches(t *testing.T) {
	src := &pingSource{}
	src.fn = func(class string) ([]quest.Quest, error) { return draftBatch(class, 1), nil }
	f, _ := newFetcher(t, src, nil, "miner")
	ctx := context.Background()

	assert.False(t, f.Available())
	f.FetchAll()
	assert.Zero(t, src.calls.Load())

	src.up.Store(true)
	assert.True(t, f.CheckHealth(ctx))
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	src.up.Store(false)
	assert.False(t, f.CheckHealth(ctx))
	assert.False(t, f.Available())
}

func TestFetcher_ScheduleAndStop(t *testing.T) {
	src := &pingSource{}
	src.fn = func(class string) ([]quest.Quest, error) { return draftBatch(class, 1), nil }
	src.up.Store(true)
	f, _ := newFetcher(t, src, nil, "miner")
	sched := scheduler.New(testutil.NopLogger(t))
	t.Cleanup(sched.Stop)

	f.Schedule(sched, time.Hour, time.Hour)
	tasks := sched.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "generator.fetch", tasks[0].Name)
	assert.Equal(t, "generator.health", tasks[1].Name)

	require.True(t, sched.RunNow("generator.health"))
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	f.Stop()
	assert.Empty(t, sched.Tasks())
}

func TestIsUnavailable(t *testing.T) {
	assert.False(t, IsUnavailable(errors.New("other")))
	assert.True(t, IsUnavailable(fmt.Errorf("wrapped: %w", ErrUnavailable)))
}
