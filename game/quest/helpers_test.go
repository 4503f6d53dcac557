package quest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kasuganosora/questboard/cache"
	"github.com/kasuganosora/questboard/plugin/hook"
	"github.com/kasuganosora/questboard/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.UnixMilli(t0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	db      *gorm.DB
	cache   cache.Cache
	pubsub  cache.PubSub
	catalog *Catalog
	store   *GormStore
	replica *Replica
	hooks   *hook.HookCenter
	clock   *fakeClock
	svc     *Service
	tracker *Tracker
}

func newTestEnv(t *testing.T, quests ...Quest) *testEnv {
	t.Helper()
	logger := testutil.NopLogger(t)
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)

	catalog := NewCatalog(logger)
	require.NoError(t, catalog.LoadFromContent(ContentFunc(func() ([]Quest, error) { return quests, nil })))

	env := &testEnv{
		db:      db,
		cache:   c,
		pubsub:  ps,
		catalog: catalog,
		store:   NewGormStore(db),
		replica: NewReplica(c, ps),
		hooks:   hook.NewHookCenter(),
		clock:   newFakeClock(),
	}
	chars := NewCharacters(db, logger)
	env.svc = NewService(Deps{
		Store:   env.store,
		Catalog: catalog,
		Players: chars,
		Rewards: chars,
		Replica: env.replica,
		Stats:   c,
		Hooks:   env.hooks,
	}, Config{Now: env.clock.Now}, logger)
	env.tracker = NewTracker(env.svc, logger)
	return env
}

func (e *testEnv) character(t *testing.T, name, class string, level int) int64 {
	t.Helper()
	return testutil.CreateCharacter(t, e.db, name, class, level).ID
}

func (e *testEnv) issue(t *testing.T, player int64, questID string) *Ticket {
	t.Helper()
	tk, err := e.svc.Issue(context.Background(), player, questID)
	require.NoError(t, err)
	return tk
}
