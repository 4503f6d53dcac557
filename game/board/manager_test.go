package board

import (
	"context"
	"testing"

	"github.com/kasuganosora/questboard/game/quest"
	"github.com/kasuganosora/questboard/game/world"
	"github.com/kasuganosora/questboard/plugin/hook"
	"github.com/kasuganosora/questboard/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type managerEnv struct {
	db    *gorm.DB
	svc   *quest.Service
	accum *quest.Accumulator
	store *Store
	hooks *hook.HookCenter
	mgr   *Manager
	loop  *world.Loop
}

func newManagerEnv(t *testing.T, quests ...quest.Quest) *managerEnv {
	t.Helper()
	logger := testutil.NopLogger(t)
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)

	catalog := quest.NewCatalog(logger)
	require.NoError(t, catalog.LoadFromContent(quest.ContentFunc(func() ([]quest.Quest, error) { return quests, nil })))
	chars := quest.NewCharacters(db, logger)
	svc := quest.NewService(quest.Deps{
		Store:   quest.NewGormStore(db),
		Catalog: catalog,
		Players: chars,
		Rewards: chars,
		Replica: quest.NewReplica(c, ps),
	}, quest.Config{}, logger)

	loop := world.NewLoop(64, logger)
	go loop.Run()
	t.Cleanup(loop.Stop)

	env := &managerEnv{
		db:    db,
		svc:   svc,
		accum: quest.NewAccumulator(c, 3, logger),
		store: NewStore(db),
		hooks: hook.NewHookCenter(),
		loop:  loop,
	}
	env.mgr = env.newManager(t)
	return env
}

func (e *managerEnv) newManager(t *testing.T) *Manager {
	return NewManager(Deps{
		Loop:        e.loop,
		Service:     e.svc,
		Accumulator: e.accum,
		Store:       e.store,
		Hooks:       e.hooks,
		Classes:     []string{"miner", "courier"},
	}, testutil.NopLogger(t))
}

func firstFilled(t *testing.T, info Info) int {
	t.Helper()
	for _, s := range info.Slots {
		if s.Ticket != nil {
			return s.Slot
		}
	}
	t.Fatal("board has no ticket")
	return -1
}

func TestManager_RegisterPopulatesAndPersists(t *testing.T) {
	env := newManagerEnv(t, mkQuests("m", "miner", 5)...)
	ctx := context.Background()
	require.NoError(t, env.mgr.Register(ctx, "mine", "miner", 3))
	require.NoError(t, env.mgr.Register(ctx, "mine", "miner", 3))

	boards, err := env.mgr.Boards(ctx)
	require.NoError(t, err)
	require.Len(t, boards, 1)
	assert.Equal(t, 3, boards[0].Filled)
	assert.Equal(t, StatePopulated, boards[0].State)

	// A second manager restores the same offers.
	before, err := env.mgr.Open(ctx, "mine")
	require.NoError(t, err)
	other := env.newManager(t)
	require.NoError(t, other.Register(ctx, "mine", "miner", 3))
	after, err := other.Open(ctx, "mine")
	require.NoError(t, err)
	for i := range before.Slots {
		assert.Equal(t, before.Slots[i].Ticket.ID, after.Slots[i].Ticket.ID)
	}
}

func TestManager_PullsAccumulatedQuests(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()
	require.NoError(t, env.mgr.Register(ctx, "mine", "miner", 4))

	info, err := env.mgr.Open(ctx, "mine")
	require.NoError(t, err)
	assert.Zero(t, info.Filled)

	require.NoError(t, env.accum.Accumulate(ctx, "miner", mkQuests("gen", "miner", 2)))
	n, err := env.mgr.RefreshClass(ctx, "miner")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pending, err := env.accum.Pending(ctx, "miner")
	require.NoError(t, err)
	assert.Empty(t, pending)
	_, ok := env.svc.Catalog().Get("gen0")
	assert.True(t, ok)
}

func TestManager_TakeAcceptsTicket(t *testing.T) {
	env := newManagerEnv(t, mkQuests("m", "miner", 2)...)
	ctx := context.Background()
	require.NoError(t, env.mgr.Register(ctx, "mine", "miner", 2))
	miner := testutil.CreateCharacter(t, env.db, "Ann", "miner", 1).ID
	courier := testutil.CreateCharacter(t, env.db, "Bo", "courier", 1).ID

	info, err := env.mgr.Open(ctx, "mine")
	require.NoError(t, err)
	slot := firstFilled(t, info)

	_, err = env.mgr.Take(ctx, "mine", slot, courier)
	assert.ErrorIs(t, err, quest.ErrProfessionMismatch)
	info, _ = env.mgr.Open(ctx, "mine")
	require.NotNil(t, info.Slots[slot].Ticket, "rejected take keeps the offer")

	v, err := env.mgr.Take(ctx, "mine", slot, miner)
	require.NoError(t, err)
	assert.Equal(t, quest.StateAccepted, v.State)
	assert.Equal(t, "mine", v.BoardID)

	held, err := env.svc.List(ctx, miner)
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, v.ID, held[0].ID)

	_, err = env.mgr.Take(ctx, "mine", slot, miner)
	assert.ErrorIs(t, err, quest.ErrQuestUnavailable)
	_, err = env.mgr.Take(ctx, "nope", 0, miner)
	assert.ErrorIs(t, err, ErrBoardNotFound)
}

func TestManager_RegenerateAndRefresh(t *testing.T) {
	env := newManagerEnv(t, mkQuests("m", "miner", 6)...)
	ctx := context.Background()
	require.NoError(t, env.mgr.Register(ctx, "mine", "miner", 3))

	var events []string
	for _, ev := range []string{hook.OnBoardRefreshed, hook.OnBoardRegenerate} {
		env.hooks.Register(ev, 0, "test", func(_ context.Context, event string, data any) (any, error) {
			events = append(events, event)
			return data, nil
		})
	}

	n, err := env.mgr.Regenerate(ctx, "mine")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = env.mgr.RefreshAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing to replace")
	assert.Equal(t, []string{hook.OnBoardRegenerate, hook.OnBoardRefreshed}, events)

	_, err = env.mgr.Regenerate(ctx, "nope")
	assert.ErrorIs(t, err, ErrBoardNotFound)
}

func TestManager_RegenerateWithoutContent(t *testing.T) {
	env := newManagerEnv(t)
	ctx := context.Background()
	require.NoError(t, env.mgr.Register(ctx, "mine", "miner", 3))
	n, err := env.mgr.Regenerate(ctx, "mine")
	assert.ErrorIs(t, err, quest.ErrContentUnavailable)
	assert.Zero(t, n)
}

func TestManager_OpenRegeneratesStuckBoard(t *testing.T) {
	env := newManagerEnv(t, mkQuests("m", "miner", 1)...)
	ctx := context.Background()
	require.NoError(t, env.mgr.Register(ctx, "mine", "miner", 1))
	miner := testutil.CreateCharacter(t, env.db, "Ann", "miner", 1).ID

	_, err := env.mgr.Take(ctx, "mine", 0, miner)
	require.NoError(t, err)

	info, err := env.mgr.Open(ctx, "mine")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Filled)
	assert.Equal(t, StateRegenerated, info.State)
}

func TestManager_FiresOfferedPerPlacedTicket(t *testing.T) {
	env := newManagerEnv(t, mkQuests("m", "miner", 6)...)
	ctx := context.Background()

	var offered []quest.TicketEvent
	env.hooks.Register(hook.OnTicketOffered, 0, "test", func(_ context.Context, _ string, data any) (any, error) {
		offered = append(offered, data.(quest.TicketEvent))
		return data, nil
	})

	require.NoError(t, env.mgr.Register(ctx, "mine", "miner", 3))
	require.Len(t, offered, 3)
	info, err := env.mgr.Open(ctx, "mine")
	require.NoError(t, err)
	onBoard := []string{}
	for _, s := range info.Slots {
		onBoard = append(onBoard, s.Ticket.QuestID)
	}
	ids := []string{}
	for _, ev := range offered {
		assert.Equal(t, "mine", ev.Ticket.BoardID)
		assert.Equal(t, quest.StateAvailable, ev.Ticket.State)
		ids = append(ids, ev.Ticket.QuestID)
	}
	assert.ElementsMatch(t, onBoard, ids)

	n, err := env.mgr.RefreshAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, offered, 3, "refresh placed nothing")

	n, err = env.mgr.Regenerate(ctx, "mine")
	require.NoError(t, err)
	assert.Len(t, offered, 3+n)
}
