package board

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/kasuganosora/questboard/game/quest"
	"github.com/kasuganosora/questboard/game/world"
	"github.com/kasuganosora/questboard/plugin/hook"
	"go.uber.org/zap"
)

// Event is the hook payload for board events.
type Event struct {
	BoardID string
	Class   string
	Placed  int
}

// SlotView renders one slot; Ticket is nil for an empty slot.
type SlotView struct {
	Slot   int         `json:"slot"`
	Ticket *quest.View `json:"ticket"`
}

// Info is a read-only rendering of a board.
type Info struct {
	ID              string     `json:"id"`
	Class           string     `json:"class"`
	State           State      `json:"state"`
	Capacity        int        `json:"capacity"`
	Filled          int        `json:"filled"`
	Taken           int        `json:"taken"`
	LastPopulatedAt int64      `json:"last_populated_at"`
	Slots           []SlotView `json:"slots,omitempty"`
}

// Deps groups the collaborators of a Manager. Store and Hooks are
// optional.
type Deps struct {
	Loop        *world.Loop
	Service     *quest.Service
	Accumulator *quest.Accumulator
	Store       *Store
	Hooks       *hook.HookCenter
	// Classes are pulled from the accumulation cache for class-agnostic
	// boards in addition to the catalog's classes.
	Classes []string
	Options []Option
}

// Manager owns every board. Board state is only touched on the loop.
type Manager struct {
	loop    *world.Loop
	svc     *quest.Service
	accum   *quest.Accumulator
	store   *Store
	hooks   *hook.HookCenter
	classes []string
	opts    []Option
	logger  *zap.Logger

	boards map[string]*Board
	order  []string
}

// NewManager creates a Manager with no boards.
func NewManager(deps Deps, logger *zap.Logger) *Manager {
	return &Manager{
		loop:    deps.Loop,
		svc:     deps.Service,
		accum:   deps.Accumulator,
		store:   deps.Store,
		hooks:   deps.Hooks,
		classes: deps.Classes,
		opts:    deps.Options,
		logger:  logger,
		boards:  make(map[string]*Board),
	}
}

// Register adds a board, restoring its stored snapshot if there is one,
// and attempts its initial population. Registering a known id is a no-op.
func (m *Manager) Register(ctx context.Context, id, class string, capacity int) error {
	return m.loop.Do(ctx, func() error {
		if _, ok := m.boards[id]; ok {
			return nil
		}
		b := New(id, class, capacity, m.opts...)
		if m.store != nil {
			snap, err := m.store.Load(ctx, id)
			switch {
			case err == nil:
				b = Restore(snap, capacity, m.opts...)
				b.Class = quest.NormalizeClass(class)
			case !errors.Is(err, ErrBoardNotFound):
				return fmt.Errorf("load board %s: %w", id, err)
			}
		}
		m.boards[id] = b
		m.order = append(m.order, id)
		if n := b.TryInitialPopulation(m.candidates(ctx, b), m.svc.Now()); n > 0 {
			m.fire(ctx, hook.OnBoardPopulated, b, n)
		}
		m.save(ctx, b)
		m.logger.Info("board registered",
			zap.String("board_id", id),
			zap.String("class", b.Class),
			zap.Int("capacity", b.Capacity()),
			zap.Int("filled", b.Filled()))
		return nil
	})
}

// Boards lists every board without slot details.
func (m *Manager) Boards(ctx context.Context) ([]Info, error) {
	var out []Info
	err := m.loop.Do(ctx, func() error {
		for _, id := range m.order {
			out = append(out, m.info(m.boards[id], false))
		}
		return nil
	})
	return out, err
}

// Open renders a board for a viewer. A board that is still EMPTY is
// populated first, and one that stays empty is regenerated.
func (m *Manager) Open(ctx context.Context, id string) (Info, error) {
	var out Info
	err := m.withBoard(ctx, id, func(b *Board) error {
		now := m.svc.Now()
		if n := b.TryInitialPopulation(m.candidates(ctx, b), now); n > 0 {
			m.fire(ctx, hook.OnBoardPopulated, b, n)
			m.save(ctx, b)
		}
		if b.Filled() == 0 {
			if n := b.ForceRegenerateQuests(m.candidates(ctx, b), now); n > 0 {
				m.fire(ctx, hook.OnBoardRegenerate, b, n)
				m.save(ctx, b)
			}
		}
		out = m.info(b, true)
		return nil
	})
	return out, err
}

// Take hands the ticket in slot to player. The ticket leaves the board
// only if the player accepted it.
func (m *Manager) Take(ctx context.Context, id string, slot int, playerID int64) (quest.View, error) {
	var out quest.View
	err := m.withBoard(ctx, id, func(b *Board) error {
		offered, err := b.Peek(slot)
		if err != nil {
			return err
		}
		if offered == nil {
			return quest.ErrQuestUnavailable
		}
		t := *offered
		if err := m.svc.Accept(ctx, playerID, &t); err != nil {
			return err
		}
		if _, err := b.Take(slot); err != nil {
			return err
		}
		m.save(ctx, b)
		out = t.Observe(m.svc.Now())
		return nil
	})
	return out, err
}

// Refresh tops up claimed and expired slots of one board.
func (m *Manager) Refresh(ctx context.Context, id string) (int, error) {
	var n int
	err := m.withBoard(ctx, id, func(b *Board) error {
		n = m.refresh(ctx, b)
		return nil
	})
	return n, err
}

// Regenerate clears one board and repopulates it. It reports
// ErrContentUnavailable when no quest could be placed.
func (m *Manager) Regenerate(ctx context.Context, id string) (int, error) {
	var n int
	err := m.withBoard(ctx, id, func(b *Board) error {
		n = b.ForceRegenerateQuests(m.candidates(ctx, b), m.svc.Now())
		m.save(ctx, b)
		m.fire(ctx, hook.OnBoardRegenerate, b, n)
		m.logger.Info("board regenerated", zap.String("board_id", id), zap.Int("placed", n))
		if n == 0 {
			return quest.ErrContentUnavailable
		}
		return nil
	})
	return n, err
}

// RefreshAll refreshes every board and returns the slots filled.
func (m *Manager) RefreshAll(ctx context.Context) (int, error) {
	return m.refreshWhere(ctx, func(*Board) bool { return true })
}

// RefreshClass refreshes the boards that offer quests of class.
func (m *Manager) RefreshClass(ctx context.Context, class string) (int, error) {
	class = quest.NormalizeClass(class)
	return m.refreshWhere(ctx, func(b *Board) bool { return b.Accepts(class) })
}

func (m *Manager) refreshWhere(ctx context.Context, match func(*Board) bool) (int, error) {
	total := 0
	err := m.loop.Do(ctx, func() error {
		for _, id := range m.order {
			if b := m.boards[id]; match(b) {
				total += m.refresh(ctx, b)
			}
		}
		return nil
	})
	return total, err
}

func (m *Manager) refresh(ctx context.Context, b *Board) int {
	n := b.RefreshQuests(m.candidates(ctx, b), m.svc.Now())
	m.save(ctx, b)
	m.fire(ctx, hook.OnBoardRefreshed, b, n)
	m.logger.Debug("board refreshed",
		zap.String("board_id", b.ID), zap.Int("placed", n), zap.Int("filled", b.Filled()))
	return n
}

func (m *Manager) withBoard(ctx context.Context, id string, fn func(b *Board) error) error {
	return m.loop.Do(ctx, func() error {
		b, ok := m.boards[id]
		if !ok {
			return ErrBoardNotFound
		}
		return fn(b)
	})
}

// candidates moves pending generated quests for the board's classes into
// the catalog, then returns the catalog quests the board may offer.
func (m *Manager) candidates(ctx context.Context, b *Board) []quest.Quest {
	catalog := m.svc.Catalog()
	classes := []string{b.Class}
	if b.Class == quest.ClassAny {
		classes = append(slices.Clone(m.classes), catalog.Classes()...)
	} else {
		classes = append(classes, quest.ClassAny)
	}
	if m.accum != nil {
		seen := map[string]bool{}
		for _, class := range classes {
			class = quest.NormalizeClass(class)
			if seen[class] {
				continue
			}
			seen[class] = true
			pending, err := m.accum.Take(ctx, class)
			if err != nil {
				m.logger.Warn("accumulation pull failed", zap.String("class", class), zap.Error(err))
				continue
			}
			if n := catalog.Augment(pending); n > 0 {
				m.logger.Debug("generated quests merged",
					zap.String("class", class), zap.Int("quests", n))
			}
		}
	}
	if b.Class == quest.ClassAny {
		return catalog.All()
	}
	return catalog.QuestsForClass(b.Class)
}

func (m *Manager) info(b *Board, slots bool) Info {
	out := Info{
		ID:              b.ID,
		Class:           b.Class,
		State:           b.State(),
		Capacity:        b.Capacity(),
		Filled:          b.Filled(),
		Taken:           b.Taken(),
		LastPopulatedAt: b.LastPopulatedAt(),
	}
	if slots {
		now := m.svc.Now()
		for i, t := range b.Slots() {
			sv := SlotView{Slot: i}
			if t != nil {
				v := t.Observe(now)
				sv.Ticket = &v
			}
			out.Slots = append(out.Slots, sv)
		}
	}
	return out
}

func (m *Manager) save(ctx context.Context, b *Board) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, b); err != nil {
		m.logger.Warn("board save failed", zap.String("board_id", b.ID), zap.Error(err))
	}
}

// fire triggers a board event, then OnTicketOffered for each ticket the
// board just placed.
func (m *Manager) fire(ctx context.Context, event string, b *Board, placed int) {
	if m.hooks == nil {
		return
	}
	_, _ = m.hooks.Trigger(ctx, event, Event{BoardID: b.ID, Class: b.Class, Placed: placed})
	if placed == 0 {
		return
	}
	now := m.svc.Now()
	for _, t := range b.lastPlaced {
		_, _ = m.hooks.Trigger(ctx, hook.OnTicketOffered, quest.TicketEvent{Ticket: t.Observe(now)})
	}
}
