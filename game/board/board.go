// Package board implements quest bulletin boards: fixed-capacity offer
// points that expose a random subset of the catalog as tickets.
package board

import (
	"errors"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/kasuganosora/questboard/game/quest"
)

// State is the lifecycle state of a board.
type State string

const (
	StateEmpty       State = "empty"
	StatePopulated   State = "populated"
	StateRefreshed   State = "refreshed"
	StateRegenerated State = "regenerated"
)

// DefaultCapacity is the slot count of a board created without one.
const DefaultCapacity = 21

var (
	ErrSlotOutOfRange = errors.New("board: slot out of range")
	ErrBoardNotFound  = errors.New("board: not found")
)

// Selector picks an index in [0, n) among n eligible candidates.
type Selector interface {
	Pick(n int) int
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(n int) int

func (f SelectorFunc) Pick(n int) int { return f(n) }

// UniformSelector picks uniformly at random.
type UniformSelector struct{}

func (UniformSelector) Pick(n int) int { return rand.IntN(n) }

// Option configures a Board.
type Option func(*Board)

// WithOfferTTL makes offers older than ttl eligible for replacement on
// refresh. Zero keeps offers until they are taken.
func WithOfferTTL(ttl time.Duration) Option {
	return func(b *Board) { b.offerTTL = ttl.Milliseconds() }
}

// WithSelector overrides the candidate selection policy.
func WithSelector(s Selector) Option {
	return func(b *Board) { b.selector = s }
}

// Board holds one ticket per slot. It is not safe for concurrent use; the
// Manager confines every board to the world loop.
type Board struct {
	ID    string
	Class string // normalised; quest.ClassAny means class-agnostic

	slots           []*quest.Ticket
	state           State
	lastPopulatedAt int64
	taken           int
	offerTTL        int64
	selector        Selector
	lastPlaced      []*quest.Ticket
}

// New creates an EMPTY board. A capacity <= 0 selects DefaultCapacity.
func New(id, class string, capacity int, opts ...Option) *Board {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Board{
		ID:       id,
		Class:    quest.NormalizeClass(class),
		slots:    make([]*quest.Ticket, capacity),
		state:    StateEmpty,
		selector: UniformSelector{},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Board) State() State           { return b.state }
func (b *Board) Capacity() int          { return len(b.slots) }
func (b *Board) LastPopulatedAt() int64 { return b.lastPopulatedAt }
func (b *Board) Taken() int             { return b.taken }

// Filled counts the occupied slots.
func (b *Board) Filled() int {
	n := 0
	for _, t := range b.slots {
		if t != nil {
			n++
		}
	}
	return n
}

// Slots returns the slot array; nil entries are empty slots.
func (b *Board) Slots() []*quest.Ticket { return slices.Clone(b.slots) }

// LastPlaced returns the tickets put on the board by the most recent
// population, refresh or regeneration.
func (b *Board) LastPlaced() []*quest.Ticket { return slices.Clone(b.lastPlaced) }

// Offered returns the quest ids currently on the board.
func (b *Board) Offered() []string {
	var out []string
	for _, t := range b.slots {
		if t != nil {
			out = append(out, t.QuestID)
		}
	}
	return out
}

// Accepts reports whether a quest of class may be offered here.
func (b *Board) Accepts(class string) bool {
	return b.Class == quest.ClassAny || quest.ClassMatches(class, b.Class)
}

// TryInitialPopulation fills an EMPTY board from candidates and returns
// the number of slots filled. On any other state it changes nothing and
// returns 0. A board that could not place a single quest stays EMPTY.
func (b *Board) TryInitialPopulation(candidates []quest.Quest, now int64) int {
	if b.state != StateEmpty {
		return 0
	}
	n := b.fill(candidates, now)
	if n > 0 {
		b.state = StatePopulated
		b.lastPopulatedAt = now
	}
	return n
}

// RefreshQuests replaces claimed, damaged and expired slots and leaves the
// rest untouched. An EMPTY board gets its initial population instead.
func (b *Board) RefreshQuests(candidates []quest.Quest, now int64) int {
	if b.state == StateEmpty {
		return b.TryInitialPopulation(candidates, now)
	}
	for i, t := range b.slots {
		if t != nil && b.stale(t, now) {
			b.slots[i] = nil
		}
	}
	n := b.fill(candidates, now)
	b.state = StateRefreshed
	if n > 0 {
		b.lastPopulatedAt = now
	}
	return n
}

// ForceRegenerateQuests clears every slot and repopulates.
func (b *Board) ForceRegenerateQuests(candidates []quest.Quest, now int64) int {
	clear(b.slots)
	n := b.fill(candidates, now)
	if n == 0 {
		b.state = StateEmpty
		return 0
	}
	b.state = StateRegenerated
	b.lastPopulatedAt = now
	return n
}

// Peek returns the ticket in slot without removing it; nil if empty.
func (b *Board) Peek(slot int) (*quest.Ticket, error) {
	if slot < 0 || slot >= len(b.slots) {
		return nil, ErrSlotOutOfRange
	}
	return b.slots[slot], nil
}

// Take removes and returns the ticket in slot, freeing its quest id.
func (b *Board) Take(slot int) (*quest.Ticket, error) {
	t, err := b.Peek(slot)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, quest.ErrQuestUnavailable
	}
	b.slots[slot] = nil
	b.taken++
	return t, nil
}

func (b *Board) stale(t *quest.Ticket, now int64) bool {
	if t.Damaged() {
		return true
	}
	return b.offerTTL > 0 && now-t.OfferedAt >= b.offerTTL
}

// fill places one candidate per empty slot. Candidates of another class or
// already on the board are skipped; each id is offered at most once.
func (b *Board) fill(candidates []quest.Quest, now int64) int {
	b.lastPlaced = b.lastPlaced[:0]
	seen := make(map[string]bool, len(b.slots))
	for _, t := range b.slots {
		if t != nil {
			seen[t.QuestID] = true
		}
	}
	pool := make([]quest.Quest, 0, len(candidates))
	for _, q := range candidates {
		if seen[q.ID] || !b.Accepts(q.Class) {
			continue
		}
		seen[q.ID] = true
		pool = append(pool, q)
	}

	placed := 0
	for i := range b.slots {
		if len(pool) == 0 {
			break
		}
		if b.slots[i] != nil {
			continue
		}
		j := b.selector.Pick(len(pool))
		t := quest.NewTicket(pool[j], now)
		t.BoardID = b.ID
		b.slots[i] = t
		b.lastPlaced = append(b.lastPlaced, t)
		pool[j] = pool[len(pool)-1]
		pool = pool[:len(pool)-1]
		placed++
	}
	return placed
}

// Snapshot is the persisted form of a board.
type Snapshot struct {
	ID              string
	Class           string
	State           State
	LastPopulatedAt int64
	Taken           int
	Slots           []*quest.Ticket
}

// Snapshot captures the board for persistence.
func (b *Board) Snapshot() Snapshot {
	return Snapshot{
		ID:              b.ID,
		Class:           b.Class,
		State:           b.state,
		LastPopulatedAt: b.lastPopulatedAt,
		Taken:           b.taken,
		Slots:           b.Slots(),
	}
}

// Restore rebuilds a board from s. capacity wins over the stored slot
// count: extra slots are dropped and missing ones start empty.
func Restore(s Snapshot, capacity int, opts ...Option) *Board {
	b := New(s.ID, s.Class, capacity, opts...)
	copy(b.slots, s.Slots)
	b.state = s.State
	b.lastPopulatedAt = s.LastPopulatedAt
	b.taken = s.Taken
	if b.state == "" || b.Filled() == 0 {
		b.state = StateEmpty
	}
	return b
}
