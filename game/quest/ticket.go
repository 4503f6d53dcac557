package quest

import (
	"github.com/google/uuid"
)

// State is the lifecycle state of a ticket.
type State string

const (
	StateAvailable  State = "available"
	StateAccepted   State = "accepted"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"

	// StateDamaged is never stored. Read paths report it for tickets whose
	// quest snapshot is missing.
	StateDamaged State = "damaged"
)

// Active reports whether the deadline is running.
func (s State) Active() bool { return s == StateAccepted || s == StateInProgress }

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

const msPerMinute = 60_000

// Ticket is a stateful instance of a Quest. Quest is a denormalised copy
// of the definition; nil means the ticket is damaged. All timestamps are
// wall-clock milliseconds, 0 meaning unset.
//
// Ticket methods are not safe for concurrent use; Service serialises
// access per ticket.
type Ticket struct {
	ID              string
	QuestID         string
	Quest           *Quest
	OwnerID         int64
	BoardID         string
	State           State
	OfferedAt       int64
	AcceptedAt      int64
	CompletedAt     int64
	Progress        int
	CompletionReady bool
	RewardGranted   bool
}

// NewTicket materialises q into an AVAILABLE ticket.
func NewTicket(q Quest, now int64) *Ticket {
	return &Ticket{
		ID:        uuid.NewString(),
		QuestID:   q.ID,
		Quest:     &q,
		State:     StateAvailable,
		OfferedAt: now,
	}
}

// Damaged reports whether the quest snapshot is missing.
func (t *Ticket) Damaged() bool { return t.Quest == nil }

// Required is the objective amount, 0 for damaged tickets.
func (t *Ticket) Required() int {
	if t.Damaged() {
		return 0
	}
	return t.Quest.Objective.Amount
}

func (t *Ticket) limitMs() int64 {
	if t.Damaged() {
		return 0
	}
	return int64(t.Quest.TimeLimit) * msPerMinute
}

// Acquire fires when the ticket first enters owner's holding: it starts
// the deadline. Calling it again for the same owner is a no-op.
func (t *Ticket) Acquire(owner int64, now int64) error {
	if t.Damaged() {
		return ErrDamagedArtifact
	}
	if t.OwnerID != 0 && t.OwnerID != owner {
		return ErrNotOwner
	}
	if t.State != StateAvailable {
		return nil
	}
	t.OwnerID = owner
	t.State = StateAccepted
	t.AcceptedAt = now
	return nil
}

func (t *Ticket) expired(now int64) bool {
	limit := t.limitMs()
	return limit > 0 && t.AcceptedAt != 0 && now-t.AcceptedAt >= limit
}

// Evaluate is the authoritative deadline check. It commits FAILED when an
// active ticket has run out of time and reports whether it did.
func (t *Ticket) Evaluate(now int64) bool {
	if t.Damaged() || !t.State.Active() || !t.expired(now) {
		return false
	}
	t.State = StateFailed
	return true
}

// Advance adds amount to the progress of an active ticket, capped at the
// required amount. The deadline is evaluated first so an expired ticket
// fails instead of advancing. It returns the progress actually added.
func (t *Ticket) Advance(amount int, now int64) int {
	if amount <= 0 || t.Evaluate(now) || t.Damaged() || !t.State.Active() {
		return 0
	}
	required := t.Required()
	next := min(t.Progress+amount, required)
	added := next - t.Progress
	if added <= 0 {
		return 0
	}
	t.Progress = next
	t.State = StateInProgress
	if t.Progress >= required {
		t.CompletionReady = true
	}
	return added
}

// RemainingSeconds is max(0, limit*60 - (now-accepted)/1000). A ticket not
// yet acquired reports its full limit, a completed ticket 0 and a damaged
// ticket -1.
func (t *Ticket) RemainingSeconds(now int64) int64 {
	if t.Damaged() {
		return -1
	}
	limitSec := int64(t.Quest.TimeLimit) * 60
	switch {
	case t.State == StateCompleted:
		return 0
	case t.AcceptedAt == 0:
		return limitSec
	}
	return max(0, limitSec-(now-t.AcceptedAt)/1000)
}

// TurnIn moves a completion-ready active ticket to COMPLETED. The deadline
// is re-checked first; the caller persists a FAILED result.
func (t *Ticket) TurnIn(now int64) error {
	if t.Damaged() {
		return ErrDamagedArtifact
	}
	t.Evaluate(now)
	switch t.State {
	case StateCompleted:
		return ErrAlreadyCompleted
	case StateFailed:
		return ErrTicketFailed
	case StateAvailable:
		return ErrNotReady
	}
	if !t.CompletionReady {
		return ErrNotReady
	}
	t.State = StateCompleted
	t.CompletedAt = now
	t.AcceptedAt = 0
	return nil
}

// Matches reports whether an observed action advances this ticket.
func (t *Ticket) Matches(action ObjectiveType, target string) bool {
	if t.Damaged() {
		return false
	}
	obj := t.Quest.Objective
	return actionSatisfies(action, obj.Type) && NormalizeTarget(obj.Target) == NormalizeTarget(target)
}

// View is a read-only rendering of a ticket at a point in time.
type View struct {
	ID               string `json:"id"`
	QuestID          string `json:"quest_id"`
	Quest            *Quest `json:"quest,omitempty"`
	BoardID          string `json:"board_id,omitempty"`
	State            State  `json:"state"`
	AcceptedAt       int64  `json:"accepted_at"`
	CompletedAt      int64  `json:"completed_at,omitempty"`
	Progress         int    `json:"progress"`
	Required         int    `json:"required"`
	CompletionReady  bool   `json:"completion_ready"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	Unlimited        bool   `json:"unlimited"`
}

// Observe derives what a display surface should show at now. It never
// mutates the ticket: an expired active ticket is shown as FAILED but only
// Evaluate commits that.
func (t *Ticket) Observe(now int64) View {
	v := View{
		ID:               t.ID,
		QuestID:          t.QuestID,
		BoardID:          t.BoardID,
		State:            t.State,
		AcceptedAt:       t.AcceptedAt,
		CompletedAt:      t.CompletedAt,
		Progress:         t.Progress,
		CompletionReady:  t.CompletionReady,
		RemainingSeconds: t.RemainingSeconds(now),
	}
	if t.Damaged() {
		v.State = StateDamaged
		return v
	}
	q := *t.Quest
	v.Quest = &q
	v.Required = q.Objective.Amount
	v.Unlimited = q.TimeLimit == 0
	if t.State.Active() && t.expired(now) {
		v.State = StateFailed
	}
	return v
}
