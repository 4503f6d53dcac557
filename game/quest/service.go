package quest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kasuganosora/questboard/audit"
	"github.com/kasuganosora/questboard/cache"
	"github.com/kasuganosora/questboard/plugin/hook"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TicketEvent is the hook payload for ticket lifecycle events.
type TicketEvent struct {
	OwnerID int64
	Ticket  View
	Added   int // progress added, for OnTicketProgress
}

// Auditor receives audit entries; *audit.Service implements it.
type Auditor interface {
	Log(entry audit.Entry)
}

// Config tunes a Service.
type Config struct {
	MaxActiveTickets int // 0 = unlimited
	Now              func() time.Time
}

// Service owns every ticket held by players. Reads evaluate the deadline
// and persist a FAILED transition; writes are serialised per ticket.
type Service struct {
	store   TicketStore
	catalog *Catalog
	players PlayerDirectory
	rewards RewardGranter
	replica *Replica
	stats   cache.Cache
	hooks   *hook.HookCenter
	audit   Auditor

	maxActive int
	now       func() time.Time
	locks     *keyedMutex
	logger    *zap.Logger
}

// Deps groups the collaborators of a Service. Replica, Stats, Hooks and
// Audit are optional.
type Deps struct {
	Store   TicketStore
	Catalog *Catalog
	Players PlayerDirectory
	Rewards RewardGranter
	Replica *Replica
	Stats   cache.Cache
	Hooks   *hook.HookCenter
	Audit   Auditor
}

// NewService creates a ticket Service.
func NewService(deps Deps, cfg Config, logger *zap.Logger) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:     deps.Store,
		catalog:   deps.Catalog,
		players:   deps.Players,
		rewards:   deps.Rewards,
		replica:   deps.Replica,
		stats:     deps.Stats,
		hooks:     deps.Hooks,
		audit:     deps.Audit,
		maxActive: cfg.MaxActiveTickets,
		now:       now,
		locks:     newKeyedMutex(),
		logger:    logger,
	}
}

// Now returns the service clock in wall-clock milliseconds.
func (svc *Service) Now() int64 { return svc.now().UnixMilli() }

// Catalog returns the catalog used by Issue.
func (svc *Service) Catalog() *Catalog { return svc.catalog }

// CheckEligibility reports why player may not take q, or nil.
func (svc *Service) CheckEligibility(ctx context.Context, playerID int64, q Quest) error {
	p, err := svc.players.Player(ctx, playerID)
	if err != nil {
		return err
	}
	return q.AvailableTo(p.Class, p.Level)
}

// Accept moves an offered ticket into player's holding: eligibility and
// the active-ticket limit are checked, then the acquire hook starts the
// deadline and the ticket is stored.
func (svc *Service) Accept(ctx context.Context, playerID int64, t *Ticket) error {
	if t.Damaged() {
		return ErrDamagedArtifact
	}
	if t.State != StateAvailable {
		return ErrQuestUnavailable
	}
	if err := svc.CheckEligibility(ctx, playerID, *t.Quest); err != nil {
		return err
	}
	return svc.acquire(ctx, playerID, t, "accept")
}

// Issue hands a fresh ticket for questID straight to player, bypassing
// boards and eligibility. Used by admin and debug tooling.
func (svc *Service) Issue(ctx context.Context, playerID int64, questID string) (*Ticket, error) {
	q, ok := svc.catalog.Get(questID)
	if !ok {
		return nil, ErrQuestUnavailable
	}
	if _, err := svc.players.Player(ctx, playerID); err != nil {
		return nil, err
	}
	t := NewTicket(q, svc.Now())
	if err := svc.acquire(ctx, playerID, t, "issue"); err != nil {
		return nil, err
	}
	return t, nil
}

func (svc *Service) acquire(ctx context.Context, playerID int64, t *Ticket, action string) error {
	unlock := svc.locks.Lock(ownerKey(playerID))
	defer unlock()

	if svc.maxActive > 0 {
		n, err := svc.store.CountActive(ctx, playerID)
		if err != nil {
			return fmt.Errorf("count active tickets: %w", err)
		}
		if n >= svc.maxActive {
			return ErrQuestLimitReached
		}
	}
	if err := t.Acquire(playerID, svc.Now()); err != nil {
		return err
	}
	if err := svc.store.Create(ctx, t); err != nil {
		return fmt.Errorf("store ticket: %w", err)
	}
	svc.publish(ctx, t)
	svc.bump(ctx, "accepted")
	svc.fire(ctx, hook.OnTicketAccepted, t, 0)
	svc.logger.Info("ticket acquired",
		zap.String("via", action),
		zap.String("ticket_id", t.ID),
		zap.String("quest_id", t.QuestID),
		zap.Int64("char_id", playerID))
	return nil
}

// View evaluates the deadline of one held ticket and renders it.
func (svc *Service) View(ctx context.Context, playerID int64, id string) (View, error) {
	var out View
	err := svc.withTicket(ctx, playerID, id, func(t *Ticket, now int64) error {
		out = t.Observe(now)
		return nil
	})
	return out, err
}

// List renders every ticket held by player, failing expired ones.
func (svc *Service) List(ctx context.Context, playerID int64) ([]View, error) {
	tickets, err := svc.store.ListByOwner(ctx, playerID)
	if err != nil {
		return nil, err
	}
	out := make([]View, 0, len(tickets))
	for _, t := range tickets {
		v, err := svc.View(ctx, playerID, t.ID)
		if errors.Is(err, ErrTicketNotFound) {
			continue // discarded concurrently
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// TurnIn completes a ready ticket and grants its reward exactly once.
// Repeated turn-ins report ErrAlreadyCompleted and change nothing.
func (svc *Service) TurnIn(ctx context.Context, playerID int64, id string) (View, error) {
	var out View
	start := time.Now()
	err := svc.withTicket(ctx, playerID, id, func(t *Ticket, now int64) error {
		if t.RewardGranted {
			return ErrAlreadyCompleted
		}
		if err := t.TurnIn(now); err != nil {
			return err
		}
		err := svc.store.Complete(ctx, t, func(tx *gorm.DB) error {
			if svc.rewards == nil {
				return nil
			}
			return svc.rewards.Grant(ctx, tx, playerID, t.Quest.Reward)
		})
		if err != nil {
			return err
		}
		out = t.Observe(now)
		svc.publish(ctx, t)
		svc.bump(ctx, "completed")
		svc.fire(ctx, hook.OnQuestComplete, t, 0)
		return nil
	})
	svc.record(ctx, audit.Entry{
		CharID:     playerID,
		Action:     "turn_in",
		Target:     id,
		Detail:     map[string]any{"quest_id": out.QuestID, "state": out.State},
		Error:      errString(err),
		DurationMs: int(time.Since(start).Milliseconds()),
	})
	return out, err
}

// Discard destroys a held ticket in any state, damaged ones included.
func (svc *Service) Discard(ctx context.Context, playerID int64, id string) error {
	unlock := svc.locks.Lock(id)
	defer unlock()

	t, err := svc.owned(ctx, playerID, id)
	if err != nil {
		return err
	}
	if err := svc.store.Delete(ctx, id); err != nil {
		return err
	}
	if svc.replica != nil {
		if err := svc.replica.Remove(ctx, id, playerID); err != nil {
			svc.logger.Warn("replica remove failed", zap.String("ticket_id", id), zap.Error(err))
		}
	}
	svc.bump(ctx, "discarded")
	svc.fire(ctx, hook.OnTicketDiscarded, t, 0)
	return nil
}

// ClearAllForPlayer destroys every ticket held by player and returns how
// many were removed. Clearing an empty holding is not an error.
func (svc *Service) ClearAllForPlayer(ctx context.Context, playerID int64) (int, error) {
	unlock := svc.locks.Lock(ownerKey(playerID))
	defer unlock()

	ids, err := svc.store.DeleteByOwner(ctx, playerID)
	if err != nil {
		return 0, err
	}
	if svc.replica != nil {
		for _, id := range ids {
			if err := svc.replica.Remove(ctx, id, playerID); err != nil {
				svc.logger.Warn("replica remove failed", zap.String("ticket_id", id), zap.Error(err))
			}
		}
	}
	svc.record(ctx, audit.Entry{
		CharID: playerID,
		Action: "clear_all_for_player",
		Detail: map[string]any{"removed": len(ids)},
	})
	svc.logger.Info("cleared player tickets",
		zap.Int64("char_id", playerID), zap.Int("removed", len(ids)))
	return len(ids), nil
}

// Stats returns the lifetime counters kept in the cache.
func (svc *Service) Stats(ctx context.Context) map[string]int64 {
	out := map[string]int64{}
	if svc.stats == nil {
		return out
	}
	for _, name := range []string{"accepted", "progressed", "completed", "failed", "discarded"} {
		v, err := svc.stats.Get(ctx, statsKey(name))
		if err != nil {
			continue
		}
		out[name], _ = strconv.ParseInt(v, 10, 64)
	}
	return out
}

// advance applies an observed action to one held ticket under its lock.
func (svc *Service) advance(ctx context.Context, playerID int64, id string, action ObjectiveType, target string, amount int) (View, int, error) {
	var out View
	var added int
	err := svc.withTicket(ctx, playerID, id, func(t *Ticket, now int64) error {
		if !t.State.Active() || !t.Matches(action, target) {
			return nil
		}
		wasReady := t.CompletionReady
		added = t.Advance(amount, now)
		if added == 0 {
			return nil
		}
		if err := svc.store.Save(ctx, t); err != nil {
			return err
		}
		out = t.Observe(now)
		svc.publish(ctx, t)
		svc.bump(ctx, "progressed")
		svc.fire(ctx, hook.OnTicketProgress, t, added)
		if t.CompletionReady && !wasReady {
			svc.fire(ctx, hook.OnTicketReady, t, added)
		}
		return nil
	})
	return out, added, err
}

// withTicket loads an owned ticket under its lock, commits a FAILED
// transition if the deadline passed, then runs fn.
func (svc *Service) withTicket(ctx context.Context, playerID int64, id string, fn func(t *Ticket, now int64) error) error {
	unlock := svc.locks.Lock(id)
	defer unlock()

	t, err := svc.owned(ctx, playerID, id)
	if err != nil {
		return err
	}
	now := svc.Now()
	if t.Evaluate(now) {
		if err := svc.store.Save(ctx, t); err != nil {
			return fmt.Errorf("persist failed ticket: %w", err)
		}
		svc.publish(ctx, t)
		svc.bump(ctx, "failed")
		svc.fire(ctx, hook.OnTicketFailed, t, 0)
		svc.logger.Info("ticket failed",
			zap.String("ticket_id", t.ID), zap.Int64("char_id", playerID))
	}
	return fn(t, now)
}

func (svc *Service) owned(ctx context.Context, playerID int64, id string) (*Ticket, error) {
	t, err := svc.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != playerID {
		return nil, ErrNotOwner
	}
	return t, nil
}

func (svc *Service) publish(ctx context.Context, t *Ticket) {
	if svc.replica == nil {
		return
	}
	if err := svc.replica.Publish(ctx, t); err != nil {
		svc.logger.Warn("replica publish failed", zap.String("ticket_id", t.ID), zap.Error(err))
	}
}

func (svc *Service) bump(ctx context.Context, name string) {
	if svc.stats == nil {
		return
	}
	if _, err := svc.stats.Incr(ctx, statsKey(name)); err != nil {
		svc.logger.Debug("stats increment failed", zap.String("counter", name), zap.Error(err))
	}
}

func (svc *Service) fire(ctx context.Context, event string, t *Ticket, added int) {
	if svc.hooks == nil {
		return
	}
	_, _ = svc.hooks.Trigger(ctx, event, TicketEvent{OwnerID: t.OwnerID, Ticket: t.Observe(svc.Now()), Added: added})
}

func (svc *Service) record(ctx context.Context, e audit.Entry) {
	if svc.audit == nil {
		return
	}
	if e.TraceID == "" {
		e.TraceID = audit.TraceID(ctx)
	}
	svc.audit.Log(e)
}

func ownerKey(id int64) string    { return "owner:" + strconv.FormatInt(id, 10) }
func statsKey(name string) string { return "quest:stats:" + name }

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
