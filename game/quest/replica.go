package quest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kasuganosora/questboard/cache"
)

// ChannelTicketUpdate carries a ReplicaNotice for every replica write.
const ChannelTicketUpdate = "quest:ticket_update"

func replicaKey(id string) string { return "quest:ticket:" + id }

// ReplicaNotice is published on ChannelTicketUpdate.
type ReplicaNotice struct {
	TicketID string `json:"ticket_id"`
	OwnerID  int64  `json:"owner_id"`
	State    State  `json:"state"`
	Removed  bool   `json:"removed,omitempty"`
}

// Replica mirrors the display fields of each held ticket into a cache hash
// so display surfaces can render countdowns without the store.
type Replica struct {
	c  cache.Cache
	ps cache.PubSub
}

// NewReplica creates a Replica. ps may be nil to skip notifications.
func NewReplica(c cache.Cache, ps cache.PubSub) *Replica {
	return &Replica{c: c, ps: ps}
}

// Publish writes the display record of t and announces it.
func (r *Replica) Publish(ctx context.Context, t *Ticket) error {
	fields := map[string]string{
		"quest_id":         t.QuestID,
		"owner_id":         strconv.FormatInt(t.OwnerID, 10),
		"state":            string(t.State),
		"accepted_at":      strconv.FormatInt(t.AcceptedAt, 10),
		"progress":         strconv.Itoa(t.Progress),
		"completion_ready": strconv.FormatBool(t.CompletionReady),
		"damaged":          strconv.FormatBool(t.Damaged()),
	}
	if !t.Damaged() {
		fields["time_limit"] = strconv.Itoa(t.Quest.TimeLimit)
		fields["required"] = strconv.Itoa(t.Quest.Objective.Amount)
		fields["title"] = t.Quest.Title
	}
	if err := r.c.HSet(ctx, replicaKey(t.ID), fields); err != nil {
		return fmt.Errorf("replica write %s: %w", t.ID, err)
	}
	return r.notify(ctx, ReplicaNotice{TicketID: t.ID, OwnerID: t.OwnerID, State: t.State})
}

// Remove drops the display record of a destroyed ticket.
func (r *Replica) Remove(ctx context.Context, id string, owner int64) error {
	if err := r.c.Del(ctx, replicaKey(id)); err != nil {
		return fmt.Errorf("replica remove %s: %w", id, err)
	}
	return r.notify(ctx, ReplicaNotice{TicketID: id, OwnerID: owner, Removed: true})
}

// Observe re-derives a view from the replicated record alone. Like
// Ticket.Observe it only renders; the store stays authoritative.
func (r *Replica) Observe(ctx context.Context, id string, now int64) (View, error) {
	h, err := r.c.HGetAll(ctx, replicaKey(id))
	if err != nil {
		return View{}, err
	}
	if len(h) == 0 {
		return View{}, ErrTicketNotFound
	}
	t := &Ticket{
		ID:              id,
		QuestID:         h["quest_id"],
		State:           State(h["state"]),
		CompletionReady: h["completion_ready"] == "true",
	}
	t.OwnerID, _ = strconv.ParseInt(h["owner_id"], 10, 64)
	t.AcceptedAt, _ = strconv.ParseInt(h["accepted_at"], 10, 64)
	t.Progress, _ = strconv.Atoi(h["progress"])
	if h["damaged"] != "true" {
		q := Quest{ID: t.QuestID, Title: h["title"]}
		q.TimeLimit, _ = strconv.Atoi(h["time_limit"])
		q.Objective.Amount, _ = strconv.Atoi(h["required"])
		t.Quest = &q
	}
	return t.Observe(now), nil
}

func (r *Replica) notify(ctx context.Context, n ReplicaNotice) error {
	if r.ps == nil {
		return nil
	}
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return r.ps.Publish(ctx, ChannelTicketUpdate, string(b))
}
