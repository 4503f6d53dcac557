package hook

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrInterrupt signals that a Hook handler wants to stop further processing.
var ErrInterrupt = errors.New("hook interrupted")

// HookFn is a hook handler function.
// Returns (modified data, nil) to continue, or (data, ErrInterrupt) to stop.
type HookFn func(ctx context.Context, event string, data any) (any, error)

type hookEntry struct {
	priority int
	fn       HookFn
	name     string
}

// HookCenter manages event hook registrations. A nil *HookCenter is valid
// and triggers nothing.
type HookCenter struct {
	mu    sync.RWMutex
	hooks map[string][]*hookEntry
}

// NewHookCenter creates a new HookCenter.
func NewHookCenter() *HookCenter {
	return &HookCenter{hooks: make(map[string][]*hookEntry)}
}

// Register adds a HookFn for the given event with the given priority (lower runs first).
// Handlers of equal priority run in registration order.
func (hc *HookCenter) Register(event string, priority int, name string, fn HookFn) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	entries := append(hc.hooks[event], &hookEntry{priority: priority, fn: fn, name: name})
	slices.SortStableFunc(entries, func(a, b *hookEntry) int { return a.priority - b.priority })
	hc.hooks[event] = entries
}

// Unregister removes all hooks with the given name for the given event.
func (hc *HookCenter) Unregister(event, name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.hooks[event] = slices.DeleteFunc(hc.hooks[event], func(e *hookEntry) bool { return e.name == name })
}

// UnregisterAll removes all hooks registered with the given name across all events.
func (hc *HookCenter) UnregisterAll(name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	for event, entries := range hc.hooks {
		hc.hooks[event] = slices.DeleteFunc(entries, func(e *hookEntry) bool { return e.name == name })
	}
}

// Count returns the number of handlers registered for event.
func (hc *HookCenter) Count(event string) int {
	if hc == nil {
		return 0
	}
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return len(hc.hooks[event])
}

// Trigger executes all registered hooks for event in priority order.
// Data flows through each handler. ErrInterrupt stops the chain and is
// returned; other handler errors are ignored.
func (hc *HookCenter) Trigger(ctx context.Context, event string, data any) (any, error) {
	if hc == nil {
		return data, nil
	}
	hc.mu.RLock()
	entries := slices.Clone(hc.hooks[event])
	hc.mu.RUnlock()

	for _, e := range entries {
		out, err := e.fn(ctx, event, data)
		if errors.Is(err, ErrInterrupt) {
			return out, err
		}
		if err == nil {
			data = out
		}
	}
	return data, nil
}

// Ticket lifecycle events. Payload is a quest.TicketEvent.
const (
	OnTicketOffered   = "on_ticket_offered"
	OnTicketAccepted  = "on_ticket_accepted"
	OnTicketProgress  = "on_ticket_progress"
	OnTicketReady     = "on_ticket_ready"
	OnQuestComplete   = "on_quest_complete"
	OnTicketFailed    = "on_ticket_failed"
	OnTicketDiscarded = "on_ticket_discarded"
)

// Board events. Payload is a board.Event.
const (
	OnBoardPopulated  = "on_board_populated"
	OnBoardRefreshed  = "on_board_refreshed"
	OnBoardRegenerate = "on_board_regenerated"
)
