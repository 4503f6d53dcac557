package quest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrUnknownAction is returned for an action verb no objective accepts.
var ErrUnknownAction = errors.New("quest: unknown action")

var actionAliases = map[string]ObjectiveType{
	"pickup": ObjectiveCollect,
	"slay":   ObjectiveKill,
	"create": ObjectiveCraft,
	"break":  ObjectiveMine,
}

// ParseAction maps an action verb, aliases included, to an objective type.
func ParseAction(action string) (ObjectiveType, error) {
	a := strings.ToLower(strings.TrimSpace(action))
	if t, ok := actionAliases[a]; ok {
		return t, nil
	}
	if t := ObjectiveType(a); t.Valid() {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
}

// actionSatisfies reports whether an observed action counts towards an
// objective. Smelting also counts for cooking objectives.
func actionSatisfies(action, objective ObjectiveType) bool {
	return action == objective || (action == ObjectiveSmelt && objective == ObjectiveCook)
}

// NormalizeTarget lower-cases a target id, drops a "minecraft:" namespace
// and turns underscores into spaces so "minecraft:oak_log" equals "Oak Log".
func NormalizeTarget(target string) string {
	t := strings.ToLower(target)
	t = strings.ReplaceAll(t, "minecraft:", "")
	t = strings.ReplaceAll(t, "_", " ")
	return strings.TrimSpace(t)
}

// Tracker turns gameplay observations into ticket progress. Completion
// still needs an explicit turn-in.
type Tracker struct {
	svc    *Service
	logger *zap.Logger
}

// NewTracker creates a Tracker over svc's holdings.
func NewTracker(svc *Service, logger *zap.Logger) *Tracker {
	return &Tracker{svc: svc, logger: logger}
}

// TrackAction advances every active ticket of player whose objective
// matches action and target, and returns the tickets that moved.
func (tr *Tracker) TrackAction(ctx context.Context, playerID int64, action, target string, amount int) ([]View, error) {
	if amount <= 0 {
		return nil, nil
	}
	kind, err := ParseAction(action)
	if err != nil {
		return nil, err
	}
	tickets, err := tr.svc.store.ListByOwner(ctx, playerID)
	if err != nil {
		return nil, err
	}
	var moved []View
	for _, t := range tickets {
		if !t.State.Active() || !t.Matches(kind, target) {
			continue
		}
		v, added, err := tr.svc.advance(ctx, playerID, t.ID, kind, target, amount)
		if errors.Is(err, ErrTicketNotFound) {
			continue
		}
		if err != nil {
			return moved, err
		}
		if added > 0 {
			moved = append(moved, v)
		}
	}
	if len(moved) > 0 {
		tr.logger.Debug("action advanced tickets",
			zap.Int64("char_id", playerID),
			zap.String("action", string(kind)),
			zap.String("target", target),
			zap.Int("tickets", len(moved)))
	}
	return moved, nil
}
