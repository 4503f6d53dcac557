package quest

import (
	"context"
	"encoding/json"

	"github.com/kasuganosora/questboard/cache"
	"go.uber.org/zap"
)

// ChannelActions is where gameplay servers publish ActionEvents. Crafting
// and smelting collaborators publish their completion events here too.
const ChannelActions = "quest:actions"

// ActionEvent is one observed player action.
type ActionEvent struct {
	PlayerID int64  `json:"player_id"`
	Action   string `json:"action"`
	Target   string `json:"target"`
	Amount   int    `json:"amount"`
}

// PublishAction encodes ev onto ChannelActions.
func PublishAction(ctx context.Context, ps cache.PubSub, ev ActionEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return ps.Publish(ctx, ChannelActions, string(b))
}

// Feed subscribes a Tracker to ChannelActions.
type Feed struct {
	ps      cache.PubSub
	tracker *Tracker
	logger  *zap.Logger
}

// NewFeed creates a Feed.
func NewFeed(ps cache.PubSub, tracker *Tracker, logger *zap.Logger) *Feed {
	return &Feed{ps: ps, tracker: tracker, logger: logger}
}

// Start subscribes and consumes events on a goroutine until ctx is done.
// The returned channel closes when the consumer exits.
func (f *Feed) Start(ctx context.Context) (<-chan struct{}, error) {
	msgs, cancel, err := f.ps.Subscribe(ctx, ChannelActions)
	if err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				f.handle(ctx, msg.Payload)
			}
		}
	}()
	return done, nil
}

func (f *Feed) handle(ctx context.Context, payload string) {
	var ev ActionEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		f.logger.Warn("bad action event", zap.String("payload", payload), zap.Error(err))
		return
	}
	if _, err := f.tracker.TrackAction(ctx, ev.PlayerID, ev.Action, ev.Target, ev.Amount); err != nil {
		f.logger.Warn("track action failed",
			zap.Int64("char_id", ev.PlayerID),
			zap.String("action", ev.Action),
			zap.Error(err))
	}
}
