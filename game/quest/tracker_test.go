package quest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	for in, want := range map[string]ObjectiveType{
		"collect": ObjectiveCollect,
		"PICKUP":  ObjectiveCollect,
		" slay ":  ObjectiveKill,
		"create":  ObjectiveCraft,
		"break":   ObjectiveMine,
		"cook":    ObjectiveCook,
	} {
		got, err := ParseAction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseAction("dance")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestNormalizeTarget(t *testing.T) {
	assert.Equal(t, "oak log", NormalizeTarget("minecraft:oak_log"))
	assert.Equal(t, "oak log", NormalizeTarget(" Oak Log "))
}

func TestTracker_ProgressIsCappedAndNeedsTurnIn(t *testing.T) {
	env := newTestEnv(t, woodQuest(5))
	ctx := context.Background()
	p := env.character(t, "Ann", "courier", 1)
	tk := env.issue(t, p, "gather_wood")

	moved, err := env.tracker.TrackAction(ctx, p, "collect", "Wood", 3)
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.Equal(t, 3, moved[0].Progress)
	assert.Equal(t, StateInProgress, moved[0].State)

	moved, err = env.tracker.TrackAction(ctx, p, "collect", "wood", 10)
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.Equal(t, 5, moved[0].Progress)
	assert.True(t, moved[0].CompletionReady)
	assert.Equal(t, StateInProgress, moved[0].State, "completion is never automatic")

	moved, err = env.tracker.TrackAction(ctx, p, "collect", "wood", 1)
	require.NoError(t, err)
	assert.Empty(t, moved)

	v, err := env.svc.View(ctx, p, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, v.Progress)
}

func TestTracker_MatchesEveryActiveTicket(t *testing.T) {
	cookQuest := Quest{
		ID: "smelt_iron", Class: "any", Title: "Smelt Iron",
		Objective: Objective{Type: ObjectiveCook, Target: "iron_ingot", Amount: 2},
		Reward:    Reward{Type: RewardExperience, Amount: 5},
	}
	env := newTestEnv(t, woodQuest(0), cookQuest)
	ctx := context.Background()
	p := env.character(t, "Ann", "courier", 1)
	env.issue(t, p, "gather_wood")
	env.issue(t, p, "gather_wood")
	env.issue(t, p, "smelt_iron")

	moved, err := env.tracker.TrackAction(ctx, p, "pickup", "wood", 1)
	require.NoError(t, err)
	assert.Len(t, moved, 2)

	moved, err = env.tracker.TrackAction(ctx, p, "smelt", "minecraft:iron_ingot", 2)
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.True(t, moved[0].CompletionReady)

	moved, err = env.tracker.TrackAction(ctx, p, "kill", "wood", 1)
	require.NoError(t, err)
	assert.Empty(t, moved)

	_, err = env.tracker.TrackAction(ctx, p, "dance", "wood", 1)
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestFeed_ConsumesPublishedActions(t *testing.T) {
	env := newTestEnv(t, woodQuest(0))
	ctx, cancel := context.WithCancel(context.Background())
	p := env.character(t, "Ann", "courier", 1)
	tk := env.issue(t, p, "gather_wood")

	done, err := NewFeed(env.pubsub, env.tracker, env.svc.logger).Start(ctx)
	require.NoError(t, err)

	require.NoError(t, PublishAction(ctx, env.pubsub, ActionEvent{PlayerID: p, Action: "collect", Target: "wood", Amount: 2}))
	require.Eventually(t, func() bool {
		v, err := env.svc.View(ctx, p, tk.ID)
		return err == nil && v.Progress == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop")
	}
}

func TestTracker_ConcurrentActionsNoLostUpdates(t *testing.T) {
	const workers = 40
	q := woodQuest(0)
	q.Objective.Amount = 100
	env := newTestEnv(t, q)
	ctx := context.Background()
	p := env.character(t, "Ann", "courier", 1)
	tk := env.issue(t, p, "gather_wood")

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.tracker.TrackAction(ctx, p, "collect", "wood", 1); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	v, err := env.svc.View(ctx, p, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, v.Progress)
	assert.False(t, v.CompletionReady)
}
