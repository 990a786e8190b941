package ride

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-navigation/internal/models"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) SessionEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recordingSink) waitFor(t *testing.T, kind EventKind) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, k := range r.kinds() {
			if k == kind {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("event %s never observed, saw %v", kind, r.kinds())
}

func testStops() []models.Stop {
	return []models.Stop{
		{StockID: "s1", Kind: models.StopPickup, Order: 0},
		{StockID: "s1", Kind: models.StopDrop, Order: 1},
	}
}

func TestManagerFullRide(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	m := NewManager(nil, sink)

	a, err := m.Start(ctx, "b1", "d1", testStops())
	require.NoError(t, err)

	// a second start for the same booking is rejected
	_, err = m.Start(ctx, "b1", "d1", testStops())
	assert.True(t, errors.Is(err, ErrSessionExists))

	require.NoError(t, a.Do(ctx, Command{Action: ActionStartLoading, StockID: "s1"}))
	require.NoError(t, a.Do(ctx, Command{Action: ActionTimerTick, StockID: "s1", Kind: "loading", Elapsed: 12}))
	require.NoError(t, a.Do(ctx, Command{Action: ActionStopLoading, StockID: "s1"}))
	require.NoError(t, a.Do(ctx, Command{Action: ActionStartUnloading, StockID: "s1"}))
	require.NoError(t, a.Do(ctx, Command{Action: ActionStopUnloading, StockID: "s1"}))

	sink.waitFor(t, EventRideCompleted)

	// session discarded once terminal
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := m.Get("b1"); errors.Is(err, ErrNoSession) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session not discarded after completion")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// late commands fail cleanly
	err = a.Do(ctx, Command{Action: ActionCancel})
	assert.True(t, errors.Is(err, ErrSessionClosed))
}

func TestManagerInvalidCommandKeepsState(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil)
	a, err := m.Start(ctx, "b2", "d1", testStops())
	require.NoError(t, err)

	err = a.Do(ctx, Command{Action: ActionStartUnloading, StockID: "s1"})
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	snap, err := a.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, PhaseInProgress, snap.Phase)
	assert.Equal(t, 0, snap.CurrentStep)

	require.NoError(t, m.Do(ctx, "b2", Command{Action: ActionCancel}))
}

func TestManagerDoUnknownBooking(t *testing.T) {
	m := NewManager(nil)
	err := m.Do(context.Background(), "nope", Command{Action: ActionCancel})
	assert.True(t, errors.Is(err, ErrNoSession))
}

func TestActorTimerEventsForwarded(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	m := NewManager(nil, sink)
	a, err := m.Start(ctx, "b3", "d1", testStops())
	require.NoError(t, err)

	require.NoError(t, a.Do(ctx, Command{Action: ActionStartLoading, StockID: "s1"}))
	require.NoError(t, a.Do(ctx, Command{Action: ActionTimerTick, StockID: "s1", Kind: "loading", Elapsed: 30}))
	sink.waitFor(t, EventTimerUpdated)

	require.NoError(t, a.Do(ctx, Command{Action: ActionCancel}))
	sink.waitFor(t, EventRideCancelled)
}
