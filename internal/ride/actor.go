package ride

import (
	"context"
	"errors"

	"github.com/example/ride-navigation/internal/models"
)

// Action names a driver command or an external timer event.
type Action string

const (
	ActionStartRide      Action = "start_ride"
	ActionStopForStop    Action = "stop_for_stop"
	ActionStartLoading   Action = "start_loading"
	ActionStopLoading    Action = "stop_loading"
	ActionStartUnloading Action = "start_unloading"
	ActionStopUnloading  Action = "stop_unloading"
	ActionCancel         Action = "cancel"
	ActionTimerTick      Action = "timer_tick"
)

// Command is one unit of input to a session actor.
type Command struct {
	Action  Action
	Step    int
	StockID string
	Kind    string // loading|unloading, timer ticks only
	Elapsed int64

	reply chan error
}

// EventKind tags events emitted by a session actor.
type EventKind string

const (
	EventStateChanged  EventKind = "state_changed"
	EventStepCompleted EventKind = "step_completed"
	EventRideCompleted EventKind = "ride_completed"
	EventRideCancelled EventKind = "ride_cancelled"
	EventTimerUpdated  EventKind = "timer_updated"
)

// Event is one observable state change of a session.
type Event struct {
	Kind      EventKind
	BookingID string
	Phase     Phase
	Step      int
	StockID   string
	TimerKind string
	Elapsed   int64
}

// ErrSessionClosed is returned for commands sent after the actor stopped.
var ErrSessionClosed = errors.New("ride session closed")

// Snapshot is a read-only view of a session taken on its own goroutine.
type Snapshot struct {
	BookingID   string
	DriverID    string
	Phase       Phase
	CurrentStep int
	Stops       []models.Stop
	Completed   []int
	Legs        map[string]LegState
	Timers      map[string]int64
}

// Actor owns a Session and serializes all mutation onto one goroutine:
// commands in, events out. The transport layers only forward events and never
// touch session state directly.
type Actor struct {
	session *Session
	cmds    chan Command
	snaps   chan chan Snapshot
	events  chan Event
	done    chan struct{}
	stop    context.CancelFunc
}

const eventBuffer = 32

func newActor(s *Session) *Actor {
	return &Actor{
		session: s,
		cmds:    make(chan Command),
		snaps:   make(chan chan Snapshot),
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
	}
}

// Events is the stream of session state changes. It is closed when the
// session reaches a terminal state or its context ends.
func (a *Actor) Events() <-chan Event { return a.events }

// BookingID identifies the session this actor owns.
func (a *Actor) BookingID() string { return a.session.BookingID }

// Do submits a command and waits for the transition result.
func (a *Actor) Do(ctx context.Context, cmd Command) error {
	cmd.reply = make(chan error, 1)
	select {
	case a.cmds <- cmd:
	case <-a.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Actor) run(ctx context.Context) {
	defer close(a.events)
	defer close(a.done)
	for {
		select {
		case cmd := <-a.cmds:
			err := a.apply(cmd)
			cmd.reply <- err
			if a.session.terminal() {
				return
			}
		case reply := <-a.snaps:
			reply <- a.session.snapshot()
		case <-ctx.Done():
			return
		}
	}
}

// Snapshot returns a consistent copy of the session state.
func (a *Actor) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case a.snaps <- reply:
		return <-reply, nil
	case <-a.done:
		// actor loop has exited, nothing mutates the session anymore
		return a.session.snapshot(), nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (a *Actor) apply(cmd Command) error {
	s := a.session
	prevStep := s.CurrentStep
	var err error
	switch cmd.Action {
	case ActionStartRide:
		err = s.StartRide()
	case ActionStopForStop:
		err = s.StopRideForStop(cmd.Step)
	case ActionStartLoading:
		err = s.StartLoading(cmd.StockID)
	case ActionStopLoading:
		err = s.StopLoading(cmd.StockID)
	case ActionStartUnloading:
		err = s.StartUnloading(cmd.StockID)
	case ActionStopUnloading:
		err = s.StopUnloading(cmd.StockID)
	case ActionCancel:
		err = s.Cancel()
	case ActionTimerTick:
		s.RecordTimer(cmd.StockID, cmd.Elapsed)
		a.emit(Event{Kind: EventTimerUpdated, BookingID: s.BookingID, Phase: s.Phase, Step: s.CurrentStep, StockID: cmd.StockID, TimerKind: cmd.Kind, Elapsed: cmd.Elapsed})
		return nil
	default:
		return ErrInvalidTransition
	}
	if err != nil {
		return err
	}

	switch s.Phase {
	case PhaseCompleted:
		a.emit(Event{Kind: EventStepCompleted, BookingID: s.BookingID, Phase: s.Phase, Step: prevStep})
		a.emit(Event{Kind: EventRideCompleted, BookingID: s.BookingID, Phase: s.Phase, Step: prevStep})
	case PhaseCancelled:
		a.emit(Event{Kind: EventRideCancelled, BookingID: s.BookingID, Phase: s.Phase, Step: s.CurrentStep})
	default:
		if s.CurrentStep != prevStep {
			a.emit(Event{Kind: EventStepCompleted, BookingID: s.BookingID, Phase: s.Phase, Step: prevStep})
		}
		a.emit(Event{Kind: EventStateChanged, BookingID: s.BookingID, Phase: s.Phase, Step: s.CurrentStep, StockID: cmd.StockID})
	}
	return nil
}

// emit drops events when the buffer is full rather than blocking the
// command loop; subscribers treat events as latest-known state.
func (a *Actor) emit(ev Event) {
	select {
	case a.events <- ev:
	default:
	}
}
