package ride

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/example/ride-navigation/internal/logging"
	"github.com/example/ride-navigation/internal/models"
	"github.com/example/ride-navigation/internal/observability"
)

var (
	ErrSessionExists = errors.New("ride session already active for booking")
	ErrNoSession     = errors.New("no active ride session for booking")
)

// Sink receives every event emitted by the sessions this manager owns.
// The tracking hub and notification router are wired in as sinks.
type Sink interface {
	SessionEvent(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event)

func (f SinkFunc) SessionEvent(ev Event) { f(ev) }

// Manager owns the active ride sessions, one actor per booking. Sessions are
// created on start-ride and discarded when they reach a terminal state; they
// are never persisted.
type Manager struct {
	mu     sync.RWMutex
	actors map[string]*Actor
	sinks  []Sink
	logger *slog.Logger
}

func NewManager(logger *slog.Logger, sinks ...Sink) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{actors: make(map[string]*Actor), sinks: sinks, logger: logger}
}

// Start creates the session for a booking and begins its actor loop. The
// returned actor is already in progress (start-ride applied).
func (m *Manager) Start(ctx context.Context, bookingID, driverID string, stops []models.Stop) (*Actor, error) {
	s, err := NewSession(bookingID, driverID, stops)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if _, ok := m.actors[bookingID]; ok {
		m.mu.Unlock()
		return nil, ErrSessionExists
	}
	a := newActor(s)
	m.actors[bookingID] = a
	m.mu.Unlock()
	observability.RidesActive.Inc()

	// the session outlives the request that started it
	actorCtx, cancel := context.WithCancel(context.Background())
	a.stop = cancel
	go a.run(actorCtx)
	go m.forward(a)

	if err := a.Do(ctx, Command{Action: ActionStartRide}); err != nil {
		cancel()
		return nil, err
	}
	logging.WithBooking(m.logger, bookingID).Info("ride session started", "driver_id", driverID, "stops", len(stops))
	return a, nil
}

// Get returns the actor for an active booking session.
func (m *Manager) Get(bookingID string) (*Actor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.actors[bookingID]
	if !ok {
		return nil, ErrNoSession
	}
	return a, nil
}

// Do routes a command to the booking's session.
func (m *Manager) Do(ctx context.Context, bookingID string, cmd Command) error {
	a, err := m.Get(bookingID)
	if err != nil {
		return err
	}
	return a.Do(ctx, cmd)
}

// forward pumps one actor's events to the sinks and discards the session
// once the stream ends.
func (m *Manager) forward(a *Actor) {
	for ev := range a.Events() {
		for _, s := range m.sinks {
			s.SessionEvent(ev)
		}
		switch ev.Kind {
		case EventRideCompleted:
			observability.RidesCompleted.Inc()
		case EventRideCancelled:
			observability.RidesCancelled.Inc()
		}
	}
	a.stop()
	m.remove(a.BookingID())
	observability.RidesActive.Dec()
	logging.WithBooking(m.logger, a.BookingID()).Info("ride session discarded")
}

func (m *Manager) remove(bookingID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.actors, bookingID)
}
