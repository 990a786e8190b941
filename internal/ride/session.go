package ride

import (
	"errors"
	"fmt"
	"sort"

	"github.com/example/ride-navigation/internal/models"
)

// ErrInvalidTransition is returned for any command whose precondition does
// not hold. The session state is left unchanged.
var ErrInvalidTransition = errors.New("invalid ride transition")

// Phase is the coarse state of a ride session.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseInProgress Phase = "in_progress"
	PhaseLoading    Phase = "loading"
	PhaseUnloading  Phase = "unloading"
	PhaseCompleted  Phase = "completed"
	PhaseCancelled  Phase = "cancelled"
)

// LegState tracks the loading/unloading progress for one stock item. The
// invariants (loading must finish before unloading may start) are enforced
// by the session mutators, not by callers.
type LegState struct {
	Loading         bool
	LoadingFinished bool
	Unloading       bool
}

// Session is the live state of one in-progress ride. It is owned exclusively
// by the driver's command stream; all mutation goes through the transition
// methods below, which either apply fully or return ErrInvalidTransition.
type Session struct {
	BookingID string
	DriverID  string
	Stops     []models.Stop

	Phase          Phase
	CurrentStep    int
	completedSteps map[int]bool
	legs           map[string]*LegState
	timers         map[string]int64 // stockID -> elapsed seconds, last value wins
	activeStock    string           // stock being loaded/unloaded, if any
}

// NewSession builds an idle session over an ordered stop list.
func NewSession(bookingID, driverID string, stops []models.Stop) (*Session, error) {
	if len(stops) == 0 {
		return nil, fmt.Errorf("%w: no stops", ErrInvalidTransition)
	}
	if err := models.ValidateStops(stops); err != nil {
		return nil, err
	}
	legs := make(map[string]*LegState)
	for _, s := range stops {
		if _, ok := legs[s.StockID]; !ok {
			legs[s.StockID] = &LegState{}
		}
	}
	return &Session{
		BookingID:      bookingID,
		DriverID:       driverID,
		Stops:          stops,
		Phase:          PhaseIdle,
		completedSteps: make(map[int]bool),
		legs:           legs,
		timers:         make(map[string]int64),
	}, nil
}

func (s *Session) terminal() bool {
	return s.Phase == PhaseCompleted || s.Phase == PhaseCancelled
}

func (s *Session) currentStop() (models.Stop, bool) {
	if s.CurrentStep < 0 || s.CurrentStep >= len(s.Stops) {
		return models.Stop{}, false
	}
	return s.Stops[s.CurrentStep], true
}

// Leg returns a copy of the leg state for a stock.
func (s *Session) Leg(stockID string) (LegState, bool) {
	l, ok := s.legs[stockID]
	if !ok {
		return LegState{}, false
	}
	return *l, true
}

// Completed reports whether a step index has been completed.
func (s *Session) Completed(step int) bool { return s.completedSteps[step] }

// Timer returns the last recorded elapsed seconds for a stock.
func (s *Session) Timer(stockID string) int64 { return s.timers[stockID] }

// StartRide moves the session from idle to the first step.
func (s *Session) StartRide() error {
	if s.Phase != PhaseIdle {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, s.Phase)
	}
	s.Phase = PhaseInProgress
	s.CurrentStep = 0
	return nil
}

// StopRideForStop marks a step completed and advances. Re-issuing it for an
// already-completed step is a no-op so re-delivered events can never advance
// the index twice.
func (s *Session) StopRideForStop(step int) error {
	if s.completedSteps[step] {
		return nil
	}
	if s.terminal() || s.Phase == PhaseIdle {
		return fmt.Errorf("%w: stop step in %s", ErrInvalidTransition, s.Phase)
	}
	if step != s.CurrentStep {
		return fmt.Errorf("%w: step %d is not current step %d", ErrInvalidTransition, step, s.CurrentStep)
	}
	s.completedSteps[step] = true
	s.activeStock = ""
	if step == len(s.Stops)-1 {
		s.Phase = PhaseCompleted
		return nil
	}
	s.CurrentStep++
	s.Phase = PhaseInProgress
	return nil
}

// StartLoading begins loading the given stock. Allowed only when the current
// step is that stock's pickup.
func (s *Session) StartLoading(stockID string) error {
	leg, ok := s.legs[stockID]
	if !ok {
		return fmt.Errorf("%w: unknown stock %s", ErrInvalidTransition, stockID)
	}
	if leg.Loading {
		return nil // duplicate start, already loading
	}
	stop, ok := s.currentStop()
	if !ok || s.Phase != PhaseInProgress {
		return fmt.Errorf("%w: start loading in %s", ErrInvalidTransition, s.Phase)
	}
	if stop.Kind != models.StopPickup || stop.StockID != stockID {
		return fmt.Errorf("%w: current stop is not pickup for %s", ErrInvalidTransition, stockID)
	}
	leg.Loading = true
	s.Phase = PhaseLoading
	s.activeStock = stockID
	return nil
}

// StopLoading finishes loading and completes the pickup step. A duplicate
// for a stock that already finished loading is a no-op.
func (s *Session) StopLoading(stockID string) error {
	leg, ok := s.legs[stockID]
	if !ok {
		return fmt.Errorf("%w: unknown stock %s", ErrInvalidTransition, stockID)
	}
	if leg.LoadingFinished {
		return nil
	}
	if !leg.Loading || s.Phase != PhaseLoading || s.activeStock != stockID {
		return fmt.Errorf("%w: stock %s is not loading", ErrInvalidTransition, stockID)
	}
	leg.Loading = false
	leg.LoadingFinished = true
	return s.StopRideForStop(s.CurrentStep)
}

// StartUnloading begins unloading. Requires the current step to be the
// stock's drop, the stock's loading to be finished, and the previous step to
// be completed.
func (s *Session) StartUnloading(stockID string) error {
	leg, ok := s.legs[stockID]
	if !ok {
		return fmt.Errorf("%w: unknown stock %s", ErrInvalidTransition, stockID)
	}
	if leg.Unloading {
		return nil
	}
	stop, ok := s.currentStop()
	if !ok || s.Phase != PhaseInProgress {
		return fmt.Errorf("%w: start unloading in %s", ErrInvalidTransition, s.Phase)
	}
	if stop.Kind != models.StopDrop || stop.StockID != stockID {
		return fmt.Errorf("%w: current stop is not drop for %s", ErrInvalidTransition, stockID)
	}
	if !leg.LoadingFinished {
		return fmt.Errorf("%w: stock %s not finished loading", ErrInvalidTransition, stockID)
	}
	if s.CurrentStep > 0 && !s.completedSteps[s.CurrentStep-1] {
		return fmt.Errorf("%w: previous step not completed", ErrInvalidTransition)
	}
	leg.Unloading = true
	s.Phase = PhaseUnloading
	s.activeStock = stockID
	return nil
}

// StopUnloading finishes unloading and completes the drop step. A duplicate
// for an already-completed drop is a no-op.
func (s *Session) StopUnloading(stockID string) error {
	leg, ok := s.legs[stockID]
	if !ok {
		return fmt.Errorf("%w: unknown stock %s", ErrInvalidTransition, stockID)
	}
	if dropStep, ok := s.stepFor(stockID, models.StopDrop); ok && s.completedSteps[dropStep] {
		return nil
	}
	if !leg.Unloading || s.Phase != PhaseUnloading || s.activeStock != stockID {
		return fmt.Errorf("%w: stock %s is not unloading", ErrInvalidTransition, stockID)
	}
	leg.Unloading = false
	return s.StopRideForStop(s.CurrentStep)
}

// Cancel moves any non-terminal session to cancelled.
func (s *Session) Cancel() error {
	if s.terminal() {
		return fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, s.Phase)
	}
	s.Phase = PhaseCancelled
	return nil
}

// RecordTimer stores the latest elapsed seconds for a stock. Timer callbacks
// may be re-delivered; last value wins and the step index is never touched.
func (s *Session) RecordTimer(stockID string, elapsed int64) {
	if _, ok := s.legs[stockID]; !ok {
		return
	}
	s.timers[stockID] = elapsed
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		BookingID:   s.BookingID,
		DriverID:    s.DriverID,
		Phase:       s.Phase,
		CurrentStep: s.CurrentStep,
		Stops:       append([]models.Stop(nil), s.Stops...),
		Legs:        make(map[string]LegState, len(s.legs)),
		Timers:      make(map[string]int64, len(s.timers)),
	}
	for step := range s.completedSteps {
		snap.Completed = append(snap.Completed, step)
	}
	sort.Ints(snap.Completed)
	for id, l := range s.legs {
		snap.Legs[id] = *l
	}
	for id, t := range s.timers {
		snap.Timers[id] = t
	}
	return snap
}

func (s *Session) stepFor(stockID string, kind models.StopKind) (int, bool) {
	for i, st := range s.Stops {
		if st.StockID == stockID && st.Kind == kind {
			return i, true
		}
	}
	return 0, false
}
