package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-navigation/internal/directions"
	"github.com/example/ride-navigation/internal/ingest"
	"github.com/example/ride-navigation/internal/models"
	"github.com/example/ride-navigation/internal/notify"
	"github.com/example/ride-navigation/internal/observability"
	"github.com/example/ride-navigation/internal/ride"
	"github.com/example/ride-navigation/internal/route"
	"github.com/example/ride-navigation/internal/storage"
	"github.com/example/ride-navigation/internal/tracking"
)

// Server is the HTTP/WS surface of the ride-navigation flow.
type Server struct {
	logger     *slog.Logger
	store      storage.BookingStore
	rides      *ride.Manager
	hub        *tracking.Hub
	notifier   *notify.Router
	directions directions.Client
	geocoder   directions.Geocoder // nil when the provider cannot geocode
	matcher    *route.Matcher
	producer   *ingest.Producer // nil when kafka is not configured

	mux      *mux.Router
	upgrader websocket.Upgrader
}

type Options struct {
	Logger     *slog.Logger
	Store      storage.BookingStore
	Rides      *ride.Manager
	Hub        *tracking.Hub
	Notifier   *notify.Router
	Directions directions.Client
	Geocoder   directions.Geocoder
	Matcher    *route.Matcher
	Producer   *ingest.Producer
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger:     logger,
		store:      opts.Store,
		rides:      opts.Rides,
		hub:        opts.Hub,
		notifier:   opts.Notifier,
		directions: opts.Directions,
		geocoder:   opts.Geocoder,
		matcher:    opts.Matcher,
		producer:   opts.Producer,
		mux:        mux.NewRouter(),
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/bookings/{booking_id}/coordinates", s.handleCoordinates).Methods("GET")
	api.HandleFunc("/bookings/{booking_id}/shared", s.handleProposeShared).Methods("POST")
	api.HandleFunc("/bookings/{booking_id}/ride/start", s.handleStartRide).Methods("POST")
	api.HandleFunc("/bookings/{booking_id}/ride/stop", s.handleStopRideForStop).Methods("PUT")
	api.HandleFunc("/bookings/{booking_id}/ride", s.handleRideStatus).Methods("GET")
	api.HandleFunc("/bookings/{booking_id}/ride", s.handleCancelRide).Methods("DELETE")
	api.HandleFunc("/bookings/{booking_id}/loading/start", s.stockAction(ride.ActionStartLoading)).Methods("POST")
	api.HandleFunc("/bookings/{booking_id}/loading/stop", s.stockAction(ride.ActionStopLoading)).Methods("POST")
	api.HandleFunc("/bookings/{booking_id}/unloading/start", s.stockAction(ride.ActionStartUnloading)).Methods("POST")
	api.HandleFunc("/bookings/{booking_id}/unloading/stop", s.stockAction(ride.ActionStopUnloading)).Methods("POST")
	api.HandleFunc("/bookings/{booking_id}/coordinates", s.handleSendCoordinates).Methods("POST")

	s.mux.HandleFunc("/ws/ride/{booking_id}", s.handleRideRoom)
	s.mux.HandleFunc("/ws/notifications/{role}/{user_id}", s.handleNotificationRoom)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// bookingContext pulls the booking id out of the route. Navigation without a
// booking id is fatal for the flow, so the missing case is rejected before
// any handler logic runs.
func bookingContext(r *http.Request) (string, bool) {
	id := mux.Vars(r)["booking_id"]
	return id, id != ""
}

func (s *Server) handleCoordinates(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := bookingContext(r)
	bookingType := r.URL.Query().Get("type")
	if !ok || bookingType == "" {
		s.writeError(w, r, errMissingContext)
		return
	}
	booking, err := s.store.GetBooking(r.Context(), bookingID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := map[string]any{
		"booking_id":  booking.ID,
		"type":        booking.Type,
		"origin":      booking.Origin,
		"destination": booking.Destination,
	}
	if stops, err := s.store.GetStops(r.Context(), bookingID); err == nil {
		resp["stops"] = stops
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type proposeSharedRequest struct {
	SharedBookingID string        `json:"shared_booking_id"`
	Pickup          models.LatLng `json:"pickup"`
	Drop            models.LatLng `json:"drop"`
}

// handleProposeShared validates a proposed shared trip against the original
// booking's route and, when accepted, persists the combined four-stop order.
func (s *Server) handleProposeShared(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := bookingContext(r)
	if !ok {
		s.writeError(w, r, errMissingContext)
		return
	}
	var req proposeSharedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.SharedBookingID == "" {
		s.writeError(w, r, errMissingContext)
		return
	}

	booking, err := s.store.GetBooking(r.Context(), bookingID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	matched, err := s.directions.Route(r.Context(), booking.Origin, booking.Destination)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.matcher.ValidateLeg(req.Pickup, req.Drop, matched.Geometry); err != nil {
		if errors.Is(err, route.ErrOffRoute) {
			observability.SharedStopsRejected.WithLabelValues("off_route").Inc()
		} else if errors.Is(err, route.ErrOrderViolation) {
			observability.SharedStopsRejected.WithLabelValues("order_violation").Inc()
		}
		s.writeError(w, r, err)
		return
	}
	observability.SharedStopsAccepted.Inc()

	original := models.TripEndpoints{Start: booking.Origin, End: booking.Destination}
	shared := models.TripEndpoints{Start: req.Pickup, End: req.Drop}
	stops := route.Sequence(original, shared, matched.Geometry.Start, booking.ID, req.SharedBookingID)
	s.fillAddresses(r, stops)

	if err := s.store.SaveStops(r.Context(), bookingID, stops); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publishLifecycle(booking, models.EventBookingCreated, map[string]any{
		"shared_booking_id": req.SharedBookingID,
	})
	s.writeJSON(w, http.StatusCreated, map[string]any{"stops": stops})
}

// fillAddresses reverse-geocodes stop coordinates when a geocoder is
// configured. Failures leave the address blank; display-only data.
func (s *Server) fillAddresses(r *http.Request, stops []models.Stop) {
	if s.geocoder == nil {
		return
	}
	for i := range stops {
		addr, err := s.geocoder.ReverseGeocode(r.Context(), stops[i].Point())
		if err != nil {
			s.logger.Warn("reverse geocode failed", "error", err)
			continue
		}
		stops[i].Address = addr
	}
}

func (s *Server) handleStartRide(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := bookingContext(r)
	if !ok {
		s.writeError(w, r, errMissingContext)
		return
	}
	booking, err := s.store.GetBooking(r.Context(), bookingID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	stops, err := s.store.GetStops(r.Context(), bookingID)
	if errors.Is(err, storage.ErrNotFound) {
		// unshared booking: trivial pickup->drop order
		stops = route.SingleTripStops(models.TripEndpoints{Start: booking.Origin, End: booking.Destination}, booking.ID)
		err = nil
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.rides.Start(r.Context(), bookingID, booking.DriverID, stops); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.UpdateStatus(r.Context(), bookingID, models.BookingOngoing); err != nil {
		s.logger.Warn("status update failed", "booking_id", bookingID, "error", err)
	}
	s.publishLifecycle(booking, models.EventRideStarted, nil)
	s.writeJSON(w, http.StatusOK, map[string]any{"booking_id": bookingID, "stops": stops})
}

type stopRideRequest struct {
	Step int `json:"step"`
}

func (s *Server) handleStopRideForStop(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := bookingContext(r)
	if !ok {
		s.writeError(w, r, errMissingContext)
		return
	}
	var req stopRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.rides.Do(r.Context(), bookingID, ride.Command{Action: ride.ActionStopForStop, Step: req.Step}); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type stockRequest struct {
	StockID string `json:"stock_id"`
}

// stockAction builds a handler for the four loading/unloading commands; they
// differ only in the action routed to the session.
func (s *Server) stockAction(action ride.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bookingID, ok := bookingContext(r)
		if !ok {
			s.writeError(w, r, errMissingContext)
			return
		}
		var req stockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.StockID == "" {
			s.writeError(w, r, errMissingContext)
			return
		}
		if err := s.rides.Do(r.Context(), bookingID, ride.Command{Action: action, StockID: req.StockID}); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleRideStatus(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := bookingContext(r)
	if !ok {
		s.writeError(w, r, errMissingContext)
		return
	}
	a, err := s.rides.Get(bookingID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := a.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := bookingContext(r)
	if !ok {
		s.writeError(w, r, errMissingContext)
		return
	}
	if err := s.rides.Do(r.Context(), bookingID, ride.Command{Action: ride.ActionCancel}); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.UpdateStatus(r.Context(), bookingID, models.BookingCancelled); err != nil {
		s.logger.Warn("status update failed", "booking_id", bookingID, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendCoordinatesRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// handleSendCoordinates is the REST fallback for drivers publishing their
// location without an open websocket.
func (s *Server) handleSendCoordinates(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := bookingContext(r)
	if !ok {
		s.writeError(w, r, errMissingContext)
		return
	}
	var req sendCoordinatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.publishPing(r.Context(), models.LocationPing{
		BookingID: bookingID,
		Lat:       req.Latitude,
		Lng:       req.Longitude,
	})
	w.WriteHeader(http.StatusAccepted)
}

// publishPing records and fans out one driver location: the room gets it
// live, kafka carries it to the snapshot projection.
func (s *Server) publishPing(ctx context.Context, ping models.LocationPing) {
	if ping.Timestamp.IsZero() {
		ping.Timestamp = time.Now()
	}
	if err := s.hub.PublishLocation(ctx, ping); err != nil && !errors.Is(err, tracking.ErrRoomClosed) {
		s.logger.Warn("location broadcast failed", "booking_id", ping.BookingID, "error", err)
	}
	if s.producer != nil {
		if err := s.producer.PublishPing(ping); err != nil {
			s.logger.Warn("kafka publish failed", "booking_id", ping.BookingID, "error", err)
		}
	}
}

func (s *Server) publishLifecycle(b *models.Booking, evType models.EventType, payload map[string]any) {
	ev := models.Event{
		Type:      evType,
		BookingID: b.ID,
		Targets: map[models.Role]string{
			models.RoleOwner:    b.OwnerID,
			models.RoleDriver:   b.DriverID,
			models.RoleCustomer: b.CustomerID,
		},
		Payload: payload,
	}
	s.notifier.Publish(ev)
	if s.producer != nil {
		if err := s.producer.PublishEvent(ev); err != nil {
			s.logger.Warn("kafka publish failed", "booking_id", b.ID, "error", err)
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", "error", err)
	}
}

var errMissingContext = errors.New("missing booking context")

// writeError maps domain errors onto HTTP statuses. Nothing is retried here;
// the operator corrects the input and re-triggers the action.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errMissingContext):
		status = http.StatusBadRequest
	case errors.Is(err, route.ErrOffRoute), errors.Is(err, route.ErrOrderViolation),
		errors.Is(err, models.ErrInvalidStops):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ride.ErrInvalidTransition), errors.Is(err, ride.ErrSessionExists):
		status = http.StatusConflict
	case errors.Is(err, ride.ErrNoSession), errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, directions.ErrNoRoute):
		status = http.StatusBadGateway
	case errors.Is(err, ride.ErrSessionClosed):
		status = http.StatusGone
	}
	if status >= 500 {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
