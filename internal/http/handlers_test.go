package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-navigation/internal/directions"
	"github.com/example/ride-navigation/internal/models"
	"github.com/example/ride-navigation/internal/notify"
	"github.com/example/ride-navigation/internal/ride"
	"github.com/example/ride-navigation/internal/route"
	"github.com/example/ride-navigation/internal/storage"
	"github.com/example/ride-navigation/internal/tracking"
)

// lineClient returns a straight polyline from origin to destination,
// sampled every hundredth of a degree.
type lineClient struct{}

func (lineClient) Route(_ context.Context, origin, dest models.LatLng) (directions.Route, error) {
	const step = 0.01
	pts := []models.LatLng{origin}
	cur := origin
	for cur.Lng+step < dest.Lng {
		cur.Lng += step
		pts = append(pts, cur)
	}
	pts = append(pts, dest)
	return directions.Route{Geometry: models.RouteGeometry{Points: pts, Start: origin, End: dest}}, nil
}

type testEnv struct {
	srv   *Server
	store *storage.MemoryStore
	hub   *tracking.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := storage.NewMemoryStore()
	hub := tracking.NewHub(tracking.NewMemoryStore(), nil)
	srv := NewServer(Options{
		Store:      store,
		Rides:      ride.NewManager(nil),
		Hub:        hub,
		Notifier:   notify.NewRouter(nil),
		Directions: lineClient{},
		Matcher:    route.NewMatcher(1000),
	})
	return &testEnv{srv: srv, store: store, hub: hub}
}

func (e *testEnv) seedBooking(t *testing.T, id string) *models.Booking {
	t.Helper()
	b := &models.Booking{
		ID:          id,
		Type:        models.BookingOriginal,
		DriverID:    "d1",
		CustomerID:  "c1",
		OwnerID:     "o1",
		Status:      models.BookingPending,
		Origin:      models.LatLng{Lat: 0, Lng: 0},
		Destination: models.LatLng{Lat: 0, Lng: 0.5},
	}
	require.NoError(t, e.store.SaveBooking(context.Background(), b))
	return b
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	return w
}

func TestProposeSharedAccepted(t *testing.T) {
	env := newTestEnv(t)
	env.seedBooking(t, "b1")

	w := env.do(t, "POST", "/api/v1/bookings/b1/shared", map[string]any{
		"shared_booking_id": "b2",
		"pickup":            models.LatLng{Lat: 0, Lng: 0.1},
		"drop":              models.LatLng{Lat: 0, Lng: 0.3},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Stops []models.Stop `json:"stops"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Stops, 4)

	// original trip ends farther out, so it wraps the shared trip
	assert.Equal(t, "b1", resp.Stops[0].StockID)
	assert.Equal(t, models.StopPickup, resp.Stops[0].Kind)
	assert.Equal(t, "b2", resp.Stops[1].StockID)
	assert.Equal(t, "b2", resp.Stops[2].StockID)
	assert.Equal(t, "b1", resp.Stops[3].StockID)
	assert.Equal(t, models.StopDrop, resp.Stops[3].Kind)

	saved, err := env.store.GetStops(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, resp.Stops, saved)
}

func TestProposeSharedOffRouteRejected(t *testing.T) {
	env := newTestEnv(t)
	env.seedBooking(t, "b1")

	w := env.do(t, "POST", "/api/v1/bookings/b1/shared", map[string]any{
		"shared_booking_id": "b2",
		"pickup":            models.LatLng{Lat: 0.1, Lng: 0.2}, // ~11km off
		"drop":              models.LatLng{Lat: 0, Lng: 0.3},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	_, err := env.store.GetStops(context.Background(), "b1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProposeSharedOrderViolationRejected(t *testing.T) {
	env := newTestEnv(t)
	env.seedBooking(t, "b1")

	w := env.do(t, "POST", "/api/v1/bookings/b1/shared", map[string]any{
		"shared_booking_id": "b2",
		"pickup":            models.LatLng{Lat: 0, Lng: 0.3},
		"drop":              models.LatLng{Lat: 0, Lng: 0.1}, // behind the pickup
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
}

func TestProposeSharedMissingSharedID(t *testing.T) {
	env := newTestEnv(t)
	env.seedBooking(t, "b1")

	w := env.do(t, "POST", "/api/v1/bookings/b1/shared", map[string]any{
		"pickup": models.LatLng{Lat: 0, Lng: 0.1},
		"drop":   models.LatLng{Lat: 0, Lng: 0.3},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProposeSharedUnknownBooking(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "POST", "/api/v1/bookings/nope/shared", map[string]any{
		"shared_booking_id": "b2",
		"pickup":            models.LatLng{Lat: 0, Lng: 0.1},
		"drop":              models.LatLng{Lat: 0, Lng: 0.3},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartRideUnsharedBooking(t *testing.T) {
	env := newTestEnv(t)
	env.seedBooking(t, "b1")

	w := env.do(t, "POST", "/api/v1/bookings/b1/ride/start", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Stops []models.Stop `json:"stops"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Stops, 2)
	assert.Equal(t, models.StopPickup, resp.Stops[0].Kind)
	assert.Equal(t, models.StopDrop, resp.Stops[1].Kind)

	b, err := env.store.GetBooking(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingOngoing, b.Status)

	// second start conflicts while the session is live
	w = env.do(t, "POST", "/api/v1/bookings/b1/ride/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestFullRideOverREST(t *testing.T) {
	env := newTestEnv(t)
	env.seedBooking(t, "b1")

	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/bookings/b1/ride/start", nil).Code)

	stock := map[string]any{"stock_id": "b1"}
	require.Equal(t, http.StatusNoContent, env.do(t, "POST", "/api/v1/bookings/b1/loading/start", stock).Code)
	require.Equal(t, http.StatusNoContent, env.do(t, "POST", "/api/v1/bookings/b1/loading/stop", stock).Code)

	w := env.do(t, "GET", "/api/v1/bookings/b1/ride", nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, http.StatusNoContent, env.do(t, "POST", "/api/v1/bookings/b1/unloading/start", stock).Code)
	require.Equal(t, http.StatusNoContent, env.do(t, "POST", "/api/v1/bookings/b1/unloading/stop", stock).Code)

	// the session is discarded once the ride completes
	require.Eventually(t, func() bool {
		return env.do(t, "GET", "/api/v1/bookings/b1/ride", nil).Code == http.StatusNotFound
	}, time.Second, 10*time.Millisecond)
}

func TestStockActionValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedBooking(t, "b1")

	// no session yet
	w := env.do(t, "POST", "/api/v1/bookings/b1/loading/start", map[string]any{"stock_id": "b1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/bookings/b1/ride/start", nil).Code)

	// missing stock id
	w = env.do(t, "POST", "/api/v1/bookings/b1/loading/start", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// unloading before loading finished
	w = env.do(t, "POST", "/api/v1/bookings/b1/unloading/start", map[string]any{"stock_id": "b1"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCancelRide(t *testing.T) {
	env := newTestEnv(t)
	env.seedBooking(t, "b1")

	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/bookings/b1/ride/start", nil).Code)
	require.Equal(t, http.StatusNoContent, env.do(t, "DELETE", "/api/v1/bookings/b1/ride", nil).Code)

	b, err := env.store.GetBooking(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, b.Status)
}

func TestRideStatusUnknownBooking(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/api/v1/bookings/nope/ride", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCoordinatesRequiresType(t *testing.T) {
	env := newTestEnv(t)
	env.seedBooking(t, "b1")

	w := env.do(t, "GET", "/api/v1/bookings/b1/coordinates", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "GET", "/api/v1/bookings/b1/coordinates?type=original", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// recordConn implements tracking.Conn and records envelopes.
type recordConn struct {
	mu   sync.Mutex
	msgs []tracking.Envelope
}

func (c *recordConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, v.(tracking.Envelope))
	return nil
}

func (c *recordConn) Close() error { return nil }

func (c *recordConn) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.msgs))
	for i, m := range c.msgs {
		out[i] = m.Event
	}
	return out
}

func TestSendCoordinatesFansOutToRoom(t *testing.T) {
	env := newTestEnv(t)
	env.seedBooking(t, "b1")

	conn := &recordConn{}
	env.hub.Join(context.Background(), "b1", tracking.NewClient(conn, models.RoleOwner, "o1"))

	w := env.do(t, "POST", "/api/v1/bookings/b1/coordinates", map[string]any{
		"latitude":  0.0,
		"longitude": 0.12,
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, conn.events(), tracking.EventCoordinates)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
