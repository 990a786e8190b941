package tracking

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/example/ride-navigation/internal/models"
	"github.com/example/ride-navigation/internal/observability"
)

// Event names on the ride room wire protocol.
const (
	EventCoordinates = "coordinates"
	EventTimerUpdate = "timerUpdate"
	EventRideClosed  = "rideClosed"
)

// ErrRoomClosed is returned when publishing into a booking with no room.
var ErrRoomClosed = errors.New("ride room closed")

// Envelope is the wire frame for room events.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub manages per-booking ride rooms. Delivery is best-effort: subscribers
// see the latest known location and timer values, not a reliable delta
// stream. A connection that fails a write is dropped from its room.
type Hub struct {
	mu        sync.RWMutex
	rooms     map[string]map[*Client]struct{}
	snapshots SnapshotStore
	logger    *slog.Logger
}

func NewHub(snapshots SnapshotStore, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:     make(map[string]map[*Client]struct{}),
		snapshots: snapshots,
		logger:    logger,
	}
}

// Join subscribes a client to a booking's room and replays the last known
// location and timers so a late or rejoining subscriber is current
// immediately. Rejoining after a disconnect is the client's responsibility.
func (h *Hub) Join(ctx context.Context, bookingID string, c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[bookingID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[bookingID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()
	observability.TrackingSubscribers.Inc()

	if h.snapshots == nil {
		return
	}
	snap, err := h.snapshots.Get(ctx, bookingID)
	if err != nil {
		h.logger.Warn("snapshot replay failed", "booking_id", bookingID, "error", err)
		return
	}
	if snap.Ping != nil {
		_ = c.Send(EventCoordinates, coordinatesPayload(*snap.Ping))
	}
	for _, tu := range snap.Timers {
		_ = c.Send(EventTimerUpdate, timerPayload(tu))
	}
}

// Leave removes a client from a booking's room.
func (h *Hub) Leave(bookingID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(bookingID, c)
}

func (h *Hub) removeLocked(bookingID string, c *Client) {
	room, ok := h.rooms[bookingID]
	if !ok {
		return
	}
	if _, member := room[c]; !member {
		return
	}
	delete(room, c)
	observability.TrackingSubscribers.Dec()
	if len(room) == 0 {
		delete(h.rooms, bookingID)
	}
}

// PublishLocation stores the ping as the booking's last known location and
// fans it out to the room.
func (h *Hub) PublishLocation(ctx context.Context, ping models.LocationPing) error {
	if h.snapshots != nil {
		if err := h.snapshots.PutPing(ctx, ping); err != nil {
			h.logger.Warn("snapshot write failed", "booking_id", ping.BookingID, "error", err)
		}
	}
	observability.TrackingPublished.WithLabelValues("location").Inc()
	return h.broadcast(ping.BookingID, EventCoordinates, coordinatesPayload(ping))
}

// PublishTimer stores and fans out a loading/unloading timer value.
func (h *Hub) PublishTimer(ctx context.Context, tu models.TimerUpdate) error {
	if h.snapshots != nil {
		if err := h.snapshots.PutTimer(ctx, tu); err != nil {
			h.logger.Warn("snapshot write failed", "booking_id", tu.BookingID, "error", err)
		}
	}
	observability.TrackingPublished.WithLabelValues("timer").Inc()
	return h.broadcast(tu.BookingID, EventTimerUpdate, timerPayload(tu))
}

// CloseRoom tells every subscriber the session is stale and empties the
// room. Called when a ride session completes or is cancelled.
func (h *Hub) CloseRoom(ctx context.Context, bookingID string) {
	h.mu.Lock()
	room := h.rooms[bookingID]
	delete(h.rooms, bookingID)
	h.mu.Unlock()

	for c := range room {
		_ = c.Send(EventRideClosed, map[string]string{"booking_id": bookingID})
		observability.TrackingSubscribers.Dec()
	}
	if h.snapshots != nil {
		if err := h.snapshots.Clear(ctx, bookingID); err != nil {
			h.logger.Warn("snapshot clear failed", "booking_id", bookingID, "error", err)
		}
	}
	h.logger.Info("ride room closed", "booking_id", bookingID, "subscribers", len(room))
}

// Subscribers reports current room membership for a booking.
func (h *Hub) Subscribers(bookingID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[bookingID])
}

func (h *Hub) broadcast(bookingID, event string, data any) error {
	h.mu.RLock()
	room, ok := h.rooms[bookingID]
	if !ok {
		h.mu.RUnlock()
		return ErrRoomClosed
	}
	members := make([]*Client, 0, len(room))
	for c := range room {
		members = append(members, c)
	}
	h.mu.RUnlock()

	var failed []*Client
	for _, c := range members {
		if err := c.Send(event, data); err != nil {
			h.logger.Warn("room send failed, dropping subscriber", "booking_id", bookingID, "error", err)
			failed = append(failed, c)
		}
	}
	if len(failed) > 0 {
		h.mu.Lock()
		for _, c := range failed {
			h.removeLocked(bookingID, c)
		}
		h.mu.Unlock()
	}
	return nil
}

func coordinatesPayload(ping models.LocationPing) map[string]any {
	return map[string]any{
		"latitude":  ping.Lat,
		"longitude": ping.Lng,
		"timestamp": ping.Timestamp,
	}
}

func timerPayload(tu models.TimerUpdate) map[string]any {
	return map[string]any{
		"type":    tu.Kind,
		"time":    tu.ElapsedSeconds,
		"stockId": tu.StockID,
	}
}
