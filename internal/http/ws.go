package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/ride-navigation/internal/models"
	"github.com/example/ride-navigation/internal/ride"
	"github.com/example/ride-navigation/internal/tracking"
)

// Inbound ride-room event names.
const (
	wsEventCoordinates = "coordinates"
	wsEventTimerUpdate = "timerUpdate"
	wsEventLeaveRoom   = "leaveRideRoom"

	wsEventMarkAsRead  = "markAsRead"
	wsEventMarkAllRead = "markAllAsRead"
)

type wsInbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// handleRideRoom joins a client to a booking's live tracking room. The
// driver publishes coordinates and timer updates over the same connection;
// customers and owners only receive. Rejoining after a disconnect is the
// client's responsibility.
func (s *Server) handleRideRoom(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["booking_id"]
	role := models.Role(r.URL.Query().Get("role"))
	userID := r.URL.Query().Get("user_id")
	if bookingID == "" || userID == "" {
		http.Error(w, "booking_id and user_id required", http.StatusBadRequest)
		return
	}
	switch role {
	case models.RoleDriver, models.RoleCustomer, models.RoleOwner:
	default:
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	client := tracking.NewClient(conn, role, userID)
	s.hub.Join(r.Context(), bookingID, client)
	s.logger.Info("ride room joined", "booking_id", bookingID, "role", string(role), "user_id", userID)

	defer func() {
		s.hub.Leave(bookingID, client)
		_ = client.Close()
	}()

	for {
		var msg wsInbound
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Event == wsEventLeaveRoom {
			return
		}
		// subscribers may only listen; publisher commands are driver-only
		if role != models.RoleDriver {
			continue
		}
		switch msg.Event {
		case wsEventCoordinates:
			var body struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			}
			if err := json.Unmarshal(msg.Data, &body); err != nil {
				continue
			}
			s.publishPing(r.Context(), models.LocationPing{
				BookingID: bookingID,
				Lat:       body.Latitude,
				Lng:       body.Longitude,
				Timestamp: time.Now(),
			})
		case wsEventTimerUpdate:
			var body struct {
				Type    string `json:"type"`
				Time    int64  `json:"time"`
				StockID string `json:"stockId"`
			}
			if err := json.Unmarshal(msg.Data, &body); err != nil {
				continue
			}
			err := s.rides.Do(r.Context(), bookingID, ride.Command{
				Action:  ride.ActionTimerTick,
				StockID: body.StockID,
				Kind:    body.Type,
				Elapsed: body.Time,
			})
			if err != nil && !errors.Is(err, ride.ErrNoSession) && !errors.Is(err, ride.ErrSessionClosed) {
				s.logger.Warn("timer update rejected", "booking_id", bookingID, "error", err)
			}
		}
	}
}

// handleNotificationRoom subscribes a user to their per-role notification
// room. Read-state commands mutate only this subscriber's local state.
func (s *Server) handleNotificationRoom(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	role := models.Role(vars["role"])
	userID := vars["user_id"]
	switch role {
	case models.RoleDriver, models.RoleCustomer, models.RoleOwner:
	default:
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	client := tracking.NewClient(conn, role, userID)
	sub := s.notifier.Join(role, userID, client)
	s.logger.Info("notification room joined", "role", string(role), "user_id", userID)

	defer func() {
		s.notifier.Leave(sub)
		_ = client.Close()
	}()

	for {
		var msg wsInbound
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Event {
		case wsEventMarkAsRead:
			var body struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(msg.Data, &body); err != nil {
				continue
			}
			sub.MarkAsRead(body.ID)
			s.logger.Debug("notification marked read", "user_id", userID, "id", body.ID)
		case wsEventMarkAllRead:
			sub.MarkAllAsRead()
			s.logger.Debug("notifications all marked read", "user_id", userID)
		}
	}
}
