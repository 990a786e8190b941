package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-navigation/internal/models"
	"github.com/example/ride-navigation/internal/observability"
)

// Sender delivers one enveloped event to a subscriber connection.
type Sender interface {
	Send(event string, data any) error
}

const eventNotification = "notification"

// Notification is what a subscriber receives and keeps locally until read.
type Notification struct {
	ID        string           `json:"id"`
	Type      models.EventType `json:"type"`
	BookingID string           `json:"booking_id"`
	Payload   any              `json:"payload,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Read      bool             `json:"read"`
}

type roomKey struct {
	role   models.Role
	userID string
}

// Subscriber is one user's presence in a notification room plus its local
// read-state. Read-state is local only: MarkAsRead/MarkAllAsRead are
// fire-and-forget and the server keeps no durable copy.
type Subscriber struct {
	key    roomKey
	conn   Sender
	mu     sync.Mutex
	unread map[string]Notification
}

// MarkAsRead flips one notification to read in local state.
func (s *Subscriber) MarkAsRead(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.unread, id)
}

// MarkAllAsRead clears all local unread state.
func (s *Subscriber) MarkAllAsRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread = make(map[string]Notification)
}

// Unread returns how many notifications this subscriber has not read.
func (s *Subscriber) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unread)
}

// Router fans lifecycle events out to per-role rooms keyed by user id.
// Membership is join/leave only and never persisted; a client that
// disconnects rejoins on its own.
type Router struct {
	mu     sync.RWMutex
	rooms  map[roomKey][]*Subscriber
	logger *slog.Logger
}

func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{rooms: make(map[roomKey][]*Subscriber), logger: logger}
}

// Join subscribes a connection to the (role, userID) room.
func (r *Router) Join(role models.Role, userID string, conn Sender) *Subscriber {
	sub := &Subscriber{
		key:    roomKey{role: role, userID: userID},
		conn:   conn,
		unread: make(map[string]Notification),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[sub.key] = append(r.rooms[sub.key], sub)
	return sub
}

// Leave drops a subscriber from its room.
func (r *Router) Leave(sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := r.rooms[sub.key]
	for i, s := range subs {
		if s == sub {
			r.rooms[sub.key] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(r.rooms[sub.key]) == 0 {
		delete(r.rooms, sub.key)
	}
}

// Publish fans an event out to every room the event targets. Delivery is
// best-effort; a failed send is logged and the subscriber keeps the
// notification unread for its next connection.
func (r *Router) Publish(ev models.Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	n := Notification{
		ID:        ev.ID,
		Type:      ev.Type,
		BookingID: ev.BookingID,
		Payload:   ev.Payload,
		CreatedAt: ev.CreatedAt,
	}

	for role, userID := range ev.Targets {
		key := roomKey{role: role, userID: userID}
		r.mu.RLock()
		subs := append([]*Subscriber(nil), r.rooms[key]...)
		r.mu.RUnlock()
		for _, sub := range subs {
			sub.mu.Lock()
			sub.unread[n.ID] = n
			sub.mu.Unlock()
			if err := sub.conn.Send(eventNotification, n); err != nil {
				r.logger.Warn("notification send failed", "role", string(role), "user_id", userID, "error", err)
				continue
			}
			observability.NotificationsFanned.Inc()
		}
	}
}

// Rooms reports the number of occupied rooms.
func (r *Router) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
