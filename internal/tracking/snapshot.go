package tracking

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-navigation/internal/models"
)

// Snapshot is the last known state of one booking's ride: latest location
// ping plus the latest timer value per stock and kind.
type Snapshot struct {
	Ping   *models.LocationPing
	Timers []models.TimerUpdate
}

// SnapshotStore persists last-value-wins ride state so late subscribers are
// served current data on join.
type SnapshotStore interface {
	PutPing(ctx context.Context, ping models.LocationPing) error
	PutTimer(ctx context.Context, tu models.TimerUpdate) error
	Get(ctx context.Context, bookingID string) (Snapshot, error)
	Clear(ctx context.Context, bookingID string) error
}

// RedisStore keeps one hash per booking: location fields plus one field per
// stock/kind timer.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(addr, password string, ttl time.Duration) *RedisStore {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: c, ttl: ttl}
}

func trackKey(bookingID string) string { return "ride:track:" + bookingID }

func (r *RedisStore) PutPing(ctx context.Context, ping models.LocationPing) error {
	key := trackKey(ping.BookingID)
	if err := r.client.HSet(ctx, key, map[string]interface{}{
		"lat": strconv.FormatFloat(ping.Lat, 'f', -1, 64),
		"lng": strconv.FormatFloat(ping.Lng, 'f', -1, 64),
		"ts":  ping.Timestamp.UTC().Format(time.RFC3339Nano),
	}).Err(); err != nil {
		return err
	}
	return r.client.Expire(ctx, key, r.ttl).Err()
}

func (r *RedisStore) PutTimer(ctx context.Context, tu models.TimerUpdate) error {
	key := trackKey(tu.BookingID)
	field := "timer:" + tu.StockID + ":" + string(tu.Kind)
	if err := r.client.HSet(ctx, key, field, strconv.FormatInt(tu.ElapsedSeconds, 10)).Err(); err != nil {
		return err
	}
	return r.client.Expire(ctx, key, r.ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, bookingID string) (Snapshot, error) {
	fields, err := r.client.HGetAll(ctx, trackKey(bookingID)).Result()
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if latS, ok := fields["lat"]; ok {
		lat, err1 := strconv.ParseFloat(latS, 64)
		lng, err2 := strconv.ParseFloat(fields["lng"], 64)
		if err1 == nil && err2 == nil {
			ping := models.LocationPing{BookingID: bookingID, Lat: lat, Lng: lng}
			if ts, err := time.Parse(time.RFC3339Nano, fields["ts"]); err == nil {
				ping.Timestamp = ts
			}
			snap.Ping = &ping
		}
	}
	for field, value := range fields {
		parts := strings.Split(field, ":")
		if len(parts) != 3 || parts[0] != "timer" {
			continue
		}
		secs, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		snap.Timers = append(snap.Timers, models.TimerUpdate{
			BookingID:      bookingID,
			StockID:        parts[1],
			Kind:           models.TimerKind(parts[2]),
			ElapsedSeconds: secs,
		})
	}
	return snap, nil
}

func (r *RedisStore) Clear(ctx context.Context, bookingID string) error {
	return r.client.Del(ctx, trackKey(bookingID)).Err()
}

func (r *RedisStore) Close() error { return r.client.Close() }

// MemoryStore is the in-process fallback when redis is not configured.
type MemoryStore struct {
	mu    sync.RWMutex
	pings map[string]models.LocationPing
	timer map[string]map[string]models.TimerUpdate // bookingID -> stock:kind
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pings: make(map[string]models.LocationPing),
		timer: make(map[string]map[string]models.TimerUpdate),
	}
}

func (m *MemoryStore) PutPing(ctx context.Context, ping models.LocationPing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pings[ping.BookingID] = ping
	return nil
}

func (m *MemoryStore) PutTimer(ctx context.Context, tu models.TimerUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byStock, ok := m.timer[tu.BookingID]
	if !ok {
		byStock = make(map[string]models.TimerUpdate)
		m.timer[tu.BookingID] = byStock
	}
	byStock[tu.StockID+":"+string(tu.Kind)] = tu
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, bookingID string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var snap Snapshot
	if ping, ok := m.pings[bookingID]; ok {
		p := ping
		snap.Ping = &p
	}
	for _, tu := range m.timer[bookingID] {
		snap.Timers = append(snap.Timers, tu)
	}
	return snap, nil
}

func (m *MemoryStore) Clear(ctx context.Context, bookingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pings, bookingID)
	delete(m.timer, bookingID)
	return nil
}
