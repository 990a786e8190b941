package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-navigation/internal/models"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []Envelope
	fail   bool
	closed bool
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("write failed")
	}
	f.frames = append(f.frames, v.(Envelope))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.frames))
	for i, fr := range f.frames {
		out[i] = fr.Event
	}
	return out
}

func TestHubPublishFanOut(t *testing.T) {
	ctx := context.Background()
	h := NewHub(NewMemoryStore(), nil)

	c1conn, c2conn := &fakeConn{}, &fakeConn{}
	c1 := NewClient(c1conn, models.RoleCustomer, "u1")
	c2 := NewClient(c2conn, models.RoleOwner, "u2")
	h.Join(ctx, "b1", c1)
	h.Join(ctx, "b1", c2)

	if err := h.PublishLocation(ctx, models.LocationPing{BookingID: "b1", Lat: 6.9, Lng: 79.8, Timestamp: time.Now()}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := h.PublishTimer(ctx, models.TimerUpdate{BookingID: "b1", StockID: "s1", Kind: models.TimerLoading, ElapsedSeconds: 15}); err != nil {
		t.Fatalf("publish timer: %v", err)
	}

	for _, conn := range []*fakeConn{c1conn, c2conn} {
		got := conn.events()
		if len(got) != 2 || got[0] != EventCoordinates || got[1] != EventTimerUpdate {
			t.Fatalf("unexpected frames: %v", got)
		}
	}
}

func TestHubLateJoinerGetsSnapshot(t *testing.T) {
	ctx := context.Background()
	h := NewHub(NewMemoryStore(), nil)

	early := NewClient(&fakeConn{}, models.RoleCustomer, "u1")
	h.Join(ctx, "b1", early)
	_ = h.PublishLocation(ctx, models.LocationPing{BookingID: "b1", Lat: 1, Lng: 2, Timestamp: time.Now()})
	_ = h.PublishTimer(ctx, models.TimerUpdate{BookingID: "b1", StockID: "s1", Kind: models.TimerLoading, ElapsedSeconds: 40})

	lateConn := &fakeConn{}
	h.Join(ctx, "b1", NewClient(lateConn, models.RoleOwner, "u2"))

	got := lateConn.events()
	if len(got) != 2 {
		t.Fatalf("late joiner expected replayed snapshot, got %v", got)
	}
	if got[0] != EventCoordinates || got[1] != EventTimerUpdate {
		t.Fatalf("unexpected replay order: %v", got)
	}
}

func TestHubPublishToClosedRoom(t *testing.T) {
	h := NewHub(nil, nil)
	err := h.PublishLocation(context.Background(), models.LocationPing{BookingID: "missing"})
	if !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("expected ErrRoomClosed, got %v", err)
	}
}

func TestHubDropsFailedSubscriber(t *testing.T) {
	ctx := context.Background()
	h := NewHub(nil, nil)
	bad := &fakeConn{fail: true}
	good := &fakeConn{}
	h.Join(ctx, "b1", NewClient(bad, models.RoleCustomer, "u1"))
	h.Join(ctx, "b1", NewClient(good, models.RoleOwner, "u2"))

	_ = h.PublishLocation(ctx, models.LocationPing{BookingID: "b1", Lat: 1, Lng: 2})
	if n := h.Subscribers("b1"); n != 1 {
		t.Fatalf("expected failed conn dropped, have %d subscribers", n)
	}
}

func TestHubCloseRoomNotifiesAndClears(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	h := NewHub(store, nil)
	conn := &fakeConn{}
	h.Join(ctx, "b1", NewClient(conn, models.RoleCustomer, "u1"))
	_ = h.PublishLocation(ctx, models.LocationPing{BookingID: "b1", Lat: 1, Lng: 2})

	h.CloseRoom(ctx, "b1")

	got := conn.events()
	if got[len(got)-1] != EventRideClosed {
		t.Fatalf("expected rideClosed frame, got %v", got)
	}
	if n := h.Subscribers("b1"); n != 0 {
		t.Fatalf("room should be empty, have %d", n)
	}
	snap, err := store.Get(ctx, "b1")
	if err != nil || snap.Ping != nil {
		t.Fatalf("snapshot should be cleared, got %+v err=%v", snap, err)
	}
}

func TestHubLeave(t *testing.T) {
	ctx := context.Background()
	h := NewHub(nil, nil)
	c := NewClient(&fakeConn{}, models.RoleCustomer, "u1")
	h.Join(ctx, "b1", c)
	h.Leave("b1", c)
	if n := h.Subscribers("b1"); n != 0 {
		t.Fatalf("expected empty room, got %d", n)
	}
	// double leave is harmless
	h.Leave("b1", c)
}
