package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/example/ride-navigation/internal/models"
)

var ErrNotFound = errors.New("not found")

// BookingStore defines persistence for bookings and their ordered stop
// lists. The stop list is written once at (shared) booking creation and read
// back when the driver starts the ride.
type BookingStore interface {
	SaveBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	UpdateStatus(ctx context.Context, id string, status models.BookingStatus) error
	SaveStops(ctx context.Context, bookingID string, stops []models.Stop) error
	GetStops(ctx context.Context, bookingID string) ([]models.Stop, error)
}

type MemoryStore struct {
	mu       sync.RWMutex
	bookings map[string]*models.Booking
	stops    map[string][]models.Stop
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: make(map[string]*models.Booking),
		stops:    make(map[string][]models.Stop),
	}
}

func (m *MemoryStore) SaveBooking(ctx context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *MemoryStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id string, status models.BookingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return ErrNotFound
	}
	b.Status = status
	return nil
}

func (m *MemoryStore) SaveStops(ctx context.Context, bookingID string, stops []models.Stop) error {
	if err := models.ValidateStops(stops); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops[bookingID] = append([]models.Stop(nil), stops...)
	return nil
}

func (m *MemoryStore) GetStops(ctx context.Context, bookingID string) ([]models.Stop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stops, ok := m.stops[bookingID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]models.Stop(nil), stops...), nil
}
