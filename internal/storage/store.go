package storage

import (
	"context"
	"sync"
	"time"

	"github.com/example/bike-rental/internal/models"
)

// FleetStore supplies the current bike roster and height-range table.
// Both are owned by the external configuration store; this core only reads.
type FleetStore interface {
	Bikes(ctx context.Context) ([]models.Bike, error)
	HeightRanges(ctx context.Context) ([]models.HeightRange, error)
}

// BookingStore reads existing bookings. Every read is a point-in-time
// snapshot; bookings are written only by the external commit path.
type BookingStore interface {
	// BookingsInWindow returns bookings dated in [from, to] inclusive,
	// regardless of status. Callers filter terminal statuses themselves.
	BookingsInWindow(ctx context.Context, from, to time.Time) ([]models.Booking, error)
}

type MemoryStore struct {
	mu       sync.RWMutex
	bikes    map[int]models.Bike
	ranges   []models.HeightRange
	bookings map[string]models.Booking
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bikes:    make(map[int]models.Bike),
		bookings: make(map[string]models.Booking),
	}
}

func (m *MemoryStore) UpsertBike(b models.Bike) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bikes[b.ID] = b
}

func (m *MemoryStore) SetHeightRanges(ranges []models.HeightRange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ranges = append([]models.HeightRange(nil), ranges...)
}

func (m *MemoryStore) UpsertBooking(b models.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = b
}

func (m *MemoryStore) Bikes(ctx context.Context) ([]models.Bike, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Bike, 0, len(m.bikes))
	for _, b := range m.bikes {
		out = append(out, b)
	}
	return out, nil
}

func (m *MemoryStore) HeightRanges(ctx context.Context) ([]models.HeightRange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.HeightRange(nil), m.ranges...), nil
}

func (m *MemoryStore) BookingsInWindow(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Booking, 0)
	for _, b := range m.bookings {
		if b.Date.Before(from) || b.Date.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}
