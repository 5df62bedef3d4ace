package lock

import (
	"context"
	"sync"
	"time"

	"github.com/example/bike-rental/internal/observability"
)

type memLease struct {
	token     string
	expiresAt time.Time
}

// MemoryManager keeps leases in process memory. Correct for a single
// server process; multi-process deployments use the Redis manager.
type MemoryManager struct {
	mu     sync.Mutex
	leases map[int]memLease
}

func NewMemoryManager() *MemoryManager {
	return &MemoryManager{leases: make(map[int]memLease)}
}

func (m *MemoryManager) Acquire(ctx context.Context, bikeID int, token string, ttl time.Duration) (bool, error) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.leases[bikeID]; ok && now.Before(l.expiresAt) && l.token != token {
		observability.LockContention.Inc()
		return false, nil
	}
	m.leases[bikeID] = memLease{token: token, expiresAt: now.Add(ttl)}
	observability.LocksAcquired.Inc()
	return true, nil
}

func (m *MemoryManager) AcquireAll(ctx context.Context, bikeIDs []int, token string, ttl time.Duration) (bool, error) {
	return acquireAll(ctx, m, bikeIDs, token, ttl)
}

func (m *MemoryManager) Release(ctx context.Context, bikeID int, token string) (bool, error) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leases[bikeID]
	if !ok || l.token != token || !now.Before(l.expiresAt) {
		return false, nil
	}
	delete(m.leases, bikeID)
	return true, nil
}

func (m *MemoryManager) ReleaseAll(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, l := range m.leases {
		if l.token == token {
			delete(m.leases, id)
		}
	}
	return nil
}

func (m *MemoryManager) Held(ctx context.Context, bikeID int, token string) (bool, error) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leases[bikeID]
	if ok && !now.Before(l.expiresAt) {
		// lazy expiry
		delete(m.leases, bikeID)
		return false, nil
	}
	return ok && l.token == token, nil
}
