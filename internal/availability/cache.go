package availability

import (
	"sync"
	"time"

	"github.com/example/bike-rental/internal/models"
)

// Cache is a tiny in-memory cache for per-size availability snapshots
// keyed by date and session. It only serves dashboard reads; the checkout
// path always recomputes.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  []models.SizeAvailability
	ts time.Time
}

// NewCache creates a cache with the provided TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(date time.Time, session models.Session) string {
	return date.Format("2006-01-02") + "/" + string(session)
}

// Get returns the cached snapshot and true if present and not expired.
func (c *Cache) Get(date time.Time, session models.Session) ([]models.SizeAvailability, bool) {
	k := keyFor(date, session)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return nil, false
	}
	return e.v, true
}

// Set stores a snapshot in the cache.
func (c *Cache) Set(date time.Time, session models.Session, v []models.SizeAvailability) {
	k := keyFor(date, session)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}

// Invalidate drops the cached snapshots for a date, called after a commit
// changes that date's bookings.
func (c *Cache) Invalidate(date time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range []models.Session{models.SessionMorning, models.SessionDaily} {
		delete(c.store, keyFor(date, s))
	}
}
