package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/example/bike-rental/internal/models"
)

// MemoryLimiter keeps attempt logs in process memory, pruned lazily on
// access. Suited to a single server process and to tests.
type MemoryLimiter struct {
	mu       sync.Mutex
	policies map[models.AttemptCategory]Policy
	attempts map[string][]attempt
}

func NewMemoryLimiter(policies map[models.AttemptCategory]Policy) *MemoryLimiter {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &MemoryLimiter{
		policies: policies,
		attempts: make(map[string][]attempt),
	}
}

func memKey(clientID string, category models.AttemptCategory) string {
	return string(category) + "/" + clientID
}

func (m *MemoryLimiter) Record(ctx context.Context, clientID string, category models.AttemptCategory, outcome models.AttemptOutcome) error {
	p, ok := m.policies[category]
	if !ok {
		return nil
	}
	now := time.Now()
	k := memKey(clientID, category)
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := prune(m.attempts[k], now.Add(-p.Window))
	m.attempts[k] = append(kept, attempt{at: now, failure: outcome == models.OutcomeFailure})
	return nil
}

func (m *MemoryLimiter) Check(ctx context.Context, clientID string, category models.AttemptCategory) (Decision, error) {
	p, ok := m.policies[category]
	if !ok {
		return Decision{Allowed: true}, nil
	}
	now := time.Now()
	k := memKey(clientID, category)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[k] = prune(m.attempts[k], now.Add(-p.Window))
	return decide(p, m.attempts[k], now), nil
}

func prune(attempts []attempt, cutoff time.Time) []attempt {
	i := 0
	for i < len(attempts) && attempts[i].at.Before(cutoff) {
		i++
	}
	return attempts[i:]
}
