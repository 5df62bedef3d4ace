package lock

import (
	"context"
	"time"
)

// Manager grants short-lived exclusive leases on bike IDs during checkout.
// At most one unexpired lease exists per bike; an expired lease is absent
// to every read, with no active reaper required.
type Manager interface {
	// Acquire succeeds only when no unexpired lock exists for the bike or
	// the existing lock belongs to the same token (refresh). The check and
	// write are a single atomic operation against concurrent callers.
	Acquire(ctx context.Context, bikeID int, token string, ttl time.Duration) (bool, error)

	// AcquireAll acquires every bike in order. On the first failure it
	// releases everything it acquired in this call and returns false.
	// Best-effort saga: a partial set of locks exists briefly before the
	// rollback completes.
	AcquireAll(ctx context.Context, bikeIDs []int, token string, ttl time.Duration) (bool, error)

	// Release removes the lock only when held by token.
	Release(ctx context.Context, bikeID int, token string) (bool, error)

	// ReleaseAll releases every lock held by token. Idempotent: safe to
	// call when no locks are held.
	ReleaseAll(ctx context.Context, token string) error

	// Held reports whether token currently holds an unexpired lock on the
	// bike. The booking commit path calls this immediately before writing.
	Held(ctx context.Context, bikeID int, token string) (bool, error)
}

// acquireAll is the shared saga loop behind every Manager.AcquireAll.
func acquireAll(ctx context.Context, m Manager, bikeIDs []int, token string, ttl time.Duration) (bool, error) {
	acquired := make([]int, 0, len(bikeIDs))
	for _, id := range bikeIDs {
		ok, err := m.Acquire(ctx, id, token, ttl)
		if err == nil && ok {
			acquired = append(acquired, id)
			continue
		}
		for _, held := range acquired {
			_, _ = m.Release(ctx, held, token)
		}
		return false, err
	}
	return true, nil
}
