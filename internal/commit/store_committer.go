package commit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/example/bike-rental/internal/lock"
	"github.com/example/bike-rental/internal/models"
	"github.com/example/bike-rental/internal/storage"
)

// StoreCommitter is the development-mode commit path writing straight
// into the in-memory store. Like the real commit service it re-checks
// lock ownership immediately before writing and refuses the booking if
// any lease has been lost.
type StoreCommitter struct {
	Store *storage.MemoryStore
	Locks lock.Manager
}

func (c *StoreCommitter) Commit(ctx context.Context, payload models.BookingCommit) (string, error) {
	for _, a := range payload.Assignments {
		held, err := c.Locks.Held(ctx, a.BikeID, payload.SessionToken)
		if err != nil {
			return "", err
		}
		if !held {
			return "", fmt.Errorf("lock on bike %d not held at commit time", a.BikeID)
		}
	}

	id := newBookingID()
	c.Store.UpsertBooking(models.Booking{
		ID:      id,
		Date:    payload.Date,
		Session: payload.Session,
		Riders:  payload.Riders,
		Status:  models.BookingConfirmed,
	})

	// bikes go to rented only when the rental starts today; a future
	// booking leaves today's status alone
	if sameDay(payload.Date, time.Now()) {
		bikes, err := c.Store.Bikes(ctx)
		if err != nil {
			return "", err
		}
		assigned := make(map[int]bool, len(payload.Assignments))
		for _, a := range payload.Assignments {
			assigned[a.BikeID] = true
		}
		for _, b := range bikes {
			if assigned[b.ID] {
				b.Status = models.BikeRented
				c.Store.UpsertBike(b)
			}
		}
	}
	return id, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func newBookingID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
