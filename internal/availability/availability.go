package availability

import (
	"context"
	"time"

	"github.com/example/bike-rental/internal/models"
	"github.com/example/bike-rental/internal/storage"
)

// Calculator computes which bikes are free for a date/session slot. Every
// read is a snapshot: the result can go stale under concurrency, and the
// lock step downstream is the actual correctness boundary.
type Calculator struct {
	Fleet    storage.FleetStore
	Bookings storage.BookingStore
	Snapshot *Cache // optional, dashboard reads only
}

// Overlaps reports whether an existing booking competes with the target
// slot for the same physical bikes:
//  1. same date and same session
//  2. a daily booking the day before blocks the next morning slot only
//     (the bikes come back in the morning, so the next daily is fine)
//  3. a daily booking the same day blocks the morning slot
//  4. a morning booking the same day blocks the daily slot
func Overlaps(date time.Time, session models.Session, b models.Booking) bool {
	switch {
	case sameDay(b.Date, date):
		if b.Session == session {
			return true
		}
		if session == models.SessionMorning && b.Session == models.SessionDaily {
			return true
		}
		if session == models.SessionDaily && b.Session == models.SessionMorning {
			return true
		}
	case sameDay(b.Date, date.AddDate(0, 0, -1)):
		return session == models.SessionMorning && b.Session == models.SessionDaily
	}
	return false
}

// Available returns the bikes free for the slot: rentable status, not
// referenced by any blocking booking under the overlap rules. rented
// status alone never excludes a bike from a different slot.
func (c *Calculator) Available(ctx context.Context, date time.Time, session models.Session) ([]models.Bike, error) {
	bookings, err := c.blockingBookings(ctx, date)
	if err != nil {
		return nil, err
	}
	blocked := make(map[int]bool)
	for _, b := range bookings {
		if !Overlaps(date, session, b) {
			continue
		}
		for _, r := range b.Riders {
			if r.AssignedBikeID != 0 {
				blocked[r.AssignedBikeID] = true
			}
		}
	}

	fleet, err := c.Fleet.Bikes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Bike, 0, len(fleet))
	for _, bike := range fleet {
		if !bike.Status.Rentable() || blocked[bike.ID] {
			continue
		}
		out = append(out, bike)
	}
	return out, nil
}

// BookedCount sums rider counts across bookings that overlap the slot.
// With session == nil it counts riders on every booking touching the date
// in either session, for coarse "N of M remaining" displays.
func (c *Calculator) BookedCount(ctx context.Context, date time.Time, session *models.Session) (int, error) {
	bookings, err := c.blockingBookings(ctx, date)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, b := range bookings {
		if session != nil {
			if Overlaps(date, *session, b) {
				count += len(b.Riders)
			}
			continue
		}
		if Overlaps(date, models.SessionMorning, b) || Overlaps(date, models.SessionDaily, b) {
			count += len(b.Riders)
		}
	}
	return count, nil
}

// BySize partitions availability by size class and attaches the active
// height bounds for display. Totals count every rentable bike of the size
// so a slot with all bikes out reads "0 of N", not "0 of 0".
func (c *Calculator) BySize(ctx context.Context, date time.Time, session models.Session) ([]models.SizeAvailability, error) {
	if c.Snapshot != nil {
		if v, ok := c.Snapshot.Get(date, session); ok {
			return v, nil
		}
	}

	free, err := c.Available(ctx, date, session)
	if err != nil {
		return nil, err
	}
	fleet, err := c.Fleet.Bikes(ctx)
	if err != nil {
		return nil, err
	}
	ranges, err := c.Fleet.HeightRanges(ctx)
	if err != nil {
		return nil, err
	}

	freeBySize := make(map[models.SizeClass]int)
	for _, b := range free {
		freeBySize[b.Size]++
	}
	totalBySize := make(map[models.SizeClass]int)
	for _, b := range fleet {
		if b.Status.Rentable() {
			totalBySize[b.Size]++
		}
	}
	bounds := make(map[models.SizeClass]models.HeightRange)
	for _, r := range ranges {
		bounds[r.Size] = r
	}

	out := make([]models.SizeAvailability, 0, len(models.SizeOrder))
	for _, size := range models.SizeOrder {
		if totalBySize[size] == 0 && freeBySize[size] == 0 {
			continue
		}
		row := models.SizeAvailability{
			Size:      size,
			Available: freeBySize[size],
			Total:     totalBySize[size],
		}
		if r, ok := bounds[size]; ok {
			row.MinHeight = r.MinHeight
			row.MaxHeight = r.MaxHeight
		}
		out = append(out, row)
	}
	if c.Snapshot != nil {
		c.Snapshot.Set(date, session, out)
	}
	return out, nil
}

// blockingBookings fetches the widest window the overlap rules inspect
// (the day before through the target day) and drops terminal statuses.
func (c *Calculator) blockingBookings(ctx context.Context, date time.Time) ([]models.Booking, error) {
	all, err := c.Bookings.BookingsInWindow(ctx, date.AddDate(0, 0, -1), date)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, b := range all {
		if b.Status.Blocks() {
			out = append(out, b)
		}
	}
	return out, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
