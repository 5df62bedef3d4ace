package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/example/bike-rental/internal/availability"
	"github.com/example/bike-rental/internal/models"
	"github.com/example/bike-rental/internal/observability"
	"github.com/example/bike-rental/internal/sizing"
	"github.com/example/bike-rental/internal/storage"
)

// ErrInsufficientInventory means some rider could not be given any bike,
// ideal or tolerated substitute. Retryable with another date or session.
var ErrInsufficientInventory = errors.New("insufficient inventory")

// NoMatchingSizeError means a rider's height falls outside every
// configured height band. Not retryable without reconfiguration.
type NoMatchingSizeError struct {
	RiderID string
	Height  float64
}

func (e *NoMatchingSizeError) Error() string {
	return fmt.Sprintf("no size class matches rider %s (height %.0fcm)", e.RiderID, e.Height)
}

// Planner proposes a conflict-free bike assignment for a group of riders.
// It is a pure proposal with no side effects: the caller locks the bikes
// and commits, or throws the plan away.
type Planner struct {
	Calc  *availability.Calculator
	Fleet storage.FleetStore
}

// Plan assigns a bike to every rider, in input order, all-or-nothing.
// Given the same fleet snapshot, height table and rider order it always
// returns the same assignment: within a size the lowest bike ID wins.
func (p *Planner) Plan(ctx context.Context, riders []models.Rider, date time.Time, session models.Session) ([]models.Assignment, error) {
	ranges, err := p.Fleet.HeightRanges(ctx)
	if err != nil {
		return nil, err
	}
	table := sizing.NewTable(ranges)

	free, err := p.Calc.Available(ctx, date, session)
	if err != nil {
		return nil, err
	}
	bySize := make(map[models.SizeClass][]int, len(models.SizeOrder))
	for _, b := range free {
		bySize[b.Size] = append(bySize[b.Size], b.ID)
	}
	for _, ids := range bySize {
		sort.Ints(ids)
	}

	out := make([]models.Assignment, 0, len(riders))
	for _, rider := range riders {
		ideal, ok := table.IdealSize(rider.Height)
		if !ok {
			observability.PlanFailures.WithLabelValues("no_matching_size").Inc()
			return nil, &NoMatchingSizeError{RiderID: rider.ID, Height: rider.Height}
		}

		size, bikeID, ok := takeBike(bySize, ideal)
		if !ok {
			for _, probe := range sizing.ProbeOrder(ideal) {
				if !table.WithinTolerance(rider.Height, probe) {
					continue
				}
				if size, bikeID, ok = takeBike(bySize, probe); ok {
					break
				}
			}
		}
		if !ok {
			observability.PlanFailures.WithLabelValues("insufficient_inventory").Inc()
			return nil, ErrInsufficientInventory
		}
		out = append(out, models.Assignment{RiderID: rider.ID, BikeID: bikeID, Size: size})
	}
	observability.PlansTotal.Inc()
	return out, nil
}

// takeBike removes and returns the lowest-numbered free bike of the size.
func takeBike(bySize map[models.SizeClass][]int, size models.SizeClass) (models.SizeClass, int, bool) {
	ids := bySize[size]
	if len(ids) == 0 {
		return "", 0, false
	}
	bySize[size] = ids[1:]
	return size, ids[0], true
}
