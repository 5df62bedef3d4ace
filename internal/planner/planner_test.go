package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/bike-rental/internal/availability"
	"github.com/example/bike-rental/internal/models"
	"github.com/example/bike-rental/internal/storage"
)

var slot = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

func newPlanner(bikes ...models.Bike) (*storage.MemoryStore, *Planner) {
	store := storage.NewMemoryStore()
	store.SetHeightRanges([]models.HeightRange{
		{Size: models.SizeXS, MinHeight: 140, MaxHeight: 155},
		{Size: models.SizeS, MinHeight: 155, MaxHeight: 165},
		{Size: models.SizeM, MinHeight: 165, MaxHeight: 175},
		{Size: models.SizeL, MinHeight: 175, MaxHeight: 185},
		{Size: models.SizeXL, MinHeight: 185, MaxHeight: 200},
	})
	for _, b := range bikes {
		store.UpsertBike(b)
	}
	calc := &availability.Calculator{Fleet: store, Bookings: store}
	return store, &Planner{Calc: calc, Fleet: store}
}

func TestPlanAssignsIdealSizes(t *testing.T) {
	_, p := newPlanner(
		models.Bike{ID: 1, Size: models.SizeM, Status: models.BikeAvailable},
		models.Bike{ID: 2, Size: models.SizeL, Status: models.BikeAvailable},
	)
	riders := []models.Rider{{ID: "a", Height: 170}, {ID: "b", Height: 180}}
	plan, err := p.Plan(context.Background(), riders, slot, models.SessionDaily)
	if err != nil {
		t.Fatal(err)
	}
	if plan[0].BikeID != 1 || plan[0].Size != models.SizeM {
		t.Fatalf("rider a got %+v", plan[0])
	}
	if plan[1].BikeID != 2 || plan[1].Size != models.SizeL {
		t.Fatalf("rider b got %+v", plan[1])
	}
}

func TestPlanDeterministic(t *testing.T) {
	_, p := newPlanner(
		models.Bike{ID: 5, Size: models.SizeM, Status: models.BikeAvailable},
		models.Bike{ID: 3, Size: models.SizeM, Status: models.BikeAvailable},
		models.Bike{ID: 9, Size: models.SizeM, Status: models.BikeAvailable},
	)
	riders := []models.Rider{{ID: "a", Height: 168}, {ID: "b", Height: 172}}
	first, err := p.Plan(context.Background(), riders, slot, models.SessionDaily)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := p.Plan(context.Background(), riders, slot, models.SessionDaily)
		if err != nil {
			t.Fatal(err)
		}
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("plan changed between runs: %+v vs %+v", first, again)
			}
		}
	}
	// lowest ID first within a size
	if first[0].BikeID != 3 || first[1].BikeID != 5 {
		t.Fatalf("expected bikes 3,5 got %+v", first)
	}
}

func TestPlanSubstitutesAdjacentSize(t *testing.T) {
	// no M in stock; a 170cm rider should take the L (one size up) since
	// it is within tolerance of L's midpoint
	_, p := newPlanner(
		models.Bike{ID: 1, Size: models.SizeL, Status: models.BikeAvailable},
	)
	plan, err := p.Plan(context.Background(), []models.Rider{{ID: "a", Height: 170}}, slot, models.SessionDaily)
	if err != nil {
		t.Fatal(err)
	}
	if plan[0].Size != models.SizeL {
		t.Fatalf("got %+v want L substitute", plan[0])
	}
}

func TestPlanNeverSubstitutesBeyondTolerance(t *testing.T) {
	// only XL in stock; a 150cm rider must fail, not ride an XL
	_, p := newPlanner(
		models.Bike{ID: 1, Size: models.SizeXL, Status: models.BikeAvailable},
	)
	_, err := p.Plan(context.Background(), []models.Rider{{ID: "a", Height: 150}}, slot, models.SessionDaily)
	if !errors.Is(err, ErrInsufficientInventory) {
		t.Fatalf("got %v want ErrInsufficientInventory", err)
	}
}

func TestPlanAllOrNothing(t *testing.T) {
	// two riders, one M bike: rider b cannot be matched, so nobody is
	_, p := newPlanner(
		models.Bike{ID: 1, Size: models.SizeM, Status: models.BikeAvailable},
	)
	riders := []models.Rider{{ID: "a", Height: 170}, {ID: "b", Height: 171}}
	plan, err := p.Plan(context.Background(), riders, slot, models.SessionDaily)
	if !errors.Is(err, ErrInsufficientInventory) {
		t.Fatalf("got %v want ErrInsufficientInventory", err)
	}
	if plan != nil {
		t.Fatalf("partial plan returned: %+v", plan)
	}
}

func TestPlanNoMatchingSize(t *testing.T) {
	_, p := newPlanner(
		models.Bike{ID: 1, Size: models.SizeM, Status: models.BikeAvailable},
	)
	_, err := p.Plan(context.Background(), []models.Rider{{ID: "tiny", Height: 120}}, slot, models.SessionDaily)
	var noSize *NoMatchingSizeError
	if !errors.As(err, &noSize) {
		t.Fatalf("got %v want NoMatchingSizeError", err)
	}
	if noSize.RiderID != "tiny" {
		t.Fatalf("wrong rider in error: %+v", noSize)
	}
}

func TestPlanDoesNotReuseBikesWithinGroup(t *testing.T) {
	_, p := newPlanner(
		models.Bike{ID: 1, Size: models.SizeM, Status: models.BikeAvailable},
		models.Bike{ID: 2, Size: models.SizeM, Status: models.BikeAvailable},
	)
	riders := []models.Rider{{ID: "a", Height: 170}, {ID: "b", Height: 171}}
	plan, err := p.Plan(context.Background(), riders, slot, models.SessionDaily)
	if err != nil {
		t.Fatal(err)
	}
	if plan[0].BikeID == plan[1].BikeID {
		t.Fatalf("same bike assigned twice: %+v", plan)
	}
}

func TestPlanExcludesBookedBikes(t *testing.T) {
	store, p := newPlanner(
		models.Bike{ID: 1, Size: models.SizeM, Status: models.BikeAvailable},
	)
	store.UpsertBooking(models.Booking{
		ID: "b1", Date: slot, Session: models.SessionDaily, Status: models.BookingConfirmed,
		Riders: []models.Rider{{ID: "x", Height: 170, AssignedBikeID: 1, AssignedSize: models.SizeM}},
	})
	_, err := p.Plan(context.Background(), []models.Rider{{ID: "a", Height: 170}}, slot, models.SessionDaily)
	if !errors.Is(err, ErrInsufficientInventory) {
		t.Fatalf("got %v want ErrInsufficientInventory", err)
	}
}
