package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/bike-rental/internal/availability"
	"github.com/example/bike-rental/internal/lock"
	"github.com/example/bike-rental/internal/models"
	"github.com/example/bike-rental/internal/planner"
	"github.com/example/bike-rental/internal/storage"
)

var slot = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

type fakeCommitter struct {
	err     error
	payload models.BookingCommit
	calls   int
}

func (f *fakeCommitter) Commit(ctx context.Context, p models.BookingCommit) (string, error) {
	f.calls++
	f.payload = p
	if f.err != nil {
		return "", f.err
	}
	return "bk-1", nil
}

type fakeDeposits struct {
	held, captured, cancelled int
	holdErr                   error
}

func (f *fakeDeposits) Hold(ctx context.Context, amount int64, currency, customerID string) (string, error) {
	if f.holdErr != nil {
		return "", f.holdErr
	}
	f.held++
	return "pi-1", nil
}
func (f *fakeDeposits) Capture(ctx context.Context, id string) error { f.captured++; return nil }
func (f *fakeDeposits) Cancel(ctx context.Context, id string) error  { f.cancelled++; return nil }

// lostLocks reports every lease as gone, as if the TTL fired between
// locking and committing.
type lostLocks struct{ lock.Manager }

func (l *lostLocks) Held(ctx context.Context, bikeID int, token string) (bool, error) {
	return false, nil
}

func newService(committer Committer, bikes ...models.Bike) (*storage.MemoryStore, *Service) {
	store := storage.NewMemoryStore()
	store.SetHeightRanges([]models.HeightRange{
		{Size: models.SizeM, MinHeight: 165, MaxHeight: 175},
		{Size: models.SizeL, MinHeight: 175, MaxHeight: 185},
	})
	for _, b := range bikes {
		store.UpsertBike(b)
	}
	calc := &availability.Calculator{Fleet: store, Bookings: store}
	svc := &Service{
		Planner:   &planner.Planner{Calc: calc, Fleet: store},
		Locks:     lock.NewMemoryManager(),
		Committer: committer,
		LockTTL:   time.Minute,
	}
	return store, svc
}

func TestCheckoutCommitsAndReleasesLocks(t *testing.T) {
	committer := &fakeCommitter{}
	_, svc := newService(committer,
		models.Bike{ID: 1, Size: models.SizeM, Status: models.BikeAvailable},
		models.Bike{ID: 2, Size: models.SizeL, Status: models.BikeAvailable},
	)
	res, err := svc.Checkout(context.Background(), Request{
		SessionToken: "tok",
		Date:         slot,
		Session:      models.SessionDaily,
		Riders:       []models.Rider{{ID: "a", Height: 170}, {ID: "b", Height: 180}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.BookingID != "bk-1" || len(res.Assignments) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if committer.payload.Riders[0].AssignedBikeID != 1 {
		t.Fatalf("rider not annotated with bike: %+v", committer.payload.Riders[0])
	}
	// locks must be gone after the commit
	for _, id := range []int{1, 2} {
		if ok, _ := svc.Locks.Acquire(context.Background(), id, "next", time.Minute); !ok {
			t.Fatalf("bike %d still locked after checkout", id)
		}
	}
}

func TestCheckoutLockContention(t *testing.T) {
	committer := &fakeCommitter{}
	_, svc := newService(committer,
		models.Bike{ID: 1, Size: models.SizeM, Status: models.BikeAvailable},
	)
	if ok, _ := svc.Locks.Acquire(context.Background(), 1, "rival", time.Minute); !ok {
		t.Fatal("setup failed")
	}

	_, err := svc.Checkout(context.Background(), Request{
		SessionToken: "tok",
		Date:         slot,
		Session:      models.SessionDaily,
		Riders:       []models.Rider{{ID: "a", Height: 170}},
	})
	if !errors.Is(err, ErrLockContention) {
		t.Fatalf("got %v want ErrLockContention", err)
	}
	if committer.calls != 0 {
		t.Fatal("committer called despite lock contention")
	}
	if held, _ := svc.Locks.Held(context.Background(), 1, "rival"); !held {
		t.Fatal("rival lost its lock")
	}
}

func TestCheckoutOwnershipLost(t *testing.T) {
	committer := &fakeCommitter{}
	_, svc := newService(committer,
		models.Bike{ID: 1, Size: models.SizeM, Status: models.BikeAvailable},
	)
	svc.Locks = &lostLocks{Manager: svc.Locks}

	_, err := svc.Checkout(context.Background(), Request{
		SessionToken: "tok",
		Date:         slot,
		Session:      models.SessionDaily,
		Riders:       []models.Rider{{ID: "a", Height: 170}},
	})
	if !errors.Is(err, ErrLockOwnershipLost) {
		t.Fatalf("got %v want ErrLockOwnershipLost", err)
	}
	if committer.calls != 0 {
		t.Fatal("committer called with lost locks")
	}
}

func TestCheckoutCommitFailureCancelsDeposit(t *testing.T) {
	committer := &fakeCommitter{err: errors.New("commit service down")}
	deposits := &fakeDeposits{}
	_, svc := newService(committer,
		models.Bike{ID: 1, Size: models.SizeM, Status: models.BikeAvailable},
	)
	svc.Deposits = deposits
	svc.DepositAmount = 5000
	svc.DepositCurrency = "eur"

	_, err := svc.Checkout(context.Background(), Request{
		SessionToken: "tok",
		Date:         slot,
		Session:      models.SessionDaily,
		Riders:       []models.Rider{{ID: "a", Height: 170}},
	})
	if err == nil {
		t.Fatal("expected commit error")
	}
	if deposits.held != 1 || deposits.cancelled != 1 || deposits.captured != 0 {
		t.Fatalf("deposit lifecycle wrong: %+v", deposits)
	}
	if ok, _ := svc.Locks.Acquire(context.Background(), 1, "next", time.Minute); !ok {
		t.Fatal("lock leaked after failed commit")
	}
}

func TestCheckoutCapturesDepositOnSuccess(t *testing.T) {
	committer := &fakeCommitter{}
	deposits := &fakeDeposits{}
	_, svc := newService(committer,
		models.Bike{ID: 1, Size: models.SizeM, Status: models.BikeAvailable},
	)
	svc.Deposits = deposits
	svc.DepositAmount = 5000

	_, err := svc.Checkout(context.Background(), Request{
		SessionToken: "tok",
		Date:         slot,
		Session:      models.SessionDaily,
		Riders:       []models.Rider{{ID: "a", Height: 170}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if deposits.held != 1 || deposits.captured != 1 || deposits.cancelled != 0 {
		t.Fatalf("deposit lifecycle wrong: %+v", deposits)
	}
}

func TestCheckoutPlanFailurePropagates(t *testing.T) {
	committer := &fakeCommitter{}
	_, svc := newService(committer) // empty fleet

	_, err := svc.Checkout(context.Background(), Request{
		SessionToken: "tok",
		Date:         slot,
		Session:      models.SessionDaily,
		Riders:       []models.Rider{{ID: "a", Height: 170}},
	})
	if !errors.Is(err, planner.ErrInsufficientInventory) {
		t.Fatalf("got %v want ErrInsufficientInventory", err)
	}
	if committer.calls != 0 {
		t.Fatal("committer called for a failed plan")
	}
}
