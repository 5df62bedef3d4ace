package checkout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/bike-rental/internal/lock"
	"github.com/example/bike-rental/internal/models"
	"github.com/example/bike-rental/internal/observability"
	"github.com/example/bike-rental/internal/planner"
)

var (
	// ErrLockContention means another session holds an unexpired lock on
	// a planned bike. Retry by re-running the whole plan against fresh
	// availability, not just the lock step.
	ErrLockContention = errors.New("another session is booking one of these bikes")

	// ErrLockOwnershipLost means a lease expired or was reclaimed between
	// locking and committing. The whole attempt restarts from planning.
	ErrLockOwnershipLost = errors.New("bike lock lost before commit")
)

// Committer is the external booking commit service. It must re-check
// lock ownership before writing; the Held re-validation here narrows the
// race but the durable check is the committer's.
type Committer interface {
	Commit(ctx context.Context, payload models.BookingCommit) (bookingID string, err error)
}

// Deposits places a refundable hold on the customer's card for the
// duration of checkout. Optional.
type Deposits interface {
	Hold(ctx context.Context, amount int64, currency, customerID string) (string, error)
	Capture(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
}

const DefaultLockTTL = 5 * time.Minute

type Request struct {
	SessionToken string
	CustomerID   string
	Date         time.Time
	Session      models.Session
	Riders       []models.Rider
}

type Result struct {
	BookingID   string
	Assignments []models.Assignment
}

// Service runs one checkout: plan, lock every planned bike, re-validate
// the leases, hold the deposit, commit, release. Any failure releases
// every lock this attempt acquired.
type Service struct {
	Planner   *planner.Planner
	Locks     lock.Manager
	Committer Committer
	Deposits  Deposits // optional
	Logger    *slog.Logger

	LockTTL         time.Duration
	DepositAmount   int64
	DepositCurrency string
}

func (s *Service) Checkout(ctx context.Context, req Request) (Result, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}

	plan, err := s.Planner.Plan(ctx, req.Riders, req.Date, req.Session)
	if err != nil {
		observability.CheckoutFailures.WithLabelValues("plan").Inc()
		return Result{}, err
	}

	bikeIDs := make([]int, len(plan))
	for i, a := range plan {
		bikeIDs[i] = a.BikeID
	}
	ok, err := s.Locks.AcquireAll(ctx, bikeIDs, req.SessionToken, ttl)
	if err != nil {
		observability.CheckoutFailures.WithLabelValues("lock").Inc()
		return Result{}, err
	}
	if !ok {
		observability.CheckoutFailures.WithLabelValues("lock").Inc()
		return Result{}, ErrLockContention
	}
	defer func() {
		if releaseErr := s.Locks.ReleaseAll(ctx, req.SessionToken); releaseErr != nil {
			logger.Warn("failed to release checkout locks",
				"session_token", req.SessionToken, "error", releaseErr)
		}
	}()

	// the availability read was a snapshot; the locks are the correctness
	// boundary, so confirm every lease is still ours before committing
	for _, id := range bikeIDs {
		held, err := s.Locks.Held(ctx, id, req.SessionToken)
		if err != nil {
			observability.CheckoutFailures.WithLabelValues("validate").Inc()
			return Result{}, err
		}
		if !held {
			observability.CheckoutFailures.WithLabelValues("validate").Inc()
			return Result{}, ErrLockOwnershipLost
		}
	}

	var holdID string
	if s.Deposits != nil && s.DepositAmount > 0 {
		holdID, err = s.Deposits.Hold(ctx, s.DepositAmount, s.DepositCurrency, req.CustomerID)
		if err != nil {
			observability.CheckoutFailures.WithLabelValues("deposit").Inc()
			return Result{}, err
		}
	}

	riders := assignRiders(req.Riders, plan)
	bookingID, err := s.Committer.Commit(ctx, models.BookingCommit{
		SessionToken: req.SessionToken,
		Date:         req.Date,
		Session:      req.Session,
		Riders:       riders,
		Assignments:  plan,
	})
	if err != nil {
		if holdID != "" {
			if cancelErr := s.Deposits.Cancel(ctx, holdID); cancelErr != nil {
				logger.Warn("failed to cancel deposit hold", "hold_id", holdID, "error", cancelErr)
			}
		}
		observability.CheckoutFailures.WithLabelValues("commit").Inc()
		return Result{}, err
	}

	if holdID != "" {
		if err := s.Deposits.Capture(ctx, holdID); err != nil {
			logger.Warn("failed to capture deposit hold", "hold_id", holdID, "error", err)
		}
	}

	observability.CheckoutsCommitted.Inc()
	logger.Info("booking committed",
		"booking_id", bookingID,
		"date", req.Date.Format("2006-01-02"),
		"session", req.Session,
		"riders", len(riders),
	)
	return Result{BookingID: bookingID, Assignments: plan}, nil
}

// assignRiders copies the riders with their planned bike and size filled in.
func assignRiders(riders []models.Rider, plan []models.Assignment) []models.Rider {
	byRider := make(map[string]models.Assignment, len(plan))
	for _, a := range plan {
		byRider[a.RiderID] = a
	}
	out := make([]models.Rider, len(riders))
	for i, r := range riders {
		if a, ok := byRider[r.ID]; ok {
			r.AssignedBikeID = a.BikeID
			r.AssignedSize = a.Size
		}
		out[i] = r
	}
	return out
}
