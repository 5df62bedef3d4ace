package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/example/bike-rental/internal/models"
)

func TestCeilingReached(t *testing.T) {
	lim := NewMemoryLimiter(map[models.AttemptCategory]Policy{
		models.CategoryBooking: {Window: time.Minute, MaxAttempts: 3},
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		dec, err := lim.Check(ctx, "c1", models.CategoryBooking)
		if err != nil {
			t.Fatal(err)
		}
		if !dec.Allowed {
			t.Fatalf("attempt %d rejected early", i)
		}
		lim.Record(ctx, "c1", models.CategoryBooking, models.OutcomeFailure)
	}

	dec, err := lim.Check(ctx, "c1", models.CategoryBooking)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allowed {
		t.Fatal("fourth attempt allowed past the ceiling")
	}
	if dec.Remaining != 0 {
		t.Fatalf("Remaining = %d want 0", dec.Remaining)
	}
	if dec.RetryAfter <= 0 || dec.RetryAfter > time.Minute {
		t.Fatalf("RetryAfter = %v want within (0, window]", dec.RetryAfter)
	}
}

func TestWindowSlides(t *testing.T) {
	lim := NewMemoryLimiter(map[models.AttemptCategory]Policy{
		models.CategoryLogin: {Window: 50 * time.Millisecond, MaxAttempts: 2},
	})
	ctx := context.Background()

	lim.Record(ctx, "c1", models.CategoryLogin, models.OutcomeFailure)
	lim.Record(ctx, "c1", models.CategoryLogin, models.OutcomeFailure)
	if dec, _ := lim.Check(ctx, "c1", models.CategoryLogin); dec.Allowed {
		t.Fatal("allowed at the ceiling")
	}

	time.Sleep(70 * time.Millisecond)
	dec, _ := lim.Check(ctx, "c1", models.CategoryLogin)
	if !dec.Allowed {
		t.Fatal("still rejected after the window elapsed")
	}
	if dec.Remaining != 2 {
		t.Fatalf("Remaining = %d want 2", dec.Remaining)
	}
}

func TestFailureOnlyCeiling(t *testing.T) {
	lim := NewMemoryLimiter(map[models.AttemptCategory]Policy{
		models.CategoryCoupon: {Window: time.Minute, MaxAttempts: 100, MaxFailures: 2},
	})
	ctx := context.Background()

	// successes never trip the failure ceiling
	for i := 0; i < 10; i++ {
		lim.Record(ctx, "good", models.CategoryCoupon, models.OutcomeSuccess)
	}
	if dec, _ := lim.Check(ctx, "good", models.CategoryCoupon); !dec.Allowed {
		t.Fatal("successful client throttled")
	}

	lim.Record(ctx, "bad", models.CategoryCoupon, models.OutcomeFailure)
	lim.Record(ctx, "bad", models.CategoryCoupon, models.OutcomeFailure)
	if dec, _ := lim.Check(ctx, "bad", models.CategoryCoupon); dec.Allowed {
		t.Fatal("failing client not throttled by the failure ceiling")
	}
}

func TestFailureOnlyPolicyRemaining(t *testing.T) {
	lim := NewMemoryLimiter(map[models.AttemptCategory]Policy{
		models.CategoryLogin: {Window: time.Minute, MaxFailures: 3},
	})
	ctx := context.Background()

	// with no attempt ceiling, Remaining tracks the failure budget alone
	lim.Record(ctx, "c1", models.CategoryLogin, models.OutcomeFailure)
	dec, err := lim.Check(ctx, "c1", models.CategoryLogin)
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Allowed {
		t.Fatal("rejected under the failure ceiling")
	}
	if dec.Remaining != 2 {
		t.Fatalf("Remaining = %d want 2", dec.Remaining)
	}

	// successes consume nothing
	for i := 0; i < 50; i++ {
		lim.Record(ctx, "c1", models.CategoryLogin, models.OutcomeSuccess)
	}
	if dec, _ := lim.Check(ctx, "c1", models.CategoryLogin); !dec.Allowed || dec.Remaining != 2 {
		t.Fatalf("decision after successes = %+v want allowed with 2 remaining", dec)
	}
}

func TestClientsIsolated(t *testing.T) {
	lim := NewMemoryLimiter(map[models.AttemptCategory]Policy{
		models.CategoryBooking: {Window: time.Minute, MaxAttempts: 1},
	})
	ctx := context.Background()

	lim.Record(ctx, "c1", models.CategoryBooking, models.OutcomeFailure)
	if dec, _ := lim.Check(ctx, "c1", models.CategoryBooking); dec.Allowed {
		t.Fatal("c1 should be throttled")
	}
	if dec, _ := lim.Check(ctx, "c2", models.CategoryBooking); !dec.Allowed {
		t.Fatal("c2 throttled by c1's attempts")
	}
}

func TestCategoriesIsolated(t *testing.T) {
	lim := NewMemoryLimiter(map[models.AttemptCategory]Policy{
		models.CategoryBooking: {Window: time.Minute, MaxAttempts: 1},
		models.CategoryLogin:   {Window: time.Minute, MaxAttempts: 1},
	})
	ctx := context.Background()

	lim.Record(ctx, "c1", models.CategoryBooking, models.OutcomeFailure)
	if dec, _ := lim.Check(ctx, "c1", models.CategoryLogin); !dec.Allowed {
		t.Fatal("login throttled by booking attempts")
	}
}

func TestUnknownCategoryUnlimited(t *testing.T) {
	lim := NewMemoryLimiter(map[models.AttemptCategory]Policy{})
	dec, err := lim.Check(context.Background(), "c1", models.CategoryLogin)
	if err != nil || !dec.Allowed {
		t.Fatalf("unconfigured category rejected: %v %v", dec, err)
	}
}
