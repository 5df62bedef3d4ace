package throttle

import (
	"context"
	"time"

	"github.com/example/bike-rental/internal/models"
)

// Policy caps attempts per (client, category) inside a sliding window.
// MaxFailures, when set, is a stricter ceiling counted over failed
// attempts only, so a client that succeeds quickly is never penalized
// the way a brute-forcer is.
type Policy struct {
	Window      time.Duration
	MaxAttempts int
	MaxFailures int // 0 disables the failure-only ceiling
}

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter records attempts and evaluates the sliding-window cap.
type Limiter interface {
	Record(ctx context.Context, clientID string, category models.AttemptCategory, outcome models.AttemptOutcome) error
	Check(ctx context.Context, clientID string, category models.AttemptCategory) (Decision, error)
}

// DefaultPolicies mirrors the per-category ceilings the booking site
// enforces: bookings are capped loosely, coupon probing and login
// failures much tighter.
func DefaultPolicies() map[models.AttemptCategory]Policy {
	return map[models.AttemptCategory]Policy{
		models.CategoryBooking: {Window: 10 * time.Minute, MaxAttempts: 10},
		models.CategoryCoupon:  {Window: 10 * time.Minute, MaxAttempts: 20, MaxFailures: 5},
		models.CategoryLogin:   {Window: 15 * time.Minute, MaxAttempts: 30, MaxFailures: 5},
	}
}

type attempt struct {
	at      time.Time
	failure bool
}

// decide evaluates both ceilings over the attempts inside the window.
// attempts must be in chronological order.
func decide(p Policy, attempts []attempt, now time.Time) Decision {
	cutoff := now.Add(-p.Window)
	total := 0
	failures := 0
	var counted []attempt
	var failed []attempt
	for _, a := range attempts {
		if a.at.Before(cutoff) {
			continue
		}
		total++
		counted = append(counted, a)
		if a.failure {
			failures++
			failed = append(failed, a)
		}
	}

	// Remaining reports the tighter of the configured ceilings; a zero
	// ceiling means unlimited and must not count against the client
	remaining := -1
	if p.MaxAttempts > 0 {
		remaining = p.MaxAttempts - total
	}
	if p.MaxFailures > 0 {
		if r := p.MaxFailures - failures; remaining < 0 || r < remaining {
			remaining = r
		}
	}
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{Allowed: true, Remaining: remaining}

	var retry time.Duration
	if p.MaxAttempts > 0 && total >= p.MaxAttempts {
		// blocked until the oldest counted attempt ages out
		oldest := counted[total-p.MaxAttempts]
		retry = oldest.at.Add(p.Window).Sub(now)
	}
	if p.MaxFailures > 0 && failures >= p.MaxFailures {
		oldest := failed[failures-p.MaxFailures]
		if r := oldest.at.Add(p.Window).Sub(now); r > retry {
			retry = r
		}
	}
	if retry > 0 {
		d.Allowed = false
		d.Remaining = 0
		d.RetryAfter = retry
	}
	return d
}
