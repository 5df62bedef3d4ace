package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PlansTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "bike_rental", Name: "plans_total", Help: "Total successful assignment plans"})
	PlanFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "bike_rental", Name: "plan_failures_total", Help: "Assignment plan failures by reason"},
		[]string{"reason"},
	)

	LocksAcquired  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "bike_rental", Name: "locks_acquired_total", Help: "Bike locks successfully acquired"})
	LockContention = promauto.NewCounter(prometheus.CounterOpts{Namespace: "bike_rental", Name: "lock_contention_total", Help: "Lock acquisitions refused because another session held the bike"})

	CheckoutsCommitted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "bike_rental", Name: "checkouts_committed_total", Help: "Checkouts committed to the booking service"})
	CheckoutFailures   = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "bike_rental", Name: "checkout_failures_total", Help: "Checkout failures by stage"},
		[]string{"stage"},
	)

	ThrottleRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "bike_rental", Name: "throttle_rejections_total", Help: "Attempts rejected by the sliding-window throttle"},
		[]string{"category"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "bike_rental", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bike_rental",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
