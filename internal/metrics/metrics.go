// Package metrics exposes ledger counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ClaimsSubmitted counts accepted submissions.
	ClaimsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veribond_claims_submitted_total",
		Help: "Claims accepted into escrow",
	})

	// ClaimsResolved counts settlements by result (correct, incorrect).
	ClaimsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veribond_claims_resolved_total",
		Help: "Claims resolved by result",
	}, []string{"result"})

	// ResolveRejected counts resolve attempts refused by error code.
	ResolveRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veribond_resolve_rejected_total",
		Help: "Resolve attempts rejected by error code",
	}, []string{"code"})

	StakedAmount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veribond_staked_amount_total",
		Help: "Value moved into escrow by submissions",
	})

	SlashedAmount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veribond_slashed_amount_total",
		Help: "Value slashed from incorrect claims",
	})

	BonusPaid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veribond_bonus_paid_total",
		Help: "Bonus value paid from reward reserves",
	})

	// Assertions counts assertion lifecycle steps. Settled stages record
	// whether the verdict kept or flipped the predicted outcome.
	Assertions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veribond_assertions_total",
		Help: "Assertion resolver operations by stage",
	}, []string{"stage"})

	// ResolveDuration tracks the resolve transaction latency.
	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "veribond_resolve_duration_seconds",
		Help:    "Resolve transaction duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
	})

	// NotifyFailures counts best-effort notifications that failed.
	NotifyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veribond_notify_failures_total",
		Help: "Failed webhook deliveries by hook",
	}, []string{"hook"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
