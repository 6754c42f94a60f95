package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records the outcomes of checkout attempts and the
// contention observed on the per-product reserve locks.
type CheckoutMetrics struct {
	attempts    *prometheus.CounterVec
	aborts      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lockRetries prometheus.Counter
	lockMisses  prometheus.Counter
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_attempts",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	aborts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_aborts",
		Help: "Aborted checkouts by reason.",
	}, []string{"reason"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of checkout runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	lockRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reserve_lock_retries",
		Help: "Retries spent waiting for a product reserve lock.",
	})
	lockMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reserve_lock_misses",
		Help: "Lock acquisitions that exhausted all retries.",
	})
	reg.MustRegister(attempts, aborts, duration, lockRetries, lockMisses)
	return &CheckoutMetrics{
		attempts:    attempts,
		aborts:      aborts,
		duration:    duration,
		lockRetries: lockRetries,
		lockMisses:  lockMisses,
	}
}

// IncAttempt increments the attempt counter for the given outcome.
func (c *CheckoutMetrics) IncAttempt(outcome string) {
	if c == nil || c.attempts == nil {
		return
	}
	c.attempts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncAbort increments the abort counter for the given reason.
func (c *CheckoutMetrics) IncAbort(reason string) {
	if c == nil || c.aborts == nil {
		return
	}
	c.aborts.WithLabelValues(normalizeLabel(reason)).Inc()
}

// ObserveDuration records how long a checkout run took.
func (c *CheckoutMetrics) ObserveDuration(outcome string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

// IncLockRetry counts one retry round on a product reserve lock.
func (c *CheckoutMetrics) IncLockRetry() {
	if c == nil || c.lockRetries == nil {
		return
	}
	c.lockRetries.Inc()
}

// IncLockMiss counts an acquisition that gave up after exhausting retries.
func (c *CheckoutMetrics) IncLockMiss() {
	if c == nil || c.lockMisses == nil {
		return
	}
	c.lockMisses.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
