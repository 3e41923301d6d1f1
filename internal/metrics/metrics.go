// Package metrics defines the Prometheus instruments for the tracking engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pricetracker"

// Outcome labels for fetch results that are not failures
const (
	OutcomeSuccess = "success"
)

// Notification result labels
const (
	NotifySent    = "sent"
	NotifyFailed  = "failed"
	NotifySkipped = "skipped"
)

// Metrics groups the engine's instruments
type Metrics struct {
	fetches       *prometheus.CounterVec
	fetchAttempts prometheus.Histogram
	decisions     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	cyclesSkipped prometheus.Counter
	trackedItems  prometheus.Gauge
}

// New creates the instruments and registers them on reg. A nil reg leaves them
// unregistered, which tests use to avoid collisions.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetches_total",
				Help:      "Price fetches by outcome (success or failure kind)",
			},
			[]string{"outcome"},
		),
		fetchAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_attempts",
			Help:      "Attempts used per fetch",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Change decisions by kind",
			},
			[]string{"kind"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notifications by result",
			},
			[]string{"result"},
		),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a full scheduler cycle",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		cyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_skipped_total",
			Help:      "Cycles skipped because another process held the lock",
		}),
		trackedItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_items",
			Help:      "Items listed at the start of the last cycle",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.fetches,
			m.fetchAttempts,
			m.decisions,
			m.notifications,
			m.cycleDuration,
			m.cyclesSkipped,
			m.trackedItems,
		)
	}
	return m
}

// ObserveFetch records one fetch. outcome is OutcomeSuccess or a failure kind.
func (m *Metrics) ObserveFetch(outcome string, attempts int) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		m.fetchAttempts.Observe(float64(attempts))
	}
}

// ObserveDecision counts one change decision
func (m *Metrics) ObserveDecision(kind string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(kind).Inc()
}

// ObserveNotification counts one notification result
func (m *Metrics) ObserveNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

// ObserveCycle records a finished cycle over n items
func (m *Metrics) ObserveCycle(d time.Duration, n int) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
	m.trackedItems.Set(float64(n))
}

// CycleSkipped counts a cycle skipped for lock contention
func (m *Metrics) CycleSkipped() {
	if m == nil {
		return
	}
	m.cyclesSkipped.Inc()
}
