// Package metrics provides Prometheus collectors for contentstream.
//
// Collectors are registered on an injected prometheus.Registerer so tests and
// multiple engines in one process never collide on the default registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "contentstream"

// Subscription holds the collectors reported by the catch-up engine.
type Subscription struct {
	// EventsApplied counts events applied per subscription.
	EventsApplied *prometheus.CounterVec

	// Failures counts failed catch-up passes per subscription.
	Failures *prometheus.CounterVec

	// Position reports the last applied global sequence per subscription.
	Position *prometheus.GaugeVec

	// Status reports 1 for the subscription's current status label, 0 for the others.
	Status *prometheus.GaugeVec

	// CatchUpDuration measures catch-up pass latency.
	CatchUpDuration *prometheus.HistogramVec
}

// Statuses lists the label values written to the Status gauge.
var Statuses = []string{"active", "retrying", "failed"}

// NewSubscription creates and registers subscription collectors on reg. A nil
// registerer yields unregistered collectors.
func NewSubscription(reg prometheus.Registerer) *Subscription {
	factory := promauto.With(reg)
	return &Subscription{
		EventsApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "subscription",
				Name:      "events_applied_total",
				Help:      "Events applied to a projection by subscription",
			},
			[]string{"subscription"},
		),
		Failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "subscription",
				Name:      "failures_total",
				Help:      "Failed catch-up passes by subscription",
			},
			[]string{"subscription"},
		),
		Position: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "subscription",
				Name:      "position",
				Help:      "Last global sequence number applied by subscription",
			},
			[]string{"subscription"},
		),
		Status: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "subscription",
				Name:      "status",
				Help:      "Current subscription status (1 for the active label)",
			},
			[]string{"subscription", "status"},
		),
		CatchUpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "subscription",
				Name:      "catchup_duration_seconds",
				Help:      "Duration of a catch-up pass",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"subscription"},
		),
	}
}

// ObserveApplied records applied events and the new position.
func (m *Subscription) ObserveApplied(id string, count int, position int64) {
	if m == nil {
		return
	}
	if count > 0 {
		m.EventsApplied.WithLabelValues(id).Add(float64(count))
	}
	m.Position.WithLabelValues(id).Set(float64(position))
}

// ObserveFailure increments the failure counter.
func (m *Subscription) ObserveFailure(id string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(id).Inc()
}

// ObserveStatus flips the status gauge to the given status.
func (m *Subscription) ObserveStatus(id, status string) {
	if m == nil {
		return
	}
	for _, s := range Statuses {
		value := 0.0
		if s == status {
			value = 1
		}
		m.Status.WithLabelValues(id, s).Set(value)
	}
}

// ObserveDuration records how long a catch-up pass took.
func (m *Subscription) ObserveDuration(id string, d time.Duration) {
	if m == nil {
		return
	}
	m.CatchUpDuration.WithLabelValues(id).Observe(d.Seconds())
}
