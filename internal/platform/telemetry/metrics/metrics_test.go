package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSubscriptionObserveApplied(t *testing.T) {
	m := NewSubscription(prometheus.NewRegistry())

	m.ObserveApplied("tagindex", 3, 42)
	m.ObserveApplied("tagindex", 0, 42)

	if got := testutil.ToFloat64(m.EventsApplied.WithLabelValues("tagindex")); got != 3 {
		t.Fatalf("events applied = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.Position.WithLabelValues("tagindex")); got != 42 {
		t.Fatalf("position = %v, want 42", got)
	}
}

func TestSubscriptionObserveStatusIsExclusive(t *testing.T) {
	m := NewSubscription(prometheus.NewRegistry())

	m.ObserveStatus("tagindex", "retrying")
	m.ObserveStatus("tagindex", "failed")

	if got := testutil.ToFloat64(m.Status.WithLabelValues("tagindex", "failed")); got != 1 {
		t.Fatalf("failed gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Status.WithLabelValues("tagindex", "retrying")); got != 0 {
		t.Fatalf("retrying gauge = %v, want 0", got)
	}
}

func TestSubscriptionFailuresAndDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSubscription(reg)

	m.ObserveFailure("tagindex")
	m.ObserveDuration("tagindex", 20*time.Millisecond)

	if got := testutil.ToFloat64(m.Failures.WithLabelValues("tagindex")); got != 1 {
		t.Fatalf("failures = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.CatchUpDuration); got != 1 {
		t.Fatalf("duration series = %d, want 1", got)
	}
}

func TestNilSubscriptionMetricsAreSafe(t *testing.T) {
	var m *Subscription
	m.ObserveApplied("x", 1, 1)
	m.ObserveFailure("x")
	m.ObserveStatus("x", "active")
	m.ObserveDuration("x", time.Second)
}

func TestNewSubscriptionWithNilRegisterer(t *testing.T) {
	m := NewSubscription(nil)
	m.ObserveFailure("x")
}
