package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSchedulingMetricsObserve(t *testing.T) {
	m := NewSchedulingMetrics(prometheus.NewRegistry())
	m.ObserveSlotComputation("ok", 0.02)
	m.ObserveSlotComputation("blocked_day", 0.001)
	m.ObserveBlockCache("hit")
	m.ObserveBlockCache("miss")
	m.ObserveBookingConflict()
	m.ObserveMaintenance("into_maintenance", 3)
	m.ObserveMaintenance("reactivated", 3)
	m.ObserveDebounceSuperseded()
}

func TestSchedulingMetricsNilSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveSlotComputation("ok", 0.1)
	m.ObserveBlockCache("hit")
	m.ObserveBookingConflict()
	m.ObserveMaintenance("into_maintenance", 1)
	m.ObserveDebounceSuperseded()
}
