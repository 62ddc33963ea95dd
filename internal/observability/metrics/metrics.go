package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for the availability engine.
type SchedulingMetrics struct {
	slotComputations *prometheus.CounterVec
	slotLatency      *prometheus.HistogramVec
	blockCacheTotal  *prometheus.CounterVec
	bookingConflicts prometheus.Counter
	maintenanceMoved *prometheus.CounterVec
	debounceDropped  prometheus.Counter
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		slotComputations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "slot_computations_total",
			Help:      "Total slot generation runs",
		}, []string{"outcome"}),
		slotLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "slot_computation_seconds",
			Help:      "Latency of slot generation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		blockCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "block_cache_total",
			Help:      "Month-level block calendar cache lookups",
		}, []string{"result"}),
		bookingConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "booking_conflicts_total",
			Help:      "Bookings rejected by the system of record at commit time",
		}),
		maintenanceMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "maintenance_transitions_total",
			Help:      "Appointments moved by maintenance batches",
		}, []string{"direction"}),
		debounceDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "debounce_superseded_total",
			Help:      "Slot recomputation triggers superseded before firing",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.slotComputations, m.slotLatency, m.blockCacheTotal,
		m.bookingConflicts, m.maintenanceMoved, m.debounceDropped,
	)
	return m
}

func (m *SchedulingMetrics) ObserveSlotComputation(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.slotComputations.WithLabelValues(outcome).Inc()
	m.slotLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *SchedulingMetrics) ObserveBlockCache(result string) {
	if m == nil {
		return
	}
	m.blockCacheTotal.WithLabelValues(result).Inc()
}

func (m *SchedulingMetrics) ObserveBookingConflict() {
	if m == nil {
		return
	}
	m.bookingConflicts.Inc()
}

func (m *SchedulingMetrics) ObserveMaintenance(direction string, moved int) {
	if m == nil {
		return
	}
	m.maintenanceMoved.WithLabelValues(direction).Add(float64(moved))
}

func (m *SchedulingMetrics) ObserveDebounceSuperseded() {
	if m == nil {
		return
	}
	m.debounceDropped.Inc()
}
