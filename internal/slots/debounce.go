package slots

import (
	"sync"
	"time"

	"github.com/vidaclinic/scheduling-engine/internal/observability/metrics"
)

// Debouncer bounds rapid-fire recomputation triggers. A trigger for a key
// fires after the delay unless a newer trigger for the same key supersedes
// it first; only the latest computation for a key ever runs.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	pending map[string]*time.Timer
	metrics *metrics.SchedulingMetrics
}

// NewDebouncer creates a debouncer with the given delay.
func NewDebouncer(delay time.Duration, m *metrics.SchedulingMetrics) *Debouncer {
	if delay <= 0 {
		delay = 120 * time.Millisecond
	}
	return &Debouncer{
		delay:   delay,
		pending: make(map[string]*time.Timer),
		metrics: m,
	}
}

// Trigger schedules fn for the key, discarding any still-pending trigger for
// the same key.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.pending[key]; ok {
		if timer.Stop() {
			d.metrics.ObserveDebounceSuperseded()
		}
	}
	d.pending[key] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.pending, key)
		d.mu.Unlock()
		fn()
	})
}

// Stop cancels every pending trigger.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, timer := range d.pending {
		timer.Stop()
		delete(d.pending, key)
	}
}
