package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// EntrySource reads active weekly entries. Implemented by *Store.
type EntrySource interface {
	ActiveByWeekday(ctx context.Context, providerID uuid.UUID, weekday int) ([]Entry, error)
}

// Resolver turns weekly working hours into per-day open intervals.
type Resolver struct {
	entries EntrySource
}

// NewResolver creates a resolver over an entry source.
func NewResolver(entries EntrySource) *Resolver {
	if entries == nil {
		panic("schedule: entry source required")
	}
	return &Resolver{entries: entries}
}

// OpenIntervals returns the sorted open minute-intervals for a provider on
// the given date, or an empty slice when no active entries cover its weekday.
// Overlapping intervals are not merged; slot generation deduplicates.
func (r *Resolver) OpenIntervals(ctx context.Context, providerID uuid.UUID, date time.Time) ([]Interval, error) {
	entries, err := r.entries.ActiveByWeekday(ctx, providerID, DayOfWeek(date))
	if err != nil {
		return nil, fmt.Errorf("schedule: open intervals: %w", err)
	}

	intervals := make([]Interval, 0, len(entries))
	for _, e := range entries {
		// Degenerate rows are tolerated in storage but never resolved.
		if e.EndMin <= e.StartMin {
			continue
		}
		intervals = append(intervals, Interval{StartMin: e.StartMin, EndMin: e.EndMin})
	}
	sort.Slice(intervals, func(i, j int) bool {
		if intervals[i].StartMin != intervals[j].StartMin {
			return intervals[i].StartMin < intervals[j].StartMin
		}
		return intervals[i].EndMin < intervals[j].EndMin
	})
	return intervals, nil
}
