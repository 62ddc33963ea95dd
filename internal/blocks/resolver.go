package blocks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/vidaclinic/scheduling-engine/internal/observability/metrics"
	"github.com/vidaclinic/scheduling-engine/pkg/logging"
)

// EntryLister reads the entries that can affect a scope. Implemented by *Store.
type EntryLister interface {
	ListForScope(ctx context.Context, scope Scope, from, to time.Time) ([]Entry, error)
}

// Resolver merges block entries into per-day status, cached per
// (scope, year, month) in Redis. Concurrent lookups for the same month are
// coalesced into a single upstream computation.
type Resolver struct {
	store   EntryLister
	cache   *redis.Client // nil disables caching
	ttl     time.Duration
	flight  singleflight.Group
	metrics *metrics.SchedulingMetrics
	logger  *logging.Logger
}

// NewResolver creates a block calendar resolver. cache may be nil.
func NewResolver(store EntryLister, cache *redis.Client, ttl time.Duration, m *metrics.SchedulingMetrics, logger *logging.Logger) *Resolver {
	if store == nil {
		panic("blocks: entry lister required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Resolver{store: store, cache: cache, ttl: ttl, metrics: m, logger: logger}
}

// Range resolves every day in [from, to] (inclusive) for the scope.
// Keys are DateLayout-formatted days.
func (r *Resolver) Range(ctx context.Context, scope Scope, from, to time.Time) (map[string]DayStatus, error) {
	from, to = Day(from), Day(to)
	if to.Before(from) {
		return nil, fmt.Errorf("blocks: range: to %s before from %s", to.Format(DateLayout), from.Format(DateLayout))
	}

	out := make(map[string]DayStatus)
	for cursor := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, from.Location()); !cursor.After(to); cursor = cursor.AddDate(0, 1, 0) {
		month, err := r.MonthIndex(ctx, scope, cursor.Year(), cursor.Month())
		if err != nil {
			return nil, err
		}
		for key, status := range month {
			day, perr := time.ParseInLocation(DateLayout, key, from.Location())
			if perr != nil {
				continue
			}
			if day.Before(from) || day.After(to) {
				continue
			}
			out[key] = status
		}
	}
	return out, nil
}

// IsBlocked resolves a single day for the scope.
func (r *Resolver) IsBlocked(ctx context.Context, scope Scope, date time.Time) (DayStatus, error) {
	month, err := r.MonthIndex(ctx, scope, date.Year(), date.Month())
	if err != nil {
		return DayStatus{}, err
	}
	return month[Day(date).Format(DateLayout)], nil
}

// MonthIndex resolves one calendar month for the scope. Only blocked days
// appear in the returned map.
func (r *Resolver) MonthIndex(ctx context.Context, scope Scope, year int, month time.Month) (map[string]DayStatus, error) {
	key := monthKey(scope, year, month)

	v, err, _ := r.flight.Do(key, func() (any, error) {
		if cached, ok := r.cacheGet(ctx, key); ok {
			r.metrics.ObserveBlockCache("hit")
			return cached, nil
		}
		r.metrics.ObserveBlockCache("miss")

		computed, err := r.computeMonth(ctx, scope, year, month)
		if err != nil {
			return nil, err
		}
		r.cacheSet(ctx, key, computed)
		return computed, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]DayStatus), nil
}

// InvalidateScope drops cached months after a write to the scope's blocks or
// schedule.
func (r *Resolver) InvalidateScope(ctx context.Context, scope Scope) {
	if scope.ProviderID == uuid.Nil {
		// Clinic-wide writes change every provider's merged view.
		r.invalidatePattern(ctx, "blockcal:*")
		return
	}
	r.invalidatePattern(ctx, "blockcal:"+scope.Key()+":*")
}

// InvalidateAll drops every cached month.
func (r *Resolver) InvalidateAll(ctx context.Context) {
	r.invalidatePattern(ctx, "blockcal:*")
}

func (r *Resolver) computeMonth(ctx context.Context, scope Scope, year int, month time.Month) (map[string]DayStatus, error) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	entries, err := r.store.ListForScope(ctx, scope, first, last)
	if err != nil {
		return nil, fmt.Errorf("blocks: month index %s: %w", first.Format("2006-01"), err)
	}

	out := make(map[string]DayStatus)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		var status DayStatus
		for _, e := range entries {
			if !e.Covers(day) {
				continue
			}
			status.Blocked = true
			// Provider-specific reason wins over the clinic-wide one.
			if !e.Global() && e.Reason != "" {
				status.Reason = e.Reason
			} else if status.Reason == "" {
				status.Reason = e.Reason
			}
		}
		if status.Blocked {
			out[day.Format(DateLayout)] = status
		}
	}
	return out, nil
}

func (r *Resolver) cacheGet(ctx context.Context, key string) (map[string]DayStatus, bool) {
	if r.cache == nil {
		return nil, false
	}
	data, err := r.cache.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Debug("block cache read failed, recomputing", "key", key, "error", err)
		}
		return nil, false
	}
	var out map[string]DayStatus
	if err := json.Unmarshal(data, &out); err != nil {
		r.logger.Debug("block cache entry corrupt, recomputing", "key", key, "error", err)
		return nil, false
	}
	return out, true
}

func (r *Resolver) cacheSet(ctx context.Context, key string, value map[string]DayStatus) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.logger.Debug("block cache write failed", "key", key, "error", err)
	}
}

func (r *Resolver) invalidatePattern(ctx context.Context, pattern string) {
	if r.cache == nil {
		return
	}
	iter := r.cache.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := r.cache.Del(ctx, iter.Val()).Err(); err != nil {
			r.logger.Debug("block cache invalidation failed", "key", iter.Val(), "error", err)
		}
	}
	if err := iter.Err(); err != nil {
		r.logger.Debug("block cache scan failed", "pattern", pattern, "error", err)
	}
}

func monthKey(scope Scope, year int, month time.Month) string {
	return fmt.Sprintf("blockcal:%s:%04d-%02d", scope.Key(), year, int(month))
}
