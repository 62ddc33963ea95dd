// Package schedule resolves a provider's recurring weekly working hours into
// the minute intervals that are structurally open on a calendar day.
package schedule

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one recurring weekly working interval for a provider. Providers
// may have several entries on the same weekday (split shifts). Entries are
// deactivated, never deleted.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"provider_id"`
	Weekday    int       `json:"weekday"` // 0=Monday .. 6=Sunday
	StartMin   int       `json:"start_min"`
	EndMin     int       `json:"end_min"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Interval is a half-open [StartMin, EndMin) range of minutes since midnight.
type Interval struct {
	StartMin int `json:"start_min"`
	EndMin   int `json:"end_min"`
}

// DayOfWeek normalizes Go's Sunday-based weekday to the backend convention
// 0=Monday..6=Sunday. Every call site that needs a weekday index uses this
// function; the convention is never re-derived ad hoc.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
