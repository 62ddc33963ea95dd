// Package blocks resolves clinic-wide and provider-specific block entries,
// fixed ranges or annually-recurring windows, into a per-day blocked index.
package blocks

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire format for calendar days throughout the engine.
const DateLayout = "2006-01-02"

// Entry is one block row. Rows sharing a GroupID form a single staff-visible
// block. A nil ProviderID means the block is clinic-wide.
type Entry struct {
	GroupID         uuid.UUID  `json:"group_id"`
	ProviderID      *uuid.UUID `json:"provider_id,omitempty"`
	DateFrom        time.Time  `json:"date_from"`
	DateTo          time.Time  `json:"date_to"` // inclusive
	Reason          string     `json:"reason,omitempty"`
	AnnualRecurring bool       `json:"annual_recurring"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Global reports whether the entry applies to the whole clinic.
func (e Entry) Global() bool { return e.ProviderID == nil }

// Covers reports whether the entry blocks the given date. For recurring
// entries only (month, day) is compared; windows may wrap across year-end.
func (e Entry) Covers(date time.Time) bool {
	if e.AnnualRecurring {
		md := monthDay(date)
		start := monthDay(e.DateFrom)
		end := monthDay(e.DateTo)
		if start <= end {
			return md >= start && md <= end
		}
		// Wrapping window, e.g. Dec 24 -> Jan 2.
		return md >= start || md <= end
	}
	day := Day(date)
	return !day.Before(Day(e.DateFrom)) && !day.After(Day(e.DateTo))
}

// DayStatus is the resolved state of one calendar day.
type DayStatus struct {
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason,omitempty"`
}

// Scope selects which entries apply: clinic-wide only, or clinic-wide plus
// one provider's entries.
type Scope struct {
	ProviderID uuid.UUID // uuid.Nil means global-only
}

// GlobalScope resolves clinic-wide entries only.
func GlobalScope() Scope { return Scope{} }

// ProviderScope resolves clinic-wide plus provider entries.
func ProviderScope(providerID uuid.UUID) Scope { return Scope{ProviderID: providerID} }

// Key is the stable cache key fragment for the scope.
func (s Scope) Key() string {
	if s.ProviderID == uuid.Nil {
		return "global"
	}
	return "prov:" + s.ProviderID.String()
}

// Day truncates a timestamp to its calendar day in its own location.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func monthDay(t time.Time) int {
	return int(t.Month())*100 + t.Day()
}
