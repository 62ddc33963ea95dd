// Package appointments owns the appointment lifecycle: the status state
// machine, booking with the auto-confirm rule, and the reschedule-once
// policy.
package appointments

import (
	"time"

	"github.com/google/uuid"
)

// Status is the canonical appointment lifecycle state.
type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusMaintenance Status = "maintenance"
)

// transitions enumerates every legal status change. Anything not listed is
// rejected.
var transitions = map[Status][]Status{
	StatusPending:     {StatusConfirmed, StatusCancelled, StatusMaintenance},
	StatusConfirmed:   {StatusCompleted, StatusCancelled, StatusMaintenance},
	StatusMaintenance: {StatusPending},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusMaintenance:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Appointment is one booked visit. Rows are never physically deleted;
// cancellation and maintenance are status changes.
type Appointment struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"provider_id"`
	PatientID  uuid.UUID `json:"patient_id"`
	RoomID     uuid.UUID `json:"room_id"`
	Date       time.Time `json:"date"`
	StartMin   int       `json:"start_min"`
	Reason     string    `json:"reason"`
	Status     Status    `json:"status"`
	// NoShow marks a provider-initiated cancellation of an unattended visit.
	NoShow bool `json:"no_show"`
	// RescheduleUsed flips permanently on the first successful reschedule.
	RescheduleUsed bool `json:"reschedule_used"`
	// CausedByBlockID links rows moved into maintenance to the block group
	// that displaced them, so reactivation needs no heuristic match.
	CausedByBlockID *uuid.UUID `json:"caused_by_block_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// StartAt combines the appointment's date and start minute in loc.
func (a Appointment) StartAt(loc *time.Location) time.Time {
	d := a.Date
	return time.Date(d.Year(), d.Month(), d.Day(), a.StartMin/60, a.StartMin%60, 0, 0, loc)
}
