// Package slots generates the bookable (time, room) pairs for a provider and
// day by composing weekly availability, the block calendar, room assignment
// and the system of record's taken-slot information.
package slots

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vidaclinic/scheduling-engine/internal/blocks"
	"github.com/vidaclinic/scheduling-engine/internal/httperr"
	"github.com/vidaclinic/scheduling-engine/internal/observability/metrics"
	"github.com/vidaclinic/scheduling-engine/internal/rooms"
	"github.com/vidaclinic/scheduling-engine/internal/schedule"
	"github.com/vidaclinic/scheduling-engine/pkg/logging"
)

var slotsTracer = otel.Tracer("clinic.internal.slots")

const (
	// SlotStepMin is the fixed slot granularity. Partial-hour slots are
	// never generated.
	SlotStepMin = 60

	// LunchStartMin..LunchEndMin is excluded regardless of working hours.
	LunchStartMin = 13 * 60
	LunchEndMin   = 15 * 60

	morningEndMin     = 13 * 60
	afternoonStartMin = 15 * 60
)

// ScheduleSource resolves a provider's open intervals for a date.
type ScheduleSource interface {
	OpenIntervals(ctx context.Context, providerID uuid.UUID, date time.Time) ([]schedule.Interval, error)
}

// BlockSource resolves whether a date is blocked for a scope.
type BlockSource interface {
	IsBlocked(ctx context.Context, scope blocks.Scope, date time.Time) (blocks.DayStatus, error)
}

// RoomSource lists active rooms and the provider's default room.
type RoomSource interface {
	ListActive(ctx context.Context) ([]rooms.Room, error)
	DefaultRoomID(ctx context.Context, providerID uuid.UUID) (uuid.UUID, error)
}

// BookingSource is the authoritative taken-slot query from the system of
// record. A locally cached "free" computation is never trusted for the final
// booking decision.
type BookingSource interface {
	TakenForDate(ctx context.Context, providerID uuid.UUID, date time.Time, exclude uuid.UUID) (map[int]bool, rooms.TakenSet, error)
}

// Preserve names an existing appointment's slot that must stay selectable
// while it is being edited.
type Preserve struct {
	AppointmentID uuid.UUID
	Date          time.Time
	StartMin      int
	RoomID        uuid.UUID
}

// Request asks for the bookable slots of one provider on one date.
type Request struct {
	ProviderID uuid.UUID
	Date       time.Time
	// RoomID constrains assignment to a single room; uuid.Nil lets the
	// resolver choose per time.
	RoomID   uuid.UUID
	Preserve *Preserve
}

// Slot is one bookable (time, room) pair.
type Slot struct {
	StartMin  int       `json:"start_min"`
	Time      string    `json:"time"` // "15:04"
	RoomID    uuid.UUID `json:"room_id"`
	RoomLabel string    `json:"room_label,omitempty"`
	IsDefault bool      `json:"is_default"`
	Preserved bool      `json:"preserved,omitempty"`
}

// Result is the slot list for one day, split for presentation.
type Result struct {
	Date        string `json:"date"`
	Blocked     bool   `json:"blocked"`
	BlockReason string `json:"block_reason,omitempty"`
	Morning     []Slot `json:"morning"`
	Afternoon   []Slot `json:"afternoon"`
}

// Generator composes the resolvers into the final slot list.
type Generator struct {
	schedule ScheduleSource
	blocks   BlockSource
	rooms    RoomSource
	bookings BookingSource
	leadTime time.Duration
	loc      *time.Location
	now      func() time.Time
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger
}

// NewGenerator wires a slot generator. loc is the clinic timezone; now may be
// nil outside tests.
func NewGenerator(
	scheduleSrc ScheduleSource,
	blockSrc BlockSource,
	roomSrc RoomSource,
	bookingSrc BookingSource,
	leadTime time.Duration,
	loc *time.Location,
	m *metrics.SchedulingMetrics,
	logger *logging.Logger,
) *Generator {
	if scheduleSrc == nil || blockSrc == nil || roomSrc == nil || bookingSrc == nil {
		panic("slots: all sources required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Generator{
		schedule: scheduleSrc,
		blocks:   blockSrc,
		rooms:    roomSrc,
		bookings: bookingSrc,
		leadTime: leadTime,
		loc:      loc,
		now:      time.Now,
		metrics:  m,
		logger:   logger,
	}
}

// WithClock overrides the generator's clock. Test hook.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate computes the ordered bookable slots for the request. The result
// is advisory: the booking write is re-validated by the system of record at
// commit time.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	ctx, span := slotsTracer.Start(ctx, "slots.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.provider_id", req.ProviderID.String()),
		attribute.String("clinic.date", blocks.Day(req.Date).Format(blocks.DateLayout)),
	)
	started := g.now()

	result, outcome, err := g.generate(ctx, req)
	g.metrics.ObserveSlotComputation(outcome, g.now().Sub(started).Seconds())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result, nil
}

func (g *Generator) generate(ctx context.Context, req Request) (*Result, string, error) {
	day := blocks.Day(req.Date)
	result := &Result{Date: day.Format(blocks.DateLayout), Morning: []Slot{}, Afternoon: []Slot{}}
	preserveToday := req.Preserve != nil && blocks.Day(req.Preserve.Date).Equal(day)

	// A failed schedule lookup means unavailable, never silently open.
	intervals, err := g.schedule.OpenIntervals(ctx, req.ProviderID, day)
	if err != nil {
		return nil, "error", httperr.Unavailable("schedule_unavailable",
			"the provider schedule could not be loaded", err)
	}

	status, err := g.blocks.IsBlocked(ctx, blocks.ProviderScope(req.ProviderID), day)
	if err != nil {
		return nil, "error", httperr.Unavailable("blocks_unavailable",
			"the block calendar could not be loaded", err)
	}
	if status.Blocked {
		result.Blocked = true
		result.BlockReason = status.Reason
		if !preserveToday {
			return result, "blocked_day", nil
		}
	}

	// On a blocked day only the existing booking stays selectable; fresh
	// slots are never offered inside a block.
	var candidates []int
	if !status.Blocked {
		candidates = structuralStarts(intervals)
	}
	if len(candidates) == 0 && !preserveToday {
		return result, "no_schedule", nil
	}

	// Same-day lead time cutoff, rounded up to the next hour boundary.
	now := g.now().In(g.loc)
	if blocks.Day(now).Equal(day) {
		cutoff := ceilToHour(now.Add(g.leadTime))
		kept := candidates[:0]
		for _, start := range candidates {
			if start >= cutoff {
				kept = append(kept, start)
			}
		}
		candidates = kept
	}

	var exclude uuid.UUID
	if req.Preserve != nil {
		exclude = req.Preserve.AppointmentID
	}
	providerTaken, roomTaken, err := g.bookings.TakenForDate(ctx, req.ProviderID, day, exclude)
	if err != nil {
		return nil, "error", fmt.Errorf("slots: taken lookup: %w", err)
	}

	activeRooms, err := g.rooms.ListActive(ctx)
	if err != nil {
		return nil, "error", fmt.Errorf("slots: room lookup: %w", err)
	}
	defaultRoomID, err := g.rooms.DefaultRoomID(ctx, req.ProviderID)
	if err != nil {
		return nil, "error", fmt.Errorf("slots: default room lookup: %w", err)
	}
	if req.RoomID != uuid.Nil {
		constrained := activeRooms[:0]
		for _, room := range activeRooms {
			if room.ID == req.RoomID {
				constrained = append(constrained, room)
			}
		}
		activeRooms = constrained
	}

	offered := make(map[int]bool)
	var slotList []Slot
	for _, start := range candidates {
		if providerTaken[start] {
			continue
		}
		assignment, ok := rooms.Assign(start, activeRooms, defaultRoomID, roomTaken)
		if !ok {
			continue
		}
		offered[start] = true
		slotList = append(slotList, Slot{
			StartMin:  start,
			Time:      minuteClock(start),
			RoomID:    assignment.Room.ID,
			RoomLabel: assignment.Room.Label,
			IsDefault: assignment.IsDefault,
		})
	}

	// Keep the current booking selectable unless a different appointment
	// took it in the meantime.
	if preserveToday && !offered[req.Preserve.StartMin] {
		p := req.Preserve
		if !roomTaken.Taken(p.RoomID, p.StartMin) && !providerTaken[p.StartMin] {
			slotList = append(slotList, Slot{
				StartMin:  p.StartMin,
				Time:      minuteClock(p.StartMin),
				RoomID:    p.RoomID,
				RoomLabel: roomLabel(activeRooms, p.RoomID),
				IsDefault: p.RoomID == defaultRoomID,
				Preserved: true,
			})
		}
	}

	sort.Slice(slotList, func(i, j int) bool { return slotList[i].StartMin < slotList[j].StartMin })
	for _, slot := range slotList {
		switch {
		case slot.StartMin < morningEndMin:
			result.Morning = append(result.Morning, slot)
		case slot.StartMin >= afternoonStartMin:
			result.Afternoon = append(result.Afternoon, slot)
		case slot.Preserved:
			// Only a preserved slot can start inside the lunch window; it
			// must stay selectable, so it rides along with the morning.
			result.Morning = append(result.Morning, slot)
		}
	}
	return result, "ok", nil
}

// Contains reports whether the result offers the (startMin, roomID) pair.
func (r *Result) Contains(startMin int, roomID uuid.UUID) bool {
	for _, slot := range r.Morning {
		if slot.StartMin == startMin && slot.RoomID == roomID {
			return true
		}
	}
	for _, slot := range r.Afternoon {
		if slot.StartMin == startMin && slot.RoomID == roomID {
			return true
		}
	}
	return false
}

// structuralStarts expands open intervals into hour-aligned slot starts,
// deduplicated across overlapping intervals, lunch window removed.
func structuralStarts(intervals []schedule.Interval) []int {
	seen := make(map[int]bool)
	var starts []int
	for _, iv := range intervals {
		first := iv.StartMin
		if rem := first % SlotStepMin; rem != 0 {
			first += SlotStepMin - rem
		}
		for start := first; start+SlotStepMin <= iv.EndMin; start += SlotStepMin {
			if start >= LunchStartMin && start < LunchEndMin {
				continue
			}
			if seen[start] {
				continue
			}
			seen[start] = true
			starts = append(starts, start)
		}
	}
	sort.Ints(starts)
	return starts
}

func ceilToHour(t time.Time) int {
	min := t.Hour()*60 + t.Minute()
	if min%60 != 0 || t.Second() > 0 || t.Nanosecond() > 0 {
		min = (min/60 + 1) * 60
	}
	return min
}

func minuteClock(startMin int) string {
	return fmt.Sprintf("%02d:%02d", startMin/60, startMin%60)
}

func roomLabel(list []rooms.Room, id uuid.UUID) string {
	for _, room := range list {
		if room.ID == id {
			return room.Label
		}
	}
	return ""
}
