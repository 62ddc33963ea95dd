package slots

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vidaclinic/scheduling-engine/internal/blocks"
	"github.com/vidaclinic/scheduling-engine/internal/httperr"
	"github.com/vidaclinic/scheduling-engine/internal/rooms"
	"github.com/vidaclinic/scheduling-engine/internal/schedule"
)

var (
	roomA = rooms.Room{ID: uuid.MustParse("11111111-1111-1111-1111-111111111111"), Label: "Room 1", Active: true}
	roomB = rooms.Room{ID: uuid.MustParse("22222222-2222-2222-2222-222222222222"), Label: "Room 2", Active: true}
)

type stubSources struct {
	intervals   []schedule.Interval
	scheduleErr error
	dayStatus   blocks.DayStatus
	blocksErr   error
	rooms       []rooms.Room
	defaultRoom uuid.UUID
	taken       map[int]bool
	roomTaken   rooms.TakenSet
	excludeSeen uuid.UUID
}

func (s *stubSources) OpenIntervals(_ context.Context, _ uuid.UUID, _ time.Time) ([]schedule.Interval, error) {
	return s.intervals, s.scheduleErr
}

func (s *stubSources) IsBlocked(_ context.Context, _ blocks.Scope, _ time.Time) (blocks.DayStatus, error) {
	return s.dayStatus, s.blocksErr
}

func (s *stubSources) ListActive(_ context.Context) ([]rooms.Room, error) {
	return append([]rooms.Room{}, s.rooms...), nil
}

func (s *stubSources) DefaultRoomID(_ context.Context, _ uuid.UUID) (uuid.UUID, error) {
	return s.defaultRoom, nil
}

func (s *stubSources) TakenForDate(_ context.Context, _ uuid.UUID, _ time.Time, exclude uuid.UUID) (map[int]bool, rooms.TakenSet, error) {
	s.excludeSeen = exclude
	taken := s.taken
	if taken == nil {
		taken = map[int]bool{}
	}
	roomTaken := s.roomTaken
	if roomTaken == nil {
		roomTaken = rooms.TakenSet{}
	}
	return taken, roomTaken, nil
}

func workdaySources() *stubSources {
	return &stubSources{
		intervals:   []schedule.Interval{{StartMin: 9 * 60, EndMin: 18 * 60}},
		rooms:       []rooms.Room{roomA, roomB},
		defaultRoom: roomA.ID,
	}
}

func newTestGenerator(src *stubSources, now time.Time) *Generator {
	g := NewGenerator(src, src, src, src, 2*time.Hour, time.UTC, nil, nil)
	return g.WithClock(func() time.Time { return now })
}

func day(s string) time.Time {
	t, err := time.Parse(blocks.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func starts(slots []Slot) []int {
	out := make([]int, len(slots))
	for i, s := range slots {
		out[i] = s.StartMin
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGenerateExcludesLunchAndSplitsHalves(t *testing.T) {
	src := workdaySources()
	// Future date, so no lead-time cutoff applies.
	gen := newTestGenerator(src, day("2026-09-01").Add(10*time.Hour))

	result, err := gen.Generate(context.Background(), Request{ProviderID: uuid.New(), Date: day("2026-09-07")})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !equalInts(starts(result.Morning), []int{540, 600, 660, 720}) {
		t.Fatalf("morning starts: %v", starts(result.Morning))
	}
	if !equalInts(starts(result.Afternoon), []int{900, 960, 1020}) {
		t.Fatalf("afternoon starts: %v", starts(result.Afternoon))
	}
	for _, s := range append(result.Morning, result.Afternoon...) {
		if s.StartMin >= LunchStartMin && s.StartMin < LunchEndMin {
			t.Fatalf("lunch slot leaked: %d", s.StartMin)
		}
		if !s.IsDefault || s.RoomID != roomA.ID {
			t.Fatalf("expected free default room for %d, got %+v", s.StartMin, s)
		}
	}
}

func TestGenerateSameDayLeadTimeCutoff(t *testing.T) {
	src := workdaySources()
	// 09:30 + 2h lead time rounds up to 12:00.
	gen := newTestGenerator(src, day("2026-09-07").Add(9*time.Hour+30*time.Minute))

	result, err := gen.Generate(context.Background(), Request{ProviderID: uuid.New(), Date: day("2026-09-07")})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !equalInts(starts(result.Morning), []int{720}) {
		t.Fatalf("morning starts: %v", starts(result.Morning))
	}
	if !equalInts(starts(result.Afternoon), []int{900, 960, 1020}) {
		t.Fatalf("afternoon starts: %v", starts(result.Afternoon))
	}
}

func TestGenerateExactHourCutoffKeepsBoundary(t *testing.T) {
	src := workdaySources()
	// 09:00 + 2h is exactly 11:00; the 11:00 slot stays offered.
	gen := newTestGenerator(src, day("2026-09-07").Add(9*time.Hour))

	result, err := gen.Generate(context.Background(), Request{ProviderID: uuid.New(), Date: day("2026-09-07")})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !equalInts(starts(result.Morning), []int{660, 720}) {
		t.Fatalf("morning starts: %v", starts(result.Morning))
	}
}

func TestGenerateBlockedDayIsEmpty(t *testing.T) {
	src := workdaySources()
	src.dayStatus = blocks.DayStatus{Blocked: true, Reason: "holiday"}
	gen := newTestGenerator(src, day("2026-09-01"))

	result, err := gen.Generate(context.Background(), Request{ProviderID: uuid.New(), Date: day("2026-09-07")})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !result.Blocked || result.BlockReason != "holiday" {
		t.Fatalf("expected blocked day, got %+v", result)
	}
	if len(result.Morning)+len(result.Afternoon) != 0 {
		t.Fatal("blocked day must offer no slots")
	}
}

func TestGenerateRoomFallbackPerTime(t *testing.T) {
	src := workdaySources()
	src.roomTaken = rooms.TakenSet{roomA.ID: {600: true}}
	gen := newTestGenerator(src, day("2026-09-01"))

	result, err := gen.Generate(context.Background(), Request{ProviderID: uuid.New(), Date: day("2026-09-07")})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	var at600, at660 *Slot
	for i := range result.Morning {
		switch result.Morning[i].StartMin {
		case 600:
			at600 = &result.Morning[i]
		case 660:
			at660 = &result.Morning[i]
		}
	}
	if at600 == nil || at600.RoomID != roomB.ID || at600.IsDefault {
		t.Fatalf("10:00 should fall back to room B: %+v", at600)
	}
	if at660 == nil || at660.RoomID != roomA.ID || !at660.IsDefault {
		t.Fatalf("11:00 should use the default room: %+v", at660)
	}
}

func TestGenerateTimeDroppedWhenAllRoomsTaken(t *testing.T) {
	src := workdaySources()
	src.roomTaken = rooms.TakenSet{roomA.ID: {600: true}, roomB.ID: {600: true}}
	gen := newTestGenerator(src, day("2026-09-01"))

	result, err := gen.Generate(context.Background(), Request{ProviderID: uuid.New(), Date: day("2026-09-07")})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Contains(600, roomA.ID) || result.Contains(600, roomB.ID) {
		t.Fatal("fully occupied time must not be offered")
	}
	if !result.Contains(660, roomA.ID) {
		t.Fatal("other times must stay offered")
	}
}

func TestGeneratePreserveExemptFromCutoff(t *testing.T) {
	src := workdaySources()
	// 16:00: every regular slot for the day is already behind the cutoff
	// except 18:00+, which the schedule does not reach.
	gen := newTestGenerator(src, day("2026-09-07").Add(16*time.Hour))
	apptID := uuid.New()

	result, err := gen.Generate(context.Background(), Request{
		ProviderID: uuid.New(),
		Date:       day("2026-09-07"),
		Preserve:   &Preserve{AppointmentID: apptID, Date: day("2026-09-07"), StartMin: 600, RoomID: roomA.ID},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !result.Contains(600, roomA.ID) {
		t.Fatal("preserved slot must stay selectable past the cutoff")
	}
	var preserved Slot
	for _, s := range result.Morning {
		if s.StartMin == 600 {
			preserved = s
		}
	}
	if !preserved.Preserved || !preserved.IsDefault {
		t.Fatalf("unexpected preserved slot: %+v", preserved)
	}
	if src.excludeSeen != apptID {
		t.Fatal("taken lookup must exclude the appointment being edited")
	}
}

func TestGeneratePreserveOnBlockedDay(t *testing.T) {
	src := workdaySources()
	src.dayStatus = blocks.DayStatus{Blocked: true, Reason: "maintenance"}
	gen := newTestGenerator(src, day("2026-09-01"))

	result, err := gen.Generate(context.Background(), Request{
		ProviderID: uuid.New(),
		Date:       day("2026-09-07"),
		Preserve:   &Preserve{AppointmentID: uuid.New(), Date: day("2026-09-07"), StartMin: 600, RoomID: roomA.ID},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !result.Blocked {
		t.Fatal("day must still report blocked")
	}
	if !result.Contains(600, roomA.ID) {
		t.Fatal("preserved slot must survive the block")
	}
	all := append(result.Morning, result.Afternoon...)
	if len(all) != 1 {
		t.Fatalf("blocked day must offer only the preserved slot, got %v", starts(all))
	}
	if !all[0].Preserved {
		t.Fatalf("surviving slot must be the preserved one: %+v", all[0])
	}
	if result.Contains(540, roomA.ID) || result.Contains(660, roomA.ID) {
		t.Fatal("fresh slots must not be offered inside a block")
	}
}

func TestGeneratePreserveInsideLunchStaysListed(t *testing.T) {
	src := workdaySources()
	gen := newTestGenerator(src, day("2026-09-01"))

	result, err := gen.Generate(context.Background(), Request{
		ProviderID: uuid.New(),
		Date:       day("2026-09-07"),
		Preserve:   &Preserve{AppointmentID: uuid.New(), Date: day("2026-09-07"), StartMin: 780, RoomID: roomA.ID},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !result.Contains(780, roomA.ID) {
		t.Fatal("a preserved 13:00 slot must remain selectable")
	}
	var found *Slot
	for i := range result.Morning {
		if result.Morning[i].StartMin == 780 {
			found = &result.Morning[i]
		}
	}
	if found == nil || !found.Preserved {
		t.Fatalf("preserved lunch slot must be listed with the morning: %+v", result.Morning)
	}
	for _, s := range result.Afternoon {
		if s.StartMin < LunchEndMin {
			t.Fatalf("afternoon must start at 15:00: %+v", s)
		}
	}
}

func TestGeneratePreserveSkippedWhenSlotTakenByAnother(t *testing.T) {
	src := workdaySources()
	src.taken = map[int]bool{600: true}
	gen := newTestGenerator(src, day("2026-09-07").Add(16*time.Hour))

	result, err := gen.Generate(context.Background(), Request{
		ProviderID: uuid.New(),
		Date:       day("2026-09-07"),
		Preserve:   &Preserve{AppointmentID: uuid.New(), Date: day("2026-09-07"), StartMin: 600, RoomID: roomA.ID},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if result.Contains(600, roomA.ID) {
		t.Fatal("a slot another appointment took must not be re-offered")
	}
}

func TestGenerateRoomConstraintFiltersAssignment(t *testing.T) {
	src := workdaySources()
	gen := newTestGenerator(src, day("2026-09-01"))

	result, err := gen.Generate(context.Background(), Request{
		ProviderID: uuid.New(),
		Date:       day("2026-09-07"),
		RoomID:     roomB.ID,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, s := range append(result.Morning, result.Afternoon...) {
		if s.RoomID != roomB.ID {
			t.Fatalf("room constraint leaked: %+v", s)
		}
		if s.IsDefault {
			t.Fatalf("room B is not the default: %+v", s)
		}
	}
}

func TestGenerateScheduleFailureIsUnavailable(t *testing.T) {
	src := workdaySources()
	src.scheduleErr = errors.New("connection refused")
	gen := newTestGenerator(src, day("2026-09-01"))

	_, err := gen.Generate(context.Background(), Request{ProviderID: uuid.New(), Date: day("2026-09-07")})
	if httperr.KindOf(err) != httperr.KindUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestStructuralStartsAlignsAndDeduplicates(t *testing.T) {
	got := structuralStarts([]schedule.Interval{
		{StartMin: 9*60 + 30, EndMin: 12 * 60}, // 09:30 aligns to 10:00
		{StartMin: 10 * 60, EndMin: 13 * 60},   // overlaps, deduplicated
		{StartMin: 16 * 60, EndMin: 17 * 60},
	})
	if !equalInts(got, []int{600, 660, 720, 960}) {
		t.Fatalf("structural starts: %v", got)
	}
}
