package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vidaclinic/scheduling-engine/internal/httperr"
	"github.com/vidaclinic/scheduling-engine/internal/observability/metrics"
	"github.com/vidaclinic/scheduling-engine/internal/slots"
	"github.com/vidaclinic/scheduling-engine/pkg/logging"
)

var appointmentsTracer = otel.Tracer("clinic.internal.appointments")

// SlotSource computes bookable slots. Implemented by *slots.Generator.
type SlotSource interface {
	Generate(ctx context.Context, req slots.Request) (*slots.Result, error)
}

// Service applies booking rules on top of the store: slot validation, the
// auto-confirm rule, the state machine and the reschedule-once policy.
type Service struct {
	store             *Store
	slots             SlotSource
	autoConfirmWindow time.Duration
	loc               *time.Location
	now               func() time.Time
	metrics           *metrics.SchedulingMetrics
	logger            *logging.Logger
}

// NewService constructs an appointment service.
func NewService(store *Store, slotSrc SlotSource, autoConfirmWindow time.Duration, loc *time.Location, m *metrics.SchedulingMetrics, logger *logging.Logger) *Service {
	if store == nil {
		panic("appointments: store required")
	}
	if slotSrc == nil {
		panic("appointments: slot source required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if autoConfirmWindow <= 0 {
		autoConfirmWindow = 24 * time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:             store,
		slots:             slotSrc,
		autoConfirmWindow: autoConfirmWindow,
		loc:               loc,
		now:               time.Now,
		metrics:           m,
		logger:            logger,
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateInput is a booking request.
type CreateInput struct {
	ProviderID uuid.UUID
	PatientID  uuid.UUID
	RoomID     uuid.UUID
	Date       time.Time
	StartMin   int
	Reason     string
}

// Create books an appointment. The requested slot must be offered by the
// generator for the constrained room, and the insert is still re-validated
// by the store's unique indexes at commit time.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.create")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.provider_id", in.ProviderID.String()))

	if err := validateBooking(in.ProviderID, in.PatientID, in.RoomID, in.Date, in.StartMin, in.Reason); err != nil {
		return nil, err
	}

	result, err := s.slots.Generate(ctx, slots.Request{
		ProviderID: in.ProviderID,
		Date:       in.Date,
		RoomID:     in.RoomID,
	})
	if err != nil {
		return nil, err
	}
	if !result.Contains(in.StartMin, in.RoomID) {
		return nil, httperr.Conflict("slot_not_available",
			"the requested slot is not currently bookable", nil)
	}

	a := &Appointment{
		ProviderID: in.ProviderID,
		PatientID:  in.PatientID,
		RoomID:     in.RoomID,
		Date:       in.Date,
		StartMin:   in.StartMin,
		Reason:     in.Reason,
		Status:     s.autoStatus(in.Date, in.StartMin),
	}
	if err := s.store.Create(ctx, a); err != nil {
		if httperr.KindOf(err) == httperr.KindConflict {
			s.metrics.ObserveBookingConflict()
		}
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("appointment created",
		"appointment_id", a.ID,
		"provider_id", a.ProviderID,
		"date", a.Date.Format("2006-01-02"),
		"start_min", a.StartMin,
		"status", a.Status,
	)
	return a, nil
}

// Transition applies one state machine step. noShow is only meaningful on a
// provider-initiated cancellation of an unattended visit.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to Status, noShow bool) (*Appointment, error) {
	if !to.Valid() {
		return nil, httperr.Validation("invalid_status", fmt.Sprintf("unknown status %q", to))
	}

	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Status.CanTransitionTo(to) {
		return nil, httperr.Policy("invalid_transition",
			fmt.Sprintf("cannot move an appointment from %s to %s", a.Status, to))
	}
	if to != StatusCancelled {
		noShow = false
	}
	if err := s.store.UpdateStatus(ctx, id, a.Status, to, noShow); err != nil {
		return nil, err
	}
	s.logger.Info("appointment transitioned",
		"appointment_id", id, "from", a.Status, "to", to, "no_show", noShow)
	a.Status = to
	a.NoShow = noShow
	return a, nil
}

// RescheduleInput is the single permitted field set of a reschedule.
type RescheduleInput struct {
	Date     time.Time
	StartMin int
	RoomID   uuid.UUID
	Reason   string
}

// Reschedule applies the one-shot reschedule policy. A second attempt is
// rejected locally, before any slot computation or store write.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, in RescheduleInput) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.appointment_id", id.String()))

	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.RescheduleUsed {
		return nil, httperr.Policy("reschedule_used",
			"the appointment was already rescheduled once; contact the clinic")
	}
	if a.Status != StatusPending && a.Status != StatusConfirmed {
		return nil, httperr.Policy("not_reschedulable",
			fmt.Sprintf("an appointment in status %s cannot be rescheduled", a.Status))
	}
	if err := validateBooking(a.ProviderID, a.PatientID, in.RoomID, in.Date, in.StartMin, in.Reason); err != nil {
		return nil, err
	}

	// The old slot is supplied as the preserve value so the current booking
	// stays selectable on its own day even past the lead-time cutoff.
	result, err := s.slots.Generate(ctx, slots.Request{
		ProviderID: a.ProviderID,
		Date:       in.Date,
		RoomID:     in.RoomID,
		Preserve: &slots.Preserve{
			AppointmentID: a.ID,
			Date:          a.Date,
			StartMin:      a.StartMin,
			RoomID:        a.RoomID,
		},
	})
	if err != nil {
		return nil, err
	}
	if !result.Contains(in.StartMin, in.RoomID) {
		return nil, httperr.Conflict("slot_not_available",
			"the requested slot is not currently bookable", nil)
	}

	status := a.Status
	if status == StatusPending && s.withinAutoConfirm(in.Date, in.StartMin) {
		status = StatusConfirmed
	}
	if err := s.store.ApplyReschedule(ctx, a.ID, in.Date, in.StartMin, in.RoomID, in.Reason, status); err != nil {
		if httperr.KindOf(err) == httperr.KindConflict {
			s.metrics.ObserveBookingConflict()
		}
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("appointment rescheduled",
		"appointment_id", a.ID,
		"date", in.Date.Format("2006-01-02"),
		"start_min", in.StartMin,
		"room_id", in.RoomID,
	)
	a.Date = in.Date
	a.StartMin = in.StartMin
	a.RoomID = in.RoomID
	a.Reason = in.Reason
	a.Status = status
	a.RescheduleUsed = true
	return a, nil
}

// Get loads one appointment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.store.GetByID(ctx, id)
}

// ListDay returns a provider's non-cancelled appointments for one day.
func (s *Service) ListDay(ctx context.Context, providerID uuid.UUID, date time.Time) ([]Appointment, error) {
	return s.store.ListByProviderDate(ctx, providerID, date)
}

func (s *Service) autoStatus(date time.Time, startMin int) Status {
	if s.withinAutoConfirm(date, startMin) {
		return StatusConfirmed
	}
	return StatusPending
}

func (s *Service) withinAutoConfirm(date time.Time, startMin int) bool {
	startAt := time.Date(date.Year(), date.Month(), date.Day(), startMin/60, startMin%60, 0, 0, s.loc)
	return startAt.Sub(s.now().In(s.loc)) < s.autoConfirmWindow
}

func validateBooking(providerID, patientID, roomID uuid.UUID, date time.Time, startMin int, reason string) error {
	switch {
	case providerID == uuid.Nil:
		return httperr.Validation("missing_provider", "a provider is required")
	case patientID == uuid.Nil:
		return httperr.Validation("missing_patient", "a patient is required")
	case roomID == uuid.Nil:
		return httperr.Validation("missing_room", "a room must be selected")
	case date.IsZero():
		return httperr.Validation("missing_date", "a date must be selected")
	case startMin < 0 || startMin >= 24*60:
		return httperr.Validation("invalid_time", "the selected time is out of range")
	case reason == "":
		return httperr.Validation("missing_reason", "a visit reason is required")
	}
	return nil
}
