package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vidaclinic/scheduling-engine/internal/blocks"
	"github.com/vidaclinic/scheduling-engine/internal/httperr"
	"github.com/vidaclinic/scheduling-engine/internal/rooms"
)

const uniqueViolation = "23505"

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const appointmentColumns = `id, provider_id, patient_id, room_id, date, start_min, reason, status, no_show, reschedule_used, caused_by_block_id, created_at, updated_at`

// Store provides persistence for appointments. The unique partial indexes on
// (provider_id, date, start_min) and (room_id, date, start_min) over
// non-cancelled rows are the authoritative double-booking guard; violations
// surface as conflict errors.
type Store struct {
	db DB
}

// NewStore creates a new appointment store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Create inserts an appointment row.
func (s *Store) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (id, provider_id, patient_id, room_id, date, start_min, reason, status, no_show, reschedule_used, caused_by_block_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.ProviderID, a.PatientID, a.RoomID, blocks.Day(a.Date), a.StartMin, a.Reason,
		string(a.Status), a.NoShow, a.RescheduleUsed, a.CausedByBlockID, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return httperr.Conflict("slot_taken", "the selected slot is no longer free", err)
		}
		return fmt.Errorf("appointments: create: %w", err)
	}
	return nil
}

// GetByID loads one appointment.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments WHERE id = $1`, id)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httperr.NotFound("appointment_not_found", fmt.Sprintf("no appointment with id %s", id))
		}
		return nil, fmt.Errorf("appointments: get by id: %w", err)
	}
	return a, nil
}

// UpdateStatus applies a guarded status change. The WHERE clause repeats the
// expected current status so racing writers cannot double-apply.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, noShow bool) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET status = $1, no_show = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		string(to), noShow, time.Now().UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("appointments: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return httperr.Conflict("stale_status",
			fmt.Sprintf("appointment %s is no longer %s", id, from), nil)
	}
	return nil
}

// ApplyReschedule changes exactly the (date, start, room, reason) field set
// and burns the one-shot reschedule flag in the same guarded statement.
func (s *Store) ApplyReschedule(ctx context.Context, id uuid.UUID, date time.Time, startMin int, roomID uuid.UUID, reason string, status Status) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET date = $1, start_min = $2, room_id = $3, reason = $4, status = $5,
		    reschedule_used = true, updated_at = $6
		WHERE id = $7 AND NOT reschedule_used AND status IN ('pending', 'confirmed')`,
		blocks.Day(date), startMin, roomID, reason, string(status), time.Now().UTC(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return httperr.Conflict("slot_taken", "the selected slot is no longer free", err)
		}
		return fmt.Errorf("appointments: apply reschedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return httperr.Policy("reschedule_used", "the appointment was already rescheduled once")
	}
	return nil
}

// TakenForDate returns the taken start minutes on a date: the provider's own
// bookings plus every room occupancy, for the final free check. exclude
// removes one appointment from consideration so an appointment being edited
// does not collide with itself.
func (s *Store) TakenForDate(ctx context.Context, providerID uuid.UUID, date time.Time, exclude uuid.UUID) (map[int]bool, rooms.TakenSet, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, provider_id, room_id, start_min
		FROM appointments
		WHERE date = $1 AND status <> 'cancelled'`, blocks.Day(date))
	if err != nil {
		return nil, nil, fmt.Errorf("appointments: taken for date: %w", err)
	}
	defer rows.Close()

	providerTaken := make(map[int]bool)
	roomTaken := make(rooms.TakenSet)
	for rows.Next() {
		var (
			id, rowProvider, roomID uuid.UUID
			startMin                int
		)
		if err := rows.Scan(&id, &rowProvider, &roomID, &startMin); err != nil {
			return nil, nil, fmt.Errorf("appointments: scan taken: %w", err)
		}
		if id == exclude {
			continue
		}
		if rowProvider == providerID {
			providerTaken[startMin] = true
		}
		if roomTaken[roomID] == nil {
			roomTaken[roomID] = make(map[int]bool)
		}
		roomTaken[roomID][startMin] = true
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("appointments: taken for date: %w", err)
	}
	return providerTaken, roomTaken, nil
}

// ListByProviderDate returns a provider's non-cancelled appointments for one
// day, ordered by start time.
func (s *Store) ListByProviderDate(ctx context.Context, providerID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1 AND date = $2 AND status <> 'cancelled'
		ORDER BY start_min ASC`, providerID, blocks.Day(date))
	if err != nil {
		return nil, fmt.Errorf("appointments: list by provider/date: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	err := row.Scan(
		&a.ID, &a.ProviderID, &a.PatientID, &a.RoomID, &a.Date, &a.StartMin,
		&a.Reason, &status, &a.NoShow, &a.RescheduleUsed, &a.CausedByBlockID,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan appointment: %w", err)
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
