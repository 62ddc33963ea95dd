package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides persistence for weekly schedule entries.
type Store struct {
	db DB
}

// NewStore creates a new schedule store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Create inserts a new weekly schedule entry.
func (s *Store) Create(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Weekday < 0 || e.Weekday > 6 {
		return fmt.Errorf("schedule: create entry: weekday %d out of range", e.Weekday)
	}
	if e.EndMin <= e.StartMin {
		return fmt.Errorf("schedule: create entry: end %d must be after start %d", e.EndMin, e.StartMin)
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	e.Active = true

	_, err := s.db.Exec(ctx, `
		INSERT INTO weekly_schedule_entries (id, provider_id, weekday, start_min, end_min, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.ProviderID, e.Weekday, e.StartMin, e.EndMin, e.Active, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("schedule: create entry: %w", err)
	}
	return nil
}

// ActiveByWeekday returns the active entries for a provider on one weekday,
// ordered by start time.
func (s *Store) ActiveByWeekday(ctx context.Context, providerID uuid.UUID, weekday int) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, provider_id, weekday, start_min, end_min, active, created_at, updated_at
		FROM weekly_schedule_entries
		WHERE provider_id = $1 AND weekday = $2 AND active
		ORDER BY start_min ASC, end_min ASC`, providerID, weekday)
	if err != nil {
		return nil, fmt.Errorf("schedule: list active by weekday: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListByProvider returns every entry for a provider, active or not.
func (s *Store) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, provider_id, weekday, start_min, end_min, active, created_at, updated_at
		FROM weekly_schedule_entries
		WHERE provider_id = $1
		ORDER BY weekday ASC, start_min ASC`, providerID)
	if err != nil {
		return nil, fmt.Errorf("schedule: list by provider: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Deactivate retires an entry. Entries are never physically deleted.
func (s *Store) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE weekly_schedule_entries SET active = false, updated_at = $1
		WHERE id = $2 AND active`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("schedule: deactivate entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schedule: deactivate entry: no active entry with id %s", id)
	}
	return nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var result []Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(&e.ID, &e.ProviderID, &e.Weekday, &e.StartMin, &e.EndMin, &e.Active, &e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("schedule: scan entry: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
