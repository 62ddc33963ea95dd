package rooms

import (
	"context"
	"errors"
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

// Store provides persistence for rooms and provider default-room lookups.
type Store struct {
	db DB
}

// NewStore creates a new room store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// ListActive returns active rooms in ascending id order.
func (s *Store) ListActive(ctx context.Context) ([]Room, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, label, active, created_at
		FROM rooms
		WHERE active
		ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("rooms: list active: %w", err)
	}
	defer rows.Close()
	return scanRooms(rows)
}

// Create inserts a room.
func (s *Store) Create(ctx context.Context, r *Room) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.Active = true
	r.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO rooms (id, label, active, created_at)
		VALUES ($1, $2, $3, $4)`,
		r.ID, r.Label, r.Active, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("rooms: create: %w", err)
	}
	return nil
}

// Deactivate retires a room without touching schedules that reference it.
func (s *Store) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE rooms SET active = false WHERE id = $1 AND active`, id)
	if err != nil {
		return fmt.Errorf("rooms: deactivate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rooms: deactivate: no active room with id %s", id)
	}
	return nil
}

// DefaultRoomID returns the provider's designated room, or uuid.Nil when the
// provider has none.
func (s *Store) DefaultRoomID(ctx context.Context, providerID uuid.UUID) (uuid.UUID, error) {
	var roomID *uuid.UUID
	err := s.db.QueryRow(ctx, `
		SELECT default_room_id FROM providers WHERE id = $1`, providerID).Scan(&roomID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("rooms: default room: no provider with id %s", providerID)
		}
		return uuid.Nil, fmt.Errorf("rooms: default room: %w", err)
	}
	if roomID == nil {
		return uuid.Nil, nil
	}
	return *roomID, nil
}

func scanRooms(rows pgx.Rows) ([]Room, error) {
	var result []Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.ID, &r.Label, &r.Active, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("rooms: scan room: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
