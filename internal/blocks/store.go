package blocks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vidaclinic/scheduling-engine/internal/httperr"
)

// DB abstracts the pgx query interface so stores work against a pool or an
// open transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides persistence for block entries.
type Store struct {
	db DB
}

// NewStore creates a new block store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// ListForScope returns the entries that can affect the scope: clinic-wide
// rows always, plus the provider's own rows when the scope names one.
// Recurring entries are returned regardless of the visible range since their
// year is unbound.
func (s *Store) ListForScope(ctx context.Context, scope Scope, from, to time.Time) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT group_id, provider_id, date_from, date_to, reason, annual_recurring, created_at
		FROM block_entries
		WHERE (provider_id IS NULL OR provider_id = $1)
		  AND (annual_recurring OR (date_from <= $3 AND date_to >= $2))
		ORDER BY created_at ASC`, nilIfZero(scope.ProviderID), Day(from), Day(to))
	if err != nil {
		return nil, fmt.Errorf("blocks: list for scope: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// GetGroup returns the rows of one block group.
func (s *Store) GetGroup(ctx context.Context, groupID uuid.UUID) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT group_id, provider_id, date_from, date_to, reason, annual_recurring, created_at
		FROM block_entries
		WHERE group_id = $1
		ORDER BY date_from ASC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("blocks: get group: %w", err)
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, httperr.NotFound("block_not_found",
			fmt.Sprintf("no block with group id %s", groupID))
	}
	return entries, nil
}

// ReplaceGroup rewrites a block group inside the given db handle (pool or
// transaction). Apply paths run it inside the maintenance transaction.
func (s *Store) ReplaceGroup(ctx context.Context, db DB, groupID uuid.UUID, entries []Entry) error {
	if db == nil {
		db = s.db
	}
	if _, err := db.Exec(ctx, `DELETE FROM block_entries WHERE group_id = $1`, groupID); err != nil {
		return fmt.Errorf("blocks: replace group: clear: %w", err)
	}
	now := time.Now().UTC()
	for _, e := range entries {
		if e.DateTo.Before(e.DateFrom) && !e.AnnualRecurring {
			return fmt.Errorf("blocks: replace group: date_to %s before date_from %s",
				e.DateTo.Format(DateLayout), e.DateFrom.Format(DateLayout))
		}
		_, err := db.Exec(ctx, `
			INSERT INTO block_entries (group_id, provider_id, date_from, date_to, reason, annual_recurring, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			groupID, e.ProviderID, Day(e.DateFrom), Day(e.DateTo), e.Reason, e.AnnualRecurring, now,
		)
		if err != nil {
			return fmt.Errorf("blocks: replace group: insert: %w", err)
		}
	}
	return nil
}

// DeleteGroup removes a block group inside the given db handle.
func (s *Store) DeleteGroup(ctx context.Context, db DB, groupID uuid.UUID) error {
	if db == nil {
		db = s.db
	}
	tag, err := db.Exec(ctx, `DELETE FROM block_entries WHERE group_id = $1`, groupID)
	if err != nil {
		return fmt.Errorf("blocks: delete group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("blocks: delete group: no block with group id %s", groupID)
	}
	return nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var result []Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(&e.GroupID, &e.ProviderID, &e.DateFrom, &e.DateTo, &e.Reason, &e.AnnualRecurring, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("blocks: scan entry: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func nilIfZero(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
