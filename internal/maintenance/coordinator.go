// Package maintenance implements the two-phase preview/apply workflow that
// moves appointments displaced by a block into the maintenance status, and
// the symmetric reactivation when a block is removed.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vidaclinic/scheduling-engine/internal/appointments"
	"github.com/vidaclinic/scheduling-engine/internal/blocks"
	"github.com/vidaclinic/scheduling-engine/internal/httperr"
	"github.com/vidaclinic/scheduling-engine/internal/observability/metrics"
	"github.com/vidaclinic/scheduling-engine/pkg/logging"
)

var maintenanceTracer = otel.Tracer("clinic.internal.maintenance")

// DB abstracts the pgx pool surface the coordinator needs, including
// transactions for the apply paths.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Invalidator drops cached block months after a block write. Implemented by
// *blocks.Resolver.
type Invalidator interface {
	InvalidateScope(ctx context.Context, scope blocks.Scope)
}

// BlockCandidate describes a block being created or edited, before it is
// persisted.
type BlockCandidate struct {
	GroupID         uuid.UUID  `json:"group_id"` // uuid.Nil creates a new group
	ProviderID      *uuid.UUID `json:"provider_id,omitempty"`
	DateFrom        time.Time  `json:"date_from"`
	DateTo          time.Time  `json:"date_to"`
	Reason          string     `json:"reason,omitempty"`
	AnnualRecurring bool       `json:"annual_recurring"`
}

func (c BlockCandidate) entry() blocks.Entry {
	return blocks.Entry{
		GroupID:         c.GroupID,
		ProviderID:      c.ProviderID,
		DateFrom:        c.DateFrom,
		DateTo:          c.DateTo,
		Reason:          c.Reason,
		AnnualRecurring: c.AnnualRecurring,
	}
}

func (c BlockCandidate) scope() blocks.Scope {
	if c.ProviderID == nil {
		return blocks.GlobalScope()
	}
	return blocks.ProviderScope(*c.ProviderID)
}

// AffectedAppointment is one row a batch will move, returned for audit.
type AffectedAppointment struct {
	ID         uuid.UUID           `json:"id"`
	ProviderID uuid.UUID           `json:"provider_id"`
	PatientID  uuid.UUID           `json:"patient_id"`
	Date       time.Time           `json:"date"`
	StartMin   int                 `json:"start_min"`
	Status     appointments.Status `json:"status"`
}

// Preview is the read-only impact report shown before an apply.
type Preview struct {
	Total        int                         `json:"total"`
	ByStatus     map[appointments.Status]int `json:"by_status"`
	Appointments []AffectedAppointment       `json:"appointments"`
}

// Batch is the audit record of one applied transition.
type Batch struct {
	ID    uuid.UUID             `json:"batch_id"`
	Moved int                   `json:"moved"`
	Rows  []AffectedAppointment `json:"rows"`
}

// Coordinator runs the preview/apply workflow.
type Coordinator struct {
	db          DB
	blockStore  *blocks.Store
	invalidator Invalidator
	rewarm      func(scope blocks.Scope)
	now         func() time.Time
	metrics     *metrics.SchedulingMetrics
	logger      *logging.Logger
}

// NewCoordinator wires a coordinator. invalidator and rewarm may be nil.
func NewCoordinator(db DB, blockStore *blocks.Store, invalidator Invalidator, rewarm func(scope blocks.Scope), m *metrics.SchedulingMetrics, logger *logging.Logger) *Coordinator {
	if db == nil {
		panic("maintenance: db required")
	}
	if blockStore == nil {
		panic("maintenance: block store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{
		db:          db,
		blockStore:  blockStore,
		invalidator: invalidator,
		rewarm:      rewarm,
		now:         time.Now,
		metrics:     m,
		logger:      logger,
	}
}

// WithClock overrides the coordinator clock. Test hook.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// Preview computes the future non-cancelled appointments the candidate block
// would displace. Nothing is mutated.
func (c *Coordinator) Preview(ctx context.Context, candidate BlockCandidate) (*Preview, error) {
	rows, err := c.impacted(ctx, c.db, candidate)
	if err != nil {
		return nil, err
	}
	return buildPreview(rows), nil
}

// Apply persists the block and transactionally moves every impacted
// appointment into maintenance. With confirm=false nothing is persisted.
// The move is atomic: the caller either sees the full batch applied or no
// change at all.
func (c *Coordinator) Apply(ctx context.Context, candidate BlockCandidate, confirm bool) (*Batch, error) {
	ctx, span := maintenanceTracer.Start(ctx, "maintenance.apply")
	defer span.End()

	if !confirm {
		return nil, nil
	}
	if candidate.GroupID == uuid.Nil {
		candidate.GroupID = uuid.New()
	}
	span.SetAttributes(attribute.String("clinic.block_group", candidate.GroupID.String()))

	batch := &Batch{ID: uuid.New()}

	tx, err := c.db.Begin(ctx)
	if err != nil {
		return nil, httperr.Transaction("maintenance_apply", "no changes applied", err)
	}
	defer tx.Rollback(ctx)

	if err := c.blockStore.ReplaceGroup(ctx, tx, candidate.GroupID, []blocks.Entry{candidate.entry()}); err != nil {
		return nil, httperr.Transaction("maintenance_apply", "no changes applied", err)
	}

	// Impact is recomputed inside the transaction; the preview the operator
	// confirmed may be stale by now.
	impacted, err := c.impacted(ctx, tx, candidate)
	if err != nil {
		return nil, httperr.Transaction("maintenance_apply", "no changes applied", err)
	}
	for _, row := range impacted {
		tag, err := tx.Exec(ctx, `
			UPDATE appointments
			SET status = 'maintenance', caused_by_block_id = $1, updated_at = $2
			WHERE id = $3 AND status IN ('pending', 'confirmed')`,
			candidate.GroupID, c.now().UTC(), row.ID)
		if err != nil {
			return nil, httperr.Transaction("maintenance_apply", "no changes applied", err)
		}
		if tag.RowsAffected() == 1 {
			batch.Rows = append(batch.Rows, row)
		}
	}
	batch.Moved = len(batch.Rows)

	if err := tx.Commit(ctx); err != nil {
		return nil, httperr.Transaction("maintenance_apply", "no changes applied", err)
	}

	c.metrics.ObserveMaintenance("into_maintenance", batch.Moved)
	c.logger.Info("maintenance batch applied",
		"batch_id", batch.ID,
		"block_group", candidate.GroupID,
		"moved", batch.Moved,
	)
	c.afterWrite(ctx, candidate.scope())
	return batch, nil
}

// ReactivationPreview reports the maintenance appointments the block's
// removal would return to pending. Rows carry an explicit caused_by link;
// rows predating that column fall back to a scope/date heuristic.
func (c *Coordinator) ReactivationPreview(ctx context.Context, groupID uuid.UUID) (*Preview, error) {
	entries, err := c.blockStore.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	rows, err := c.reactivatable(ctx, c.db, groupID, entries)
	if err != nil {
		return nil, err
	}
	return buildPreview(rows), nil
}

// ReactivationApply returns the previewed appointments to pending and
// deletes the block, atomically: both happen or neither is visible.
func (c *Coordinator) ReactivationApply(ctx context.Context, groupID uuid.UUID) (*Batch, error) {
	ctx, span := maintenanceTracer.Start(ctx, "maintenance.reactivation_apply")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.block_group", groupID.String()))

	entries, err := c.blockStore.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	scope := blocks.GlobalScope()
	if len(entries) > 0 && !entries[0].Global() {
		scope = blocks.ProviderScope(*entries[0].ProviderID)
	}

	batch := &Batch{ID: uuid.New()}

	tx, err := c.db.Begin(ctx)
	if err != nil {
		return nil, httperr.Transaction("reactivation_apply", "no changes applied", err)
	}
	defer tx.Rollback(ctx)

	impacted, err := c.reactivatable(ctx, tx, groupID, entries)
	if err != nil {
		return nil, httperr.Transaction("reactivation_apply", "no changes applied", err)
	}
	for _, row := range impacted {
		tag, err := tx.Exec(ctx, `
			UPDATE appointments
			SET status = 'pending', caused_by_block_id = NULL, updated_at = $1
			WHERE id = $2 AND status = 'maintenance'`,
			c.now().UTC(), row.ID)
		if err != nil {
			return nil, httperr.Transaction("reactivation_apply", "no changes applied", err)
		}
		if tag.RowsAffected() == 1 {
			batch.Rows = append(batch.Rows, row)
		}
	}
	batch.Moved = len(batch.Rows)

	if err := c.blockStore.DeleteGroup(ctx, tx, groupID); err != nil {
		return nil, httperr.Transaction("reactivation_apply", "no changes applied", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, httperr.Transaction("reactivation_apply", "no changes applied", err)
	}

	c.metrics.ObserveMaintenance("reactivated", batch.Moved)
	c.logger.Info("reactivation batch applied",
		"batch_id", batch.ID,
		"block_group", groupID,
		"reactivated", batch.Moved,
	)
	c.afterWrite(ctx, scope)
	return batch, nil
}

// impacted selects the future non-cancelled appointments a candidate block
// covers. Recurring windows are matched in Go since their year is unbound.
func (c *Coordinator) impacted(ctx context.Context, db blocks.DB, candidate BlockCandidate) ([]AffectedAppointment, error) {
	today := blocks.Day(c.now().UTC())
	query := `
		SELECT id, provider_id, patient_id, date, start_min, status
		FROM appointments
		WHERE date >= $1 AND status IN ('pending', 'confirmed')`
	args := []any{today}
	if candidate.ProviderID != nil {
		query += ` AND provider_id = $2`
		args = append(args, *candidate.ProviderID)
	}
	query += ` ORDER BY date ASC, start_min ASC`

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("maintenance: load impacted: %w", err)
	}
	defer rows.Close()

	entry := candidate.entry()
	var out []AffectedAppointment
	for rows.Next() {
		row, err := scanAffected(rows)
		if err != nil {
			return nil, err
		}
		if entry.Covers(row.Date) {
			out = append(out, row)
		}
	}
	return out, rows.Err()
}

func (c *Coordinator) reactivatable(ctx context.Context, db blocks.DB, groupID uuid.UUID, entries []blocks.Entry) ([]AffectedAppointment, error) {
	var providerID *uuid.UUID
	if len(entries) > 0 && !entries[0].Global() {
		providerID = entries[0].ProviderID
	}

	query := `
		SELECT id, provider_id, patient_id, date, start_min, status, caused_by_block_id
		FROM appointments
		WHERE status = 'maintenance'`
	args := []any{}
	if providerID != nil {
		query += ` AND provider_id = $1`
		args = append(args, *providerID)
	}
	query += ` ORDER BY date ASC, start_min ASC`

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("maintenance: load reactivatable: %w", err)
	}
	defer rows.Close()

	var out []AffectedAppointment
	for rows.Next() {
		row, causedBy, err := scanAffectedWithCause(rows)
		if err != nil {
			return nil, err
		}
		if causedBy != nil {
			if *causedBy == groupID {
				out = append(out, row)
			}
			continue
		}
		// Legacy rows without an explicit link: best-effort date match.
		for _, e := range entries {
			if e.Covers(row.Date) {
				out = append(out, row)
				break
			}
		}
	}
	return out, rows.Err()
}

func (c *Coordinator) afterWrite(ctx context.Context, scope blocks.Scope) {
	if c.invalidator != nil {
		c.invalidator.InvalidateScope(ctx, scope)
	}
	if c.rewarm != nil {
		c.rewarm(scope)
	}
}

func buildPreview(rows []AffectedAppointment) *Preview {
	p := &Preview{
		Total:        len(rows),
		ByStatus:     make(map[appointments.Status]int),
		Appointments: rows,
	}
	for _, row := range rows {
		p.ByStatus[row.Status]++
	}
	return p
}

func scanAffected(rows pgx.Rows) (AffectedAppointment, error) {
	var a AffectedAppointment
	var status string
	if err := rows.Scan(&a.ID, &a.ProviderID, &a.PatientID, &a.Date, &a.StartMin, &status); err != nil {
		return a, fmt.Errorf("maintenance: scan affected: %w", err)
	}
	a.Status = appointments.Status(status)
	return a, nil
}

func scanAffectedWithCause(rows pgx.Rows) (AffectedAppointment, *uuid.UUID, error) {
	var a AffectedAppointment
	var status string
	var causedBy *uuid.UUID
	if err := rows.Scan(&a.ID, &a.ProviderID, &a.PatientID, &a.Date, &a.StartMin, &status, &causedBy); err != nil {
		return a, nil, fmt.Errorf("maintenance: scan affected: %w", err)
	}
	a.Status = appointments.Status(status)
	return a, causedBy, nil
}
