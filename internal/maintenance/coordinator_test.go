package maintenance

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"

	"github.com/vidaclinic/scheduling-engine/internal/appointments"
	"github.com/vidaclinic/scheduling-engine/internal/blocks"
	"github.com/vidaclinic/scheduling-engine/internal/httperr"
)

func date(s string) time.Time {
	t, err := time.Parse(blocks.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func fixedNow() time.Time { return date("2026-09-01") }

var affectedCols = []string{"id", "provider_id", "patient_id", "date", "start_min", "status"}

type recordingInvalidator struct {
	calls int32
	last  blocks.Scope
}

func (r *recordingInvalidator) InvalidateScope(_ context.Context, scope blocks.Scope) {
	atomic.AddInt32(&r.calls, 1)
	r.last = scope
}

func newTestCoordinator(t *testing.T, mock pgxmock.PgxPoolIface, inv Invalidator) *Coordinator {
	t.Helper()
	return NewCoordinator(mock, blocks.NewStore(mock), inv, nil, nil, nil).WithClock(fixedNow)
}

func TestPreviewCountsFutureCoveredAppointments(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	providerID := uuid.New()
	inside := uuid.New()
	outside := uuid.New()

	mock.ExpectQuery("SELECT id, provider_id, patient_id, date, start_min, status").
		WithArgs(date("2026-09-01"), providerID).
		WillReturnRows(pgxmock.NewRows(affectedCols).
			AddRow(inside, providerID, uuid.New(), date("2026-09-10"), 600, "pending").
			AddRow(outside, providerID, uuid.New(), date("2026-09-20"), 600, "confirmed"))

	coord := newTestCoordinator(t, mock, nil)
	preview, err := coord.Preview(context.Background(), BlockCandidate{
		ProviderID: &providerID,
		DateFrom:   date("2026-09-09"),
		DateTo:     date("2026-09-12"),
		Reason:     "conference",
	})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.Total != 1 {
		t.Fatalf("expected 1 affected, got %d", preview.Total)
	}
	if preview.Appointments[0].ID != inside {
		t.Fatalf("wrong appointment selected: %+v", preview.Appointments)
	}
	if preview.ByStatus[appointments.StatusPending] != 1 {
		t.Fatalf("unexpected status breakdown: %+v", preview.ByStatus)
	}
}

func TestApplyWithoutConfirmIsNoop(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	coord := newTestCoordinator(t, mock, nil)
	batch, err := coord.Apply(context.Background(), BlockCandidate{DateFrom: date("2026-09-10"), DateTo: date("2026-09-10")}, false)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if batch != nil {
		t.Fatal("unconfirmed apply must not produce a batch")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyMovesImpactedInOneTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	groupID := uuid.New()
	providerID := uuid.New()
	apptID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM block_entries").
		WithArgs(groupID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO block_entries").
		WithArgs(groupID, &providerID, date("2026-09-10"), date("2026-09-12"), "conference", false, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT id, provider_id, patient_id, date, start_min, status").
		WithArgs(date("2026-09-01"), providerID).
		WillReturnRows(pgxmock.NewRows(affectedCols).
			AddRow(apptID, providerID, uuid.New(), date("2026-09-11"), 600, "confirmed"))
	mock.ExpectExec("UPDATE appointments").
		WithArgs(groupID, pgxmock.AnyArg(), apptID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	inv := &recordingInvalidator{}
	coord := newTestCoordinator(t, mock, inv)
	batch, err := coord.Apply(context.Background(), BlockCandidate{
		GroupID:    groupID,
		ProviderID: &providerID,
		DateFrom:   date("2026-09-10"),
		DateTo:     date("2026-09-12"),
		Reason:     "conference",
	}, true)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if batch.Moved != 1 || batch.Rows[0].ID != apptID {
		t.Fatalf("unexpected batch: %+v", batch)
	}
	if atomic.LoadInt32(&inv.calls) != 1 || inv.last.ProviderID != providerID {
		t.Fatal("expected scoped cache invalidation after apply")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyRollsBackOnUpdateFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	groupID := uuid.New()
	providerID := uuid.New()
	apptID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM block_entries").
		WithArgs(groupID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO block_entries").
		WithArgs(groupID, &providerID, date("2026-09-10"), date("2026-09-12"), "", false, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT id, provider_id, patient_id, date, start_min, status").
		WithArgs(date("2026-09-01"), providerID).
		WillReturnRows(pgxmock.NewRows(affectedCols).
			AddRow(apptID, providerID, uuid.New(), date("2026-09-11"), 600, "confirmed"))
	mock.ExpectExec("UPDATE appointments").
		WithArgs(groupID, pgxmock.AnyArg(), apptID).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	inv := &recordingInvalidator{}
	coord := newTestCoordinator(t, mock, inv)
	_, err = coord.Apply(context.Background(), BlockCandidate{
		GroupID:    groupID,
		ProviderID: &providerID,
		DateFrom:   date("2026-09-10"),
		DateTo:     date("2026-09-12"),
	}, true)
	if err == nil {
		t.Fatal("expected apply to fail")
	}
	if httperr.KindOf(err) != httperr.KindTransaction {
		t.Fatalf("expected transaction kind, got %v", httperr.KindOf(err))
	}
	if atomic.LoadInt32(&inv.calls) != 0 {
		t.Fatal("failed apply must not invalidate the cache")
	}
}

func TestReactivationApplyReturnsBatchAndDeletesBlock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	groupID := uuid.New()
	otherGroup := uuid.New()
	providerID := uuid.New()
	linked := uuid.New()
	legacy := uuid.New()
	foreign := uuid.New()
	now := time.Now().UTC()

	entryCols := []string{"group_id", "provider_id", "date_from", "date_to", "reason", "annual_recurring", "created_at"}
	causeCols := append(append([]string{}, affectedCols...), "caused_by_block_id")

	mock.ExpectQuery("SELECT group_id, provider_id, date_from, date_to").
		WithArgs(groupID).
		WillReturnRows(pgxmock.NewRows(entryCols).
			AddRow(groupID, &providerID, date("2026-09-10"), date("2026-09-12"), "conference", false, now))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, provider_id, patient_id, date, start_min, status, caused_by_block_id").
		WithArgs(providerID).
		WillReturnRows(pgxmock.NewRows(causeCols).
			AddRow(linked, providerID, uuid.New(), date("2026-09-11"), 600, "maintenance", &groupID).
			AddRow(legacy, providerID, uuid.New(), date("2026-09-12"), 720, "maintenance", (*uuid.UUID)(nil)).
			AddRow(foreign, providerID, uuid.New(), date("2026-09-25"), 600, "maintenance", &otherGroup))
	mock.ExpectExec("UPDATE appointments").
		WithArgs(pgxmock.AnyArg(), linked).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE appointments").
		WithArgs(pgxmock.AnyArg(), legacy).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("DELETE FROM block_entries").
		WithArgs(groupID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	inv := &recordingInvalidator{}
	coord := newTestCoordinator(t, mock, inv)
	batch, err := coord.ReactivationApply(context.Background(), groupID)
	if err != nil {
		t.Fatalf("reactivation apply: %v", err)
	}
	if batch.Moved != 2 {
		t.Fatalf("expected linked and legacy rows reactivated, got %d", batch.Moved)
	}
	if atomic.LoadInt32(&inv.calls) != 1 {
		t.Fatal("expected cache invalidation after reactivation")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
