package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
)

var entryColumnNames = []string{
	"id", "patient_id", "doctor_id", "queue_number", "status", "priority",
	"joined_at", "called_at", "service_started_at", "completed_at", "cancel_reason",
}

func waitingRow(id string, number int, joined time.Time) *pgxmock.Rows {
	return pgxmock.NewRows(entryColumnNames).AddRow(
		id, "p1", "d1", number, StatusWaiting, PriorityNormal,
		joined, (*time.Time)(nil), (*time.Time)(nil), (*time.Time)(nil), "",
	)
}

func TestPostgresJoinInsertsNextNumber(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()
	repo := NewPostgresRepositoryWithDB(mock)

	joined := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT").
		WithArgs("p1", "d1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO queue_entries").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(waitingRow("entry-1", 4, joined))
	mock.ExpectCommit()

	entry, err := repo.Join(context.Background(), &JoinRequest{PatientID: "p1", DoctorID: "d1"})
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if entry.QueueNumber != 4 || entry.Status != StatusWaiting {
		t.Errorf("unexpected entry: %+v", entry)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresJoinReturnsExistingActiveEntry(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()
	repo := NewPostgresRepositoryWithDB(mock)

	joined := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT").
		WithArgs("p1", "d1").
		WillReturnRows(waitingRow("entry-1", 2, joined))
	mock.ExpectCommit()

	entry, err := repo.Join(context.Background(), &JoinRequest{PatientID: "p1", DoctorID: "d1"})
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if entry.ID != "entry-1" || entry.QueueNumber != 2 {
		t.Errorf("expected the existing entry back, got %+v", entry)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresJoinRetriesOnNumberCollision(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()
	repo := NewPostgresRepositoryWithDB(mock)

	joined := time.Now().UTC()

	// A concurrent join took the computed number; the loser retries with a
	// fresh transaction and gets the next one.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT").
		WithArgs("p1", "d1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO queue_entries").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "queue_entries_number_per_day"})
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT").
		WithArgs("p1", "d1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO queue_entries").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(waitingRow("entry-1", 5, joined))
	mock.ExpectCommit()

	entry, err := repo.Join(context.Background(), &JoinRequest{PatientID: "p1", DoctorID: "d1"})
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if entry.QueueNumber != 5 {
		t.Errorf("expected number 5 after retry, got %d", entry.QueueNumber)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresActiveByPatientOrdersByJoinTime(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()
	repo := NewPostgresRepositoryWithDB(mock)

	joined := time.Now().UTC()
	mock.ExpectQuery(`ORDER BY joined_at\s+LIMIT 1`).
		WithArgs("p1").
		WillReturnRows(waitingRow("entry-1", 1, joined))

	entry, err := repo.ActiveByPatient(context.Background(), "p1")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if entry.ID != "entry-1" {
		t.Errorf("unexpected entry: %+v", entry)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresCallStampsTimestamp(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()
	repo := NewPostgresRepositoryWithDB(mock)

	joined := time.Now().UTC()
	calledAt := joined.Add(time.Minute)
	rows := pgxmock.NewRows(entryColumnNames).AddRow(
		"entry-1", "p1", "d1", 1, StatusCalled, PriorityNormal,
		joined, &calledAt, (*time.Time)(nil), (*time.Time)(nil), "",
	)
	mock.ExpectQuery("UPDATE queue_entries").
		WithArgs(string(StatusCalled), "entry-1", string(StatusWaiting)).
		WillReturnRows(rows)

	entry, err := repo.Call(context.Background(), "entry-1")
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if entry.Status != StatusCalled || entry.CalledAt == nil {
		t.Errorf("unexpected entry: %+v", entry)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresCallConflictReportsCurrentStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()
	repo := NewPostgresRepositoryWithDB(mock)

	joined := time.Now().UTC()
	calledAt := joined.Add(time.Minute)
	mock.ExpectQuery("UPDATE queue_entries").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT").
		WithArgs("entry-1").
		WillReturnRows(pgxmock.NewRows(entryColumnNames).AddRow(
			"entry-1", "p1", "d1", 1, StatusCalled, PriorityNormal,
			joined, &calledAt, (*time.Time)(nil), (*time.Time)(nil), "",
		))

	_, err = repo.Call(context.Background(), "entry-1")
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if ite.From != StatusCalled {
		t.Errorf("expected conflict from called, got %s", ite.From)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresCallUnknownIDReturnsNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()
	repo := NewPostgresRepositoryWithDB(mock)

	mock.ExpectQuery("UPDATE queue_entries").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT").
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.Call(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresCancelSetsReason(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()
	repo := NewPostgresRepositoryWithDB(mock)

	joined := time.Now().UTC()
	rows := pgxmock.NewRows(entryColumnNames).AddRow(
		"entry-1", "p1", "d1", 1, StatusCancelled, PriorityNormal,
		joined, (*time.Time)(nil), (*time.Time)(nil), (*time.Time)(nil), "bemor ketdi",
	)
	mock.ExpectQuery("UPDATE queue_entries").
		WithArgs("bemor ketdi", "entry-1").
		WillReturnRows(rows)

	entry, err := repo.Cancel(context.Background(), "entry-1", "bemor ketdi")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if entry.Status != StatusCancelled || entry.CancelReason != "bemor ketdi" {
		t.Errorf("unexpected entry: %+v", entry)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresDeleteTerminalBefore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()
	repo := NewPostgresRepositoryWithDB(mock)

	cutoff := time.Now().UTC().AddDate(0, 0, -30)
	mock.ExpectExec("DELETE FROM queue_entries").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	removed, err := repo.DeleteTerminalBefore(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 removed, got %d", removed)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
