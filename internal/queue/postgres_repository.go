package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxDB is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it for tests.
type pgxDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores queue entries in the relational database.
// Transitions are single conditional UPDATEs, so the status check and the
// write are one atomic statement and concurrent callers cannot both win.
type PostgresRepository struct {
	db pgxDB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("queue: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting a mock database for testing.
func NewPostgresRepositoryWithDB(db pgxDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const entryColumns = `id, patient_id, doctor_id, queue_number, status, priority, joined_at, called_at, service_started_at, completed_at, cancel_reason`

func scanEntry(row pgx.Row) (*QueueEntry, error) {
	var e QueueEntry
	if err := row.Scan(
		&e.ID,
		&e.PatientID,
		&e.DoctorID,
		&e.QueueNumber,
		&e.Status,
		&e.Priority,
		&e.JoinedAt,
		&e.CalledAt,
		&e.ServiceStartedAt,
		&e.CompletedAt,
		&e.CancelReason,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

// joinRetries bounds how often a join is retried when two concurrent
// inserts compute the same queue number and one loses to the unique index.
const joinRetries = 3

// Join inserts a waiting row with the next queue number for the doctor's
// day, or returns the patient's existing active row. The unique index on
// (doctor_id, joined_day, queue_number) backs the never-reused invariant;
// a concurrent join that computed the same number retries with a fresh
// transaction and sees the winner's row in its max().
func (r *PostgresRepository) Join(ctx context.Context, req *JoinRequest) (*QueueEntry, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var entry *QueueEntry
	var err error
	for attempt := 0; attempt < joinRetries; attempt++ {
		entry, err = r.joinOnce(ctx, req)
		if err == nil || !isUniqueViolation(err) {
			return entry, err
		}
	}
	return nil, fmt.Errorf("queue: join contention exhausted retries: %w", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PostgresRepository) joinOnce(ctx context.Context, req *JoinRequest) (*QueueEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue: begin join: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := scanEntry(tx.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE patient_id = $1 AND doctor_id = $2
		  AND status IN ('waiting', 'called', 'in_service')
		LIMIT 1
	`, req.PatientID, req.DoctorID))
	if err == nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("queue: commit join: %w", err)
		}
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("queue: check active entry: %w", err)
	}

	entry, err := scanEntry(tx.QueryRow(ctx, `
		INSERT INTO queue_entries (id, patient_id, doctor_id, queue_number, status, priority, joined_day)
		SELECT $1, $2, $3, COALESCE(MAX(queue_number), 0) + 1, 'waiting', $4, CURRENT_DATE
		FROM queue_entries
		WHERE doctor_id = $3 AND joined_day = CURRENT_DATE
		RETURNING `+entryColumns, uuid.New().String(), req.PatientID, req.DoctorID, string(req.Priority)))
	if err != nil {
		return nil, fmt.Errorf("queue: insert entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("queue: commit join: %w", err)
	}
	return entry, nil
}

// GetByID fetches a single entry.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*QueueEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `
		SELECT `+entryColumns+` FROM queue_entries WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("queue: select entry: %w", err)
	}
	return entry, nil
}

// Active returns all active entries, optionally for one doctor.
func (r *PostgresRepository) Active(ctx context.Context, doctorID string) ([]*QueueEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM queue_entries
		WHERE status IN ('waiting', 'called', 'in_service')
	`
	args := []any{}
	if doctorID != "" {
		query += ` AND doctor_id = $1`
		args = append(args, doctorID)
	}
	query += ` ORDER BY joined_at`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("queue: select active: %w", err)
	}
	defer rows.Close()

	var out []*QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("queue: scan active: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue: iterate active: %w", err)
	}
	return out, nil
}

// ActiveByPatient returns the patient's active entry. A patient queued
// with several doctors gets the earliest-joined entry, deterministically.
func (r *PostgresRepository) ActiveByPatient(ctx context.Context, patientID string) (*QueueEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE patient_id = $1 AND status IN ('waiting', 'called', 'in_service')
		ORDER BY joined_at
		LIMIT 1
	`, patientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveEntry
		}
		return nil, fmt.Errorf("queue: select active by patient: %w", err)
	}
	return entry, nil
}

// CompletedSince returns completed entries within the window.
func (r *PostgresRepository) CompletedSince(ctx context.Context, doctorID string, since time.Time) ([]*QueueEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM queue_entries
		WHERE status = 'completed' AND completed_at >= $1
	`
	args := []any{since}
	if doctorID != "" {
		query += ` AND doctor_id = $2`
		args = append(args, doctorID)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("queue: select completed: %w", err)
	}
	defer rows.Close()

	var out []*QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("queue: scan completed: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue: iterate completed: %w", err)
	}
	return out, nil
}

// transition runs one conditional UPDATE. Zero rows means either the entry
// does not exist or it is not in the required status; a follow-up select
// tells the two apart.
func (r *PostgresRepository) transition(ctx context.Context, id, op string, from, to Status, stampColumn string) (*QueueEntry, error) {
	query := fmt.Sprintf(`
		UPDATE queue_entries
		SET status = $1, %s = now()
		WHERE id = $2 AND status = $3
		RETURNING %s`, stampColumn, entryColumns)

	entry, err := scanEntry(r.db.QueryRow(ctx, query, string(to), id, string(from)))
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("queue: %s entry: %w", op, err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, &InvalidTransitionError{ID: id, From: current.Status, Op: op}
}

// Call moves a waiting entry to called.
func (r *PostgresRepository) Call(ctx context.Context, id string) (*QueueEntry, error) {
	return r.transition(ctx, id, "call", StatusWaiting, StatusCalled, "called_at")
}

// StartService moves a called entry to in_service.
func (r *PostgresRepository) StartService(ctx context.Context, id string) (*QueueEntry, error) {
	return r.transition(ctx, id, "start service for", StatusCalled, StatusInService, "service_started_at")
}

// Complete moves an in_service entry to completed.
func (r *PostgresRepository) Complete(ctx context.Context, id string) (*QueueEntry, error) {
	return r.transition(ctx, id, "complete", StatusInService, StatusCompleted, "completed_at")
}

// Cancel ends a waiting or called entry with a reason.
func (r *PostgresRepository) Cancel(ctx context.Context, id, reason string) (*QueueEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `
		UPDATE queue_entries
		SET status = 'cancelled', cancel_reason = $1
		WHERE id = $2 AND status IN ('waiting', 'called')
		RETURNING `+entryColumns, reason, id))
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("queue: cancel entry: %w", err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, &InvalidTransitionError{ID: id, From: current.Status, Op: "cancel"}
}

// ChangePriority re-tiers a waiting entry.
func (r *PostgresRepository) ChangePriority(ctx context.Context, id string, priority Priority) (*QueueEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `
		UPDATE queue_entries
		SET priority = $1
		WHERE id = $2 AND status = 'waiting'
		RETURNING `+entryColumns, string(priority), id))
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("queue: change priority: %w", err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, &InvalidTransitionError{ID: id, From: current.Status, Op: "change priority of"}
}

// DeleteTerminalBefore purges old completed/cancelled rows.
func (r *PostgresRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM queue_entries
		WHERE status IN ('completed', 'cancelled') AND joined_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("queue: purge entries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

var _ Repository = (*PostgresRepository)(nil)
