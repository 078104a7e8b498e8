package schedule

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/verdict/db"
	"github.com/teranos/verdict/errors"
)

// RunStore handles persistence of cycle history
type RunStore struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewRunStore creates a new cycle run store
func NewRunStore(conn *sql.DB, dialect db.Dialect) *RunStore {
	return &RunStore{db: conn, dialect: dialect}
}

const runColumns = `id, reason, status, started_at, completed_at, duration_ms,
	inflight, admitted, records, succeeded, failed, error_message`

// CreateRun inserts a new cycle run
func (s *RunStore) CreateRun(ctx context.Context, run *CycleRun) error {
	query := db.Rebind(s.dialect, `
		INSERT INTO cycle_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	var completedAt, durationMs, errorMessage interface{}
	if run.CompletedAt != nil {
		completedAt = formatTime(*run.CompletedAt)
	}
	if run.DurationMs != nil {
		durationMs = *run.DurationMs
	}
	if run.ErrorMessage != nil {
		errorMessage = *run.ErrorMessage
	}

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Reason,
		run.Status,
		formatTime(run.StartedAt),
		completedAt,
		durationMs,
		run.Inflight,
		run.Admitted,
		run.Records,
		run.Succeeded,
		run.Failed,
		errorMessage,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create cycle run")
	}
	return nil
}

// UpdateRun writes the outcome of a cycle run
func (s *RunStore) UpdateRun(ctx context.Context, run *CycleRun) error {
	query := db.Rebind(s.dialect, `
		UPDATE cycle_runs
		SET status = ?,
		    completed_at = ?,
		    duration_ms = ?,
		    inflight = ?,
		    admitted = ?,
		    records = ?,
		    succeeded = ?,
		    failed = ?,
		    error_message = ?
		WHERE id = ?
	`)

	var completedAt, durationMs, errorMessage interface{}
	if run.CompletedAt != nil {
		completedAt = formatTime(*run.CompletedAt)
	}
	if run.DurationMs != nil {
		durationMs = *run.DurationMs
	}
	if run.ErrorMessage != nil {
		errorMessage = *run.ErrorMessage
	}

	result, err := s.db.ExecContext(ctx, query,
		run.Status,
		completedAt,
		durationMs,
		run.Inflight,
		run.Admitted,
		run.Records,
		run.Succeeded,
		run.Failed,
		errorMessage,
		run.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update cycle run")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if rowsAffected == 0 {
		return errors.NewNotFoundError("cycle run not found: %s", run.ID)
	}
	return nil
}

// GetRun returns one cycle run
func (s *RunStore) GetRun(ctx context.Context, id string) (*CycleRun, error) {
	row := s.db.QueryRowContext(ctx,
		db.Rebind(s.dialect, `SELECT `+runColumns+` FROM cycle_runs WHERE id = ?`), id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("cycle run not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get cycle run %s", id)
	}
	return run, nil
}

// ListRecent returns the most recent cycle runs, newest first
func (s *RunStore) ListRecent(ctx context.Context, limit int) ([]*CycleRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		db.Rebind(s.dialect, `SELECT `+runColumns+` FROM cycle_runs ORDER BY started_at DESC, id LIMIT ?`), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list cycle runs")
	}
	defer rows.Close()

	var runs []*CycleRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan cycle run")
		}
		runs = append(runs, run)
	}
	return runs, errors.Wrap(rows.Err(), "failed to iterate cycle runs")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*CycleRun, error) {
	var (
		run          CycleRun
		startedAt    string
		completedAt  sql.NullString
		durationMs   sql.NullInt64
		errorMessage sql.NullString
	)
	err := row.Scan(
		&run.ID,
		&run.Reason,
		&run.Status,
		&startedAt,
		&completedAt,
		&durationMs,
		&run.Inflight,
		&run.Admitted,
		&run.Records,
		&run.Succeeded,
		&run.Failed,
		&errorMessage,
	)
	if err != nil {
		return nil, err
	}

	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, errors.Wrapf(err, "run %s started_at", run.ID)
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "run %s completed_at", run.ID)
		}
		run.CompletedAt = &t
	}
	if durationMs.Valid {
		run.DurationMs = &durationMs.Int64
	}
	if errorMessage.Valid {
		run.ErrorMessage = &errorMessage.String
	}
	return &run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
