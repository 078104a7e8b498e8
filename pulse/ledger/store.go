package ledger

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/verdict/db"
	"github.com/teranos/verdict/errors"
	"github.com/teranos/verdict/logger"
)

// DefaultPendingLimit bounds how many records one polling cycle reads
const DefaultPendingLimit = 15

// Store persists Records in batch_log
type Store struct {
	db      *sql.DB
	dialect db.Dialect
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// NewStore creates a ledger store. A nil logger discards output.
func NewStore(conn *sql.DB, dialect db.Dialect, log *zap.SugaredLogger) *Store {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{
		db:      conn,
		dialect: dialect,
		logger:  logger.AddDBSymbol(log),
		now:     time.Now,
	}
}

func (s *Store) q(query string) string {
	return db.Rebind(s.dialect, query)
}

// Find returns the record for (owner, sub), or nil when there is none.
//
// Duplicate rows are resolved on read: when a terminal row exists the best one
// survives (success over invalid, then lowest id) and the rest are deleted;
// when none is terminal all of them are deleted and nil is returned so the
// caller recreates a clean record.
func (s *Store) Find(ctx context.Context, ownerKey string, subID int) (*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+recordColumns+` FROM batch_log WHERE owner_key = ? AND sub_id = ? ORDER BY id`),
		ownerKey, subID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to find %s/%d", ownerKey, subID)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	switch len(records) {
	case 0:
		return nil, nil
	case 1:
		return records[0], nil
	default:
		return s.resolveConflict(ctx, ownerKey, subID, records)
	}
}

// survivor picks the record to keep among duplicates, or nil when none is terminal
func survivor(records []*Record) *Record {
	var keep *Record
	for _, r := range records {
		if !r.IsTerminal() {
			continue
		}
		if keep == nil {
			keep = r
			continue
		}
		if keep.State() == StateTerminalInvalid && r.State() == StateTerminalSuccess {
			keep = r
			continue
		}
		if keep.State() == r.State() && r.ID < keep.ID {
			keep = r
		}
	}
	return keep
}

func (s *Store) resolveConflict(ctx context.Context, ownerKey string, subID int, records []*Record) (*Record, error) {
	keep := survivor(records)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin conflict resolution")
	}
	defer tx.Rollback()

	var res sql.Result
	if keep != nil {
		res, err = tx.ExecContext(ctx,
			s.q(`DELETE FROM batch_log WHERE owner_key = ? AND sub_id = ? AND id <> ?`),
			ownerKey, subID, keep.ID)
	} else {
		res, err = tx.ExecContext(ctx,
			s.q(`DELETE FROM batch_log WHERE owner_key = ? AND sub_id = ?`),
			ownerKey, subID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to delete duplicates of %s/%d", ownerKey, subID)
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit conflict resolution")
	}

	deleted, _ := res.RowsAffected()
	fields := []interface{}{
		logger.FieldOwnerKey, ownerKey,
		logger.FieldSubID, subID,
		"duplicates", len(records),
		"deleted", deleted,
	}
	if keep != nil {
		fields = append(fields, "kept_id", keep.ID, logger.FieldState, string(keep.State()))
	}
	s.logger.Warnw("Resolved duplicate ledger rows", fields...)

	return keep, nil
}

// Create inserts a record and fills in its ID, Version and timestamps
func (s *Store) Create(ctx context.Context, r *Record) error {
	if r.OwnerKey == "" || r.SubID <= 0 {
		return errors.Wrapf(errors.ErrInvalidRequest, "record needs an owner key and a positive sub id (got %q/%d)", r.OwnerKey, r.SubID)
	}

	now := s.now()
	query := s.q(`
		INSERT INTO batch_log (
			owner_key, sub_id, remote_job_id, artifact_name, remote_file_id,
			output_file_id, should_retry, last_status, attempts, version,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		RETURNING id`)

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		r.OwnerKey,
		r.SubID,
		nullString(r.RemoteJobID),
		r.ArtifactName,
		nullString(r.RemoteFileID),
		nullString(r.OutputFileID),
		r.ShouldRetry.NullBool(),
		r.LastStatus,
		r.Attempts,
		formatTime(now),
		formatTime(now),
	).Scan(&id)
	if err != nil {
		return errors.Wrapf(err, "failed to create record %s/%d", r.OwnerKey, r.SubID)
	}

	r.ID = id
	r.Version = 1
	r.CreatedAt = now.UTC()
	r.UpdatedAt = now.UTC()
	return nil
}

// Update writes every mutable column. The write only lands when the stored
// version still matches r.Version; otherwise ErrConflict is returned.
func (s *Store) Update(ctx context.Context, r *Record) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE batch_log
		SET remote_job_id = ?,
		    artifact_name = ?,
		    remote_file_id = ?,
		    output_file_id = ?,
		    should_retry = ?,
		    last_status = ?,
		    attempts = ?,
		    version = version + 1,
		    updated_at = ?
		WHERE id = ? AND version = ?`),
		nullString(r.RemoteJobID),
		r.ArtifactName,
		nullString(r.RemoteFileID),
		nullString(r.OutputFileID),
		r.ShouldRetry.NullBool(),
		r.LastStatus,
		r.Attempts,
		formatTime(now),
		r.ID,
		r.Version,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update record %d", r.ID)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if n == 0 {
		return errors.WithDetailf(
			errors.NewConflictError("record %d (%s/%d) changed or vanished since it was read", r.ID, r.OwnerKey, r.SubID),
			"expected version %d", r.Version)
	}

	r.Version++
	r.UpdatedAt = now.UTC()
	return nil
}

// Upsert creates the record when it has no ID yet, otherwise updates it
func (s *Store) Upsert(ctx context.Context, r *Record) error {
	if r.ID == 0 {
		return s.Create(ctx, r)
	}
	return s.Update(ctx, r)
}

// pendingWhere selects records a cycle can act on: submitted jobs still worth
// polling, and unsubmitted records whose artifact is uploaded. Unsubmitted
// records without a file handle wait for the uploader instead.
const pendingWhere = `
	(remote_job_id IS NULL AND remote_file_id IS NOT NULL)
	OR (should_retry = TRUE AND remote_job_id NOT LIKE '%\_invalid' ESCAPE '\')`

// submittedWhere selects only records with a live remote job
const submittedWhere = `
	should_retry = TRUE AND remote_job_id IS NOT NULL
	AND remote_job_id NOT LIKE '%\_invalid' ESCAPE '\'`

// ListPending returns records eligible for advancing. Submitted records come
// first so a backlog of unsubmitted work never crowds out status checks.
func (s *Store) ListPending(ctx context.Context, limit int) ([]*Record, error) {
	return s.listWhere(ctx, pendingWhere, limit)
}

// ListSubmitted returns records with a live remote job, oldest first
func (s *Store) ListSubmitted(ctx context.Context, limit int) ([]*Record, error) {
	return s.listWhere(ctx, submittedWhere, limit)
}

func (s *Store) listWhere(ctx context.Context, where string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = DefaultPendingLimit
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT `+recordColumns+`
		FROM batch_log
		WHERE `+where+`
		ORDER BY CASE WHEN remote_job_id IS NULL THEN 1 ELSE 0 END, id
		LIMIT ?`), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pending records")
	}
	return scanRecords(rows)
}

// MarkInvalid moves a record to TERMINAL_INVALID. The transition is one-way.
func (s *Store) MarkInvalid(ctx context.Context, r *Record) error {
	r.ShouldRetry = TriFalse
	if !strings.HasSuffix(r.RemoteJobID, InvalidSuffix) {
		r.RemoteJobID += InvalidSuffix
	}
	return s.Update(ctx, r)
}

// MarkDone moves a record to TERMINAL_SUCCESS and keeps the output handle
func (s *Store) MarkDone(ctx context.Context, r *Record, outputFileID string) error {
	r.ShouldRetry = TriFalse
	if outputFileID != "" {
		r.OutputFileID = outputFileID
	}
	return s.Update(ctx, r)
}

// ListByOwner returns all records of an owner ordered by sub id
func (s *Store) ListByOwner(ctx context.Context, ownerKey string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+recordColumns+` FROM batch_log WHERE owner_key = ? ORDER BY sub_id, id`),
		ownerKey)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list records of %s", ownerKey)
	}
	return scanRecords(rows)
}

// ListOwners returns every owner key present in the ledger
func (s *Store) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT owner_key FROM batch_log ORDER BY owner_key`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list owners")
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, errors.Wrap(err, "failed to scan owner")
		}
		owners = append(owners, o)
	}
	return owners, errors.Wrap(rows.Err(), "failed to iterate owners")
}

// Summarize counts records per state for every owner
func (s *Store) Summarize(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM batch_log ORDER BY owner_key, sub_id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to summarize ledger")
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	byOwner := map[string]*Summary{}
	for _, r := range records {
		sum, ok := byOwner[r.OwnerKey]
		if !ok {
			sum = &Summary{OwnerKey: r.OwnerKey}
			byOwner[r.OwnerKey] = sum
		}
		sum.Add(r)
	}

	out := make([]Summary, 0, len(byOwner))
	for _, sum := range byOwner {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerKey < out[j].OwnerKey })
	return out, nil
}
