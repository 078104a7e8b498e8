package ledger

import (
	"database/sql"
	"time"

	"github.com/teranos/verdict/errors"
)

// recordColumns is the column order shared by every SELECT on batch_log
const recordColumns = `id, owner_key, sub_id, remote_job_id, artifact_name, remote_file_id,
	output_file_id, should_retry, last_status, attempts, version, created_at, updated_at`

// recordScanArgs holds the nullable intermediates for scanning one row
type recordScanArgs struct {
	RemoteJobID  sql.NullString
	RemoteFileID sql.NullString
	OutputFileID sql.NullString
	ShouldRetry  sql.NullBool
	CreatedAt    string
	UpdatedAt    string
}

func recordScanTargets(r *Record, args *recordScanArgs) []interface{} {
	return []interface{}{
		&r.ID,
		&r.OwnerKey,
		&r.SubID,
		&args.RemoteJobID,
		&r.ArtifactName,
		&args.RemoteFileID,
		&args.OutputFileID,
		&args.ShouldRetry,
		&r.LastStatus,
		&r.Attempts,
		&r.Version,
		&args.CreatedAt,
		&args.UpdatedAt,
	}
}

func processRecordScanArgs(r *Record, args *recordScanArgs) error {
	r.RemoteJobID = args.RemoteJobID.String
	r.RemoteFileID = args.RemoteFileID.String
	r.OutputFileID = args.OutputFileID.String
	r.ShouldRetry = TriFromNull(args.ShouldRetry)

	var err error
	if r.CreatedAt, err = parseTime(args.CreatedAt); err != nil {
		return errors.Wrapf(err, "record %d created_at", r.ID)
	}
	if r.UpdatedAt, err = parseTime(args.UpdatedAt); err != nil {
		return errors.Wrapf(err, "record %d updated_at", r.ID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var r Record
	var args recordScanArgs
	if err := row.Scan(recordScanTargets(&r, &args)...); err != nil {
		return nil, err
	}
	if err := processRecordScanArgs(&r, &args); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan batch_log row")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate batch_log rows")
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Timestamps are stored as RFC3339 text so both dialects read them back identically
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
