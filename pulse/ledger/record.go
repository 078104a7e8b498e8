package ledger

import (
	"database/sql"
	"strings"
	"time"
)

// Tri is a nullable boolean: unknown until the first upload sets it
type Tri int

const (
	TriUnknown Tri = iota
	TriTrue
	TriFalse
)

// TriOf converts a bool into a known Tri
func TriOf(b bool) Tri {
	if b {
		return TriTrue
	}
	return TriFalse
}

// NullBool renders the Tri for a nullable BOOLEAN column
func (t Tri) NullBool() sql.NullBool {
	switch t {
	case TriTrue:
		return sql.NullBool{Bool: true, Valid: true}
	case TriFalse:
		return sql.NullBool{Bool: false, Valid: true}
	default:
		return sql.NullBool{}
	}
}

// TriFromNull is the inverse of NullBool
func TriFromNull(nb sql.NullBool) Tri {
	if !nb.Valid {
		return TriUnknown
	}
	return TriOf(nb.Bool)
}

func (t Tri) String() string {
	switch t {
	case TriTrue:
		return "true"
	case TriFalse:
		return "false"
	default:
		return "unknown"
	}
}

// State is the derived lifecycle position of a record
type State string

const (
	StateUnsubmitted     State = "UNSUBMITTED"
	StateSubmitted       State = "SUBMITTED"
	StateTerminalSuccess State = "TERMINAL_SUCCESS"
	StateTerminalInvalid State = "TERMINAL_INVALID"
)

// InvalidSuffix tags the remote job id of a permanently invalid record
const InvalidSuffix = "_invalid"

// Record is one sub-batch in the ledger (table batch_log)
type Record struct {
	ID           int64
	OwnerKey     string
	SubID        int
	RemoteJobID  string // empty = never submitted, or cleared as stale
	ArtifactName string
	RemoteFileID string
	OutputFileID string
	ShouldRetry  Tri
	LastStatus   string
	Attempts     int
	Version      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// State derives the lifecycle state from should_retry and the job id tag.
//
//	should_retry=false, id tagged _invalid -> TERMINAL_INVALID
//	should_retry=false                     -> TERMINAL_SUCCESS
//	no remote job id                       -> UNSUBMITTED
//	otherwise                              -> SUBMITTED
func (r *Record) State() State {
	if r.ShouldRetry == TriFalse {
		if strings.HasSuffix(r.RemoteJobID, InvalidSuffix) {
			return StateTerminalInvalid
		}
		return StateTerminalSuccess
	}
	if r.RemoteJobID == "" {
		return StateUnsubmitted
	}
	return StateSubmitted
}

// IsTerminal reports whether the record will never be polled or resubmitted again
func (r *Record) IsTerminal() bool {
	s := r.State()
	return s == StateTerminalSuccess || s == StateTerminalInvalid
}

// Summary counts records per state for one owner key
type Summary struct {
	OwnerKey        string
	Total           int
	Unsubmitted     int
	Submitted       int
	TerminalSuccess int
	TerminalInvalid int
}

// Add counts one record
func (s *Summary) Add(r *Record) {
	s.Total++
	switch r.State() {
	case StateUnsubmitted:
		s.Unsubmitted++
	case StateSubmitted:
		s.Submitted++
	case StateTerminalSuccess:
		s.TerminalSuccess++
	case StateTerminalInvalid:
		s.TerminalInvalid++
	}
}

// Complete reports whether every sub-batch of the owner reached a terminal state
func (s Summary) Complete() bool {
	return s.Total > 0 && s.TerminalSuccess+s.TerminalInvalid == s.Total
}
