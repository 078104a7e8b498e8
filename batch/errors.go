package batch

import (
	"context"
	"strings"

	"github.com/teranos/verdict/ai/openai"
	"github.com/teranos/verdict/db"
	"github.com/teranos/verdict/errors"
)

// ErrorClass represents the classification of a per-record failure
type ErrorClass string

const (
	ClassTransientRemote     ErrorClass = "transient_remote"
	ClassValidationPermanent ErrorClass = "validation_permanent"
	ClassStaleHandle         ErrorClass = "stale_handle"
	ClassLedgerConflict      ErrorClass = "ledger_conflict"
	ClassPartialCollection   ErrorClass = "partial_collection"
	ClassLocal               ErrorClass = "local"
	ClassUnknown             ErrorClass = "unknown"
)

// Sentinels marked onto errors produced by this package
var (
	ErrValidationPermanent = errors.New("remote job failed validation")
	ErrPartialCollection   = errors.New("collection is incomplete")
	ErrStaleHandle         = errors.New("remote handle no longer exists")
	ErrNoFileHandle        = errors.New("record has no remote file id")
)

// ErrorContext provides structured information about a failure
type ErrorContext struct {
	Stage     string     // upload, submit, poll, collect
	Class     ErrorClass // Error classification
	Message   string     // Human-readable message
	Retryable bool       // Will a later cycle retry it?
}

// Classify categorizes a failure. Marked errors are matched first, then remote
// status codes, then message patterns.
func Classify(stage string, err error) ErrorContext {
	ec := ErrorContext{Stage: stage, Class: ClassUnknown}
	if err == nil {
		ec.Message = "unknown error"
		return ec
	}
	ec.Message = err.Error()

	switch {
	case errors.Is(err, ErrValidationPermanent):
		ec.Class = ClassValidationPermanent
	case errors.Is(err, ErrPartialCollection):
		ec.Class = ClassPartialCollection
		ec.Retryable = true
	case errors.Is(err, ErrStaleHandle), openai.IsNotFound(err):
		ec.Class = ClassStaleHandle
		ec.Retryable = true
	case errors.IsConflictError(err):
		ec.Class = ClassLedgerConflict
		ec.Retryable = true
	case db.IsDatabaseClosed(err):
		// shutdown interrupted the cycle; the next run picks the record up again
		ec.Class = ClassLocal
		ec.Retryable = true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		ec.Class = ClassTransientRemote
		ec.Retryable = true
	case openai.IsRetryable(err), errors.IsServiceUnavailableError(err):
		ec.Class = ClassTransientRemote
		ec.Retryable = true
	default:
		ec.Class, ec.Retryable = classifyMessage(strings.ToLower(ec.Message))
	}
	return ec
}

func classifyMessage(msg string) (ErrorClass, bool) {
	switch {
	case strings.Contains(msg, "no such file") || strings.Contains(msg, "permission denied"):
		return ClassLocal, false
	case strings.Contains(msg, "invalid_type") || strings.Contains(msg, "validation"):
		return ClassValidationPermanent, false
	case strings.Contains(msg, "network") || strings.Contains(msg, "connection") || strings.Contains(msg, "timeout"):
		return ClassTransientRemote, true
	case strings.Contains(msg, "database") || strings.Contains(msg, "sql"):
		return ClassLocal, true
	default:
		// Anything else is retried by the next cycle
		return ClassUnknown, true
	}
}
