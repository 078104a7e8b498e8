package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging.
// Use these constants instead of raw strings so logs stay queryable.
const (
	// Ledger identity
	FieldOwnerKey    = "owner_key"
	FieldSubID       = "sub_id"
	FieldRecordID    = "record_id"
	FieldRemoteJobID = "remote_job_id"
	FieldFileID      = "remote_file_id"
	FieldCycleID     = "cycle_id"

	// Components
	FieldComponent = "component"

	// Operations
	FieldOperation = "operation"
	FieldOutcome   = "outcome"
	FieldReason    = "reason"
	FieldPath      = "path"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError      = "error"
	FieldErrorClass = "error_class"

	// Counts
	FieldCount     = "count"
	FieldInflight  = "inflight"
	FieldSucceeded = "succeeded"
	FieldFailed    = "failed"

	// Status
	FieldStatus = "status"
	FieldState  = "state"

	FieldSymbol = "symbol" // log marker symbol (꩜, ✿, ❀, ⊔)
)

// Context keys for propagating logging context
type contextKey string

const (
	cycleIDKey   contextKey = "logger_cycle_id"
	componentKey contextKey = "logger_component"
)

// WithCycleID adds a polling cycle ID to the context for logging
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, cycleIDKey, cycleID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if cycleID, ok := ctx.Value(cycleIDKey).(string); ok && cycleID != "" {
		fields = append(fields, FieldCycleID, cycleID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// FromContext returns l with any fields carried by ctx attached.
func FromContext(ctx context.Context, l *zap.SugaredLogger) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	poller := batch.NewPoller(remote, store, cfg, logger.ComponentLogger("verdict.poller"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
