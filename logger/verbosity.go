package logger

import "go.uber.org/zap/zapcore"

// Verbosity level constants for CLI flag counts (-v, -vv).
const (
	VerbosityDefault = 0 // No flags: lifecycle, cycle summaries, warnings
	VerbosityInfo    = 1 // -v: + per-record outcomes
	VerbosityDebug   = 2 // -vv: + remote calls, ledger statements, skipped work
)

// VerbosityToLevel maps verbosity flags to zap log levels.
//
// Mapping:
//
//	0 (none) -> InfoLevel
//	1 (-v)   -> InfoLevel
//	2+ (-vv) -> DebugLevel
func VerbosityToLevel(verbosity int) zapcore.Level {
	if verbosity >= VerbosityDebug {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// LevelName returns a human-readable name for a verbosity level
func LevelName(verbosity int) string {
	switch verbosity {
	case VerbosityDefault:
		return "Default"
	case VerbosityInfo:
		return "Info (-v)"
	default:
		return "Debug (-vv)"
	}
}
