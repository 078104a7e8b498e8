package schedule

import "time"

// CycleRun records one polling cycle
//
// Each time the ticker fires (or is triggered) a CycleRun is created to track:
// - Timing (started_at, completed_at, duration)
// - Admission (remote in-flight count, whether new submissions were admitted)
// - Outcome (records advanced, succeeded, failed, error)
type CycleRun struct {
	ID     string `json:"id"`
	Reason string `json:"reason"` // "startup", "interval", "inputs", "manual"
	Status string `json:"status"` // "running", "completed", "failed"

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  *int64     `json:"duration_ms,omitempty"`

	Inflight  int  `json:"inflight"`
	Admitted  bool `json:"admitted"`
	Records   int  `json:"records"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`

	ErrorMessage *string `json:"error_message,omitempty"`
}

// Run status constants
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Trigger reasons
const (
	ReasonStartup  = "startup"
	ReasonInterval = "interval"
	ReasonInputs   = "inputs"
	ReasonManual   = "manual"
)

// Duration returns the run duration, or zero while running
func (r *CycleRun) Duration() time.Duration {
	if r.DurationMs == nil {
		return 0
	}
	return time.Duration(*r.DurationMs) * time.Millisecond
}
