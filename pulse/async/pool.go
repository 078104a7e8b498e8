package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

// pulseLogger wraps zap.SugaredLogger with special methods for Pulse operations.
// Levels give visual distinction in the console:
// - DEBUG → Starting (✿ opening operations)
// - WARN  → Closing (❀ closing operations)
// - INFO  → Pulse (general pool operations)
type pulseLogger struct {
	*zap.SugaredLogger
}

// Starting logs an Opening (✿) event
func (l pulseLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Debugw("✿ "+msg, keysAndValues...)
}

// Closing logs a Closing (❀) event
func (l pulseLogger) Closing(msg string, keysAndValues ...interface{}) {
	l.Warnw("❀ "+msg, keysAndValues...)
}

// Pulse logs general pool operations
func (l pulseLogger) Pulse(msg string, keysAndValues ...interface{}) {
	l.Infow(msg, keysAndValues...)
}

// PoolConfig contains configuration for the chunked pool
type PoolConfig struct {
	Width int `json:"width"` // Units running at once; each chunk drains before the next starts
}

// DefaultPoolConfig returns the default width of 16
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{Width: 16}
}

// UnitFunc processes unit i. Errors and panics are isolated to the unit.
type UnitFunc func(ctx context.Context, i int) error

// UnitError records the failure of one unit
type UnitError struct {
	Index int
	Err   error
}

// PanicError is returned for a unit that panicked
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("unit panicked: %v", e.Value)
}

// RunSummary reports the outcome of one Run
type RunSummary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int // never started because the context was cancelled
	Errors    []UnitError
	Duration  time.Duration
}

// Pool runs units in fixed-width chunks. A chunk never starts before the
// previous one has fully drained, so at most Width units are in flight.
type Pool struct {
	width  int
	logger pulseLogger
}

// NewPool creates a pool. Width <= 0 falls back to the default.
func NewPool(cfg PoolConfig, logger *zap.SugaredLogger) *Pool {
	if cfg.Width <= 0 {
		cfg.Width = DefaultPoolConfig().Width
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Pool{
		width:  cfg.Width,
		logger: pulseLogger{logger.Named("pool")},
	}
}

// Width returns the chunk width
func (p *Pool) Width() int {
	return p.width
}

// Run executes fn for i in [0, n). Once ctx is cancelled no further chunk is
// launched; units already running finish and the rest count as skipped.
func (p *Pool) Run(ctx context.Context, n int, fn UnitFunc) RunSummary {
	start := time.Now()
	summary := RunSummary{Total: n}
	if n <= 0 {
		return summary
	}

	results := make([]error, n)
	chunks := 0

	for lo := 0; lo < n; lo += p.width {
		if ctx.Err() != nil {
			summary.Skipped = n - lo
			p.logger.Closing("Pool cancelled, remaining units skipped",
				"skipped", summary.Skipped,
				"total", n,
			)
			break
		}

		hi := lo + p.width
		if hi > n {
			hi = n
		}

		p.logger.Starting("Chunk started", "chunk", chunks, "from", lo, "to", hi)

		var wg sync.WaitGroup
		for i := lo; i < hi; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = runUnit(ctx, i, fn)
			}(i)
		}
		wg.Wait()
		chunks++

		for i := lo; i < hi; i++ {
			if results[i] != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, UnitError{Index: i, Err: results[i]})
			} else {
				summary.Succeeded++
			}
		}
	}

	summary.Duration = time.Since(start)
	p.logger.Debugw("Pool run finished",
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"chunks", chunks,
		"duration_ms", summary.Duration.Milliseconds(),
	)
	return summary
}

func runUnit(ctx context.Context, i int, fn UnitFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx, i)
}
