package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/verdict/errors"
	"github.com/teranos/verdict/internal/util"
	"github.com/teranos/verdict/logger"
	"github.com/teranos/verdict/pulse/async"
	"github.com/teranos/verdict/sym"
)

// CycleFunc runs one polling cycle and fills in the run's counters
type CycleFunc func(ctx context.Context, run *CycleRun) error

// Ticker runs cycles at a fixed interval, plus on demand.
// Cycles never overlap: a tick or trigger arriving mid-cycle waits for it to finish.
type Ticker struct {
	fn         CycleFunc
	store      *RunStore // optional
	interval   time.Duration
	runAtStart bool
	trigger    chan string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger   *zap.SugaredLogger
	pulseLog *zap.SugaredLogger // Logger with Pulse symbol pre-attached

	cycleMu sync.Mutex // held for the duration of a cycle

	mu              sync.Mutex
	lastTickAt      time.Time
	ticksSinceStart int64
	lastRun         *CycleRun
	running         bool
}

// TickerConfig contains configuration for the ticker
type TickerConfig struct {
	Interval   time.Duration // Time between cycles (default: 5 minutes)
	RunAtStart bool          // Run one cycle immediately on Start
}

// DefaultTickerConfig returns sensible defaults
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{
		Interval:   5 * time.Minute,
		RunAtStart: true,
	}
}

// NewTicker creates a ticker that calls fn every interval
func NewTicker(fn CycleFunc, store *RunStore, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	return NewTickerWithContext(context.Background(), fn, store, cfg, log)
}

// NewTickerWithContext creates a ticker with a parent context
func NewTickerWithContext(ctx context.Context, fn CycleFunc, store *RunStore, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickerConfig().Interval
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	tickerCtx, cancel := context.WithCancel(ctx)

	return &Ticker{
		fn:         fn,
		store:      store,
		interval:   cfg.Interval,
		runAtStart: cfg.RunAtStart,
		trigger:    make(chan string, 1),
		ctx:        tickerCtx,
		cancel:     cancel,
		logger:     log,
		pulseLog:   logger.AddPulseSymbol(log),
	}
}

// Start begins the ticker loop
func (t *Ticker) Start() {
	t.wg.Add(1)
	go t.run()
	t.pulseLog.Infow("Pulse ticker started", "interval", t.interval, "run_at_start", t.runAtStart)
}

// Stop cancels the current cycle and waits for the loop to exit
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	logger.AddPulseCloseSymbol(t.logger).Infow("Pulse ticker stopped", "ticks", t.ticks())
}

// Trigger asks for an extra cycle as soon as the current one (if any) ends.
// Triggers arriving while one is already pending are coalesced.
func (t *Ticker) Trigger(reason string) bool {
	select {
	case t.trigger <- reason:
		return true
	default:
		t.pulseLog.Debugw("Trigger coalesced with pending trigger", "reason", reason)
		return false
	}
}

// run is the main ticker loop
func (t *Ticker) run() {
	defer t.wg.Done()

	if t.runAtStart {
		t.RunOnce(t.ctx, ReasonStartup)
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case tickTime := <-ticker.C:
			t.mu.Lock()
			t.lastTickAt = tickTime
			t.ticksSinceStart++
			t.mu.Unlock()

			t.RunOnce(t.ctx, ReasonInterval)
		case reason := <-t.trigger:
			t.RunOnce(t.ctx, reason)
		}
	}
}

// RunOnce executes one cycle synchronously, recording it in the run store
func (t *Ticker) RunOnce(ctx context.Context, reason string) (*CycleRun, error) {
	t.cycleMu.Lock()
	defer t.cycleMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	startTime := time.Now()
	run := &CycleRun{
		ID:        uuid.NewString(),
		Reason:    reason,
		Status:    RunStatusRunning,
		StartedAt: startTime,
	}

	t.setRunning(true)
	defer t.setRunning(false)

	if t.store != nil {
		if err := t.store.CreateRun(ctx, run); err != nil {
			t.pulseLog.Errorw("Failed to create cycle run record", "run_id", run.ID, "error", err)
			// Continue anyway - run history is nice-to-have
		}
	}

	err := t.safeCall(ctx, run)

	completedAt := time.Now()
	run.CompletedAt = &completedAt
	run.DurationMs = util.Ptr(completedAt.Sub(startTime).Milliseconds())

	if err != nil {
		run.Status = RunStatusFailed
		run.ErrorMessage = util.Ptr(err.Error())
		t.pulseLog.Errorw("Pulse cycle FAILED",
			"run_id", run.ID,
			"run_short", run.ID[:8],
			"reason", reason,
			"duration_ms", *run.DurationMs,
			"error", err)
	} else {
		run.Status = RunStatusCompleted
		metrics := async.CurrentSystemMetrics()
		t.pulseLog.Infow(t.summary(run, metrics),
			"run_id", run.ID,
			"run_short", run.ID[:8],
			"reason", reason,
			"duration_ms", *run.DurationMs,
			"next_in", t.interval)
	}

	if t.store != nil {
		// Record the outcome even when the cycle context was cancelled
		if uerr := t.store.UpdateRun(context.WithoutCancel(ctx), run); uerr != nil {
			t.pulseLog.Errorw("Failed to update cycle run record", "run_id", run.ID, "error", uerr)
		}
	}

	t.mu.Lock()
	t.lastRun = run
	t.mu.Unlock()

	return run, err
}

// safeCall runs the cycle function, converting a panic into an error
func (t *Ticker) safeCall(ctx context.Context, run *CycleRun) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("cycle panicked: %v", r)
		}
	}()
	return t.fn(ctx, run)
}

// summary builds the one-line cycle message, with a pulse indicator per in-flight job
func (t *Ticker) summary(run *CycleRun, metrics async.SystemMetrics) string {
	indicator := ""
	if run.Inflight > 0 {
		n := run.Inflight
		if n > 20 {
			n = 20
		}
		indicator = strings.Repeat(sym.Pulse, n) + " "
	}
	admitted := "admitted"
	if !run.Admitted {
		admitted = "not admitted"
	}
	msg := fmt.Sprintf("%sPulse cycle OK - %d records (%d ok, %d failed), %d in flight, %s",
		indicator, run.Records, run.Succeeded, run.Failed, run.Inflight, admitted)
	if metrics.MemoryTotalGB > 0 {
		msg += fmt.Sprintf(" │ Mem: %.1f/%.1fGB (%.0f%%)",
			metrics.MemoryUsedGB, metrics.MemoryTotalGB, metrics.MemoryPercent)
	}
	return msg
}

func (t *Ticker) setRunning(v bool) {
	t.mu.Lock()
	t.running = v
	t.mu.Unlock()
}

func (t *Ticker) ticks() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticksSinceStart
}

// LastRun returns the most recently finished cycle, if any
func (t *Ticker) LastRun() *CycleRun {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastRun
}

// GetStats returns ticker statistics
func (t *Ticker) GetStats() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := map[string]interface{}{
		"last_tick_at":      t.lastTickAt,
		"ticks_since_start": t.ticksSinceStart,
		"interval":          t.interval,
		"running":           t.running,
	}
	if t.lastRun != nil {
		stats["last_run_id"] = t.lastRun.ID
		stats["last_run_status"] = t.lastRun.Status
	}
	return stats
}
