package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/verdict/db"
	"github.com/teranos/verdict/errors"
	testdb "github.com/teranos/verdict/internal/testing"
)

func TestRunOnce_RecordsCompletedRun(t *testing.T) {
	conn := testdb.CreateTestDB(t)
	store := NewRunStore(conn, db.DialectSQLite)

	ticker := NewTicker(func(ctx context.Context, run *CycleRun) error {
		run.Inflight = 4
		run.Admitted = true
		run.Records = 15
		run.Succeeded = 14
		run.Failed = 1
		return nil
	}, store, DefaultTickerConfig(), nil)

	run, err := ticker.RunOnce(context.Background(), ReasonManual)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, run.Status)
	require.NotNil(t, run.CompletedAt)
	require.NotNil(t, run.DurationMs)

	stored, err := store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, stored.Status)
	assert.Equal(t, ReasonManual, stored.Reason)
	assert.Equal(t, 4, stored.Inflight)
	assert.True(t, stored.Admitted)
	assert.Equal(t, 15, stored.Records)
	assert.Equal(t, 14, stored.Succeeded)
	assert.Equal(t, 1, stored.Failed)
	assert.Nil(t, stored.ErrorMessage)
	assert.Same(t, run, ticker.LastRun())
}

func TestRunOnce_RecordsFailure(t *testing.T) {
	conn := testdb.CreateTestDB(t)
	store := NewRunStore(conn, db.DialectSQLite)

	ticker := NewTicker(func(ctx context.Context, run *CycleRun) error {
		return errors.New("ledger unavailable")
	}, store, DefaultTickerConfig(), nil)

	run, err := ticker.RunOnce(context.Background(), ReasonManual)
	require.Error(t, err)
	assert.Equal(t, RunStatusFailed, run.Status)

	stored, err := store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "ledger unavailable")
}

func TestRunOnce_RecoversPanic(t *testing.T) {
	ticker := NewTicker(func(ctx context.Context, run *CycleRun) error {
		panic("nil record")
	}, nil, DefaultTickerConfig(), nil)

	run, err := ticker.RunOnce(context.Background(), ReasonManual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle panicked: nil record")
	assert.Equal(t, RunStatusFailed, run.Status)
}

func TestRunOnce_CancelledContext(t *testing.T) {
	var calls int32
	ticker := NewTicker(func(ctx context.Context, run *CycleRun) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, nil, DefaultTickerConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := ticker.RunOnce(ctx, ReasonManual)
	assert.Nil(t, run)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestTicker_RunsAtStartThenOnInterval(t *testing.T) {
	var mu sync.Mutex
	var reasons []string
	ticker := NewTicker(func(ctx context.Context, run *CycleRun) error {
		mu.Lock()
		reasons = append(reasons, run.Reason)
		mu.Unlock()
		return nil
	}, nil, TickerConfig{Interval: 20 * time.Millisecond, RunAtStart: true}, nil)

	ticker.Start()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reasons) >= 3
	}, 2*time.Second, 5*time.Millisecond)
	ticker.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, ReasonStartup, reasons[0])
	assert.Equal(t, ReasonInterval, reasons[1])

	stats := ticker.GetStats()
	assert.GreaterOrEqual(t, stats["ticks_since_start"].(int64), int64(2))
	assert.Equal(t, false, stats["running"])
}

func TestTicker_CyclesNeverOverlap(t *testing.T) {
	var active, maxActive, total int32
	ticker := NewTicker(func(ctx context.Context, run *CycleRun) error {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		atomic.AddInt32(&total, 1)
		return nil
	}, nil, TickerConfig{Interval: 5 * time.Millisecond, RunAtStart: true}, nil)

	ticker.Start()

	// Manual runs race with the loop
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker.RunOnce(context.Background(), ReasonManual)
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&total) >= 5 }, 2*time.Second, 5*time.Millisecond)
	ticker.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
}

func TestTicker_TriggerRunsEarlyAndCoalesces(t *testing.T) {
	var mu sync.Mutex
	var reasons []string
	release := make(chan struct{})
	started := make(chan struct{}, 10)

	ticker := NewTicker(func(ctx context.Context, run *CycleRun) error {
		started <- struct{}{}
		if run.Reason == ReasonStartup {
			<-release
		}
		mu.Lock()
		reasons = append(reasons, run.Reason)
		mu.Unlock()
		return nil
	}, nil, TickerConfig{Interval: time.Hour, RunAtStart: true}, nil)

	ticker.Start()
	defer ticker.Stop()

	// Startup cycle is blocked; two triggers collapse into one pending run
	<-started
	assert.True(t, ticker.Trigger(ReasonInputs))
	assert.False(t, ticker.Trigger(ReasonInputs))
	close(release)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reasons) == 2
	}, 2*time.Second, 5*time.Millisecond)

	// No third run shows up within the hour-long interval
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{ReasonStartup, ReasonInputs}, reasons)
}

func TestTicker_StopCancelsRunningCycle(t *testing.T) {
	entered := make(chan struct{})
	var sawCancel int32
	ticker := NewTicker(func(ctx context.Context, run *CycleRun) error {
		close(entered)
		<-ctx.Done()
		atomic.StoreInt32(&sawCancel, 1)
		return ctx.Err()
	}, nil, TickerConfig{Interval: time.Hour, RunAtStart: true}, nil)

	ticker.Start()
	<-entered
	ticker.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&sawCancel))
	require.NotNil(t, ticker.LastRun())
	assert.Equal(t, RunStatusFailed, ticker.LastRun().Status)
}
