package async

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/verdict/errors"
)

func TestPoolRunsEveryUnit(t *testing.T) {
	pool := NewPool(PoolConfig{Width: 4}, zaptest.NewLogger(t).Sugar())

	var mu sync.Mutex
	seen := map[int]bool{}
	summary := pool.Run(context.Background(), 10, func(ctx context.Context, i int) error {
		mu.Lock()
		seen[i] = true
		mu.Unlock()
		return nil
	})

	assert.Equal(t, 10, summary.Total)
	assert.Equal(t, 10, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	assert.Len(t, seen, 10)
}

func TestPoolChunksDrainBeforeNextStarts(t *testing.T) {
	const width = 3
	pool := NewPool(PoolConfig{Width: width}, nil)

	var inflight, maxInflight int32
	var mu sync.Mutex
	finished := map[int]bool{}
	var violations int32

	pool.Run(context.Background(), 10, func(ctx context.Context, i int) error {
		cur := atomic.AddInt32(&inflight, 1)
		for {
			prev := atomic.LoadInt32(&maxInflight)
			if cur <= prev || atomic.CompareAndSwapInt32(&maxInflight, prev, cur) {
				break
			}
		}

		// Every unit of earlier chunks must be done before this one starts
		mu.Lock()
		for j := 0; j < (i/width)*width; j++ {
			if !finished[j] {
				atomic.AddInt32(&violations, 1)
			}
		}
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		finished[i] = true
		mu.Unlock()
		atomic.AddInt32(&inflight, -1)
		return nil
	})

	assert.LessOrEqual(t, int(maxInflight), width)
	assert.Zero(t, violations)
}

func TestPoolIsolatesFailures(t *testing.T) {
	pool := NewPool(PoolConfig{Width: 2}, nil)

	summary := pool.Run(context.Background(), 5, func(ctx context.Context, i int) error {
		switch i {
		case 1:
			return errors.New("remote unavailable")
		case 3:
			panic("boom")
		}
		return nil
	})

	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)
	require.Len(t, summary.Errors, 2)
	assert.Equal(t, 1, summary.Errors[0].Index)
	assert.Equal(t, 3, summary.Errors[1].Index)

	var pe *PanicError
	require.True(t, errors.As(summary.Errors[1].Err, &pe))
	assert.Equal(t, "boom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
}

func TestPoolStopsLaunchingOnCancel(t *testing.T) {
	pool := NewPool(PoolConfig{Width: 2}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	var ran int32
	summary := pool.Run(ctx, 6, func(ctx context.Context, i int) error {
		atomic.AddInt32(&ran, 1)
		if i == 0 {
			cancel()
		}
		return nil
	})

	assert.Equal(t, int32(2), ran, "only the first chunk runs")
	assert.Equal(t, 4, summary.Skipped)
	assert.Equal(t, 2, summary.Succeeded)
}

func TestPoolDefaults(t *testing.T) {
	assert.Equal(t, 16, NewPool(PoolConfig{}, nil).Width())

	summary := NewPool(DefaultPoolConfig(), nil).Run(context.Background(), 0, func(context.Context, int) error {
		t.Fatal("no unit expected")
		return nil
	})
	assert.Zero(t, summary.Total)
}

func TestCurrentSystemMetrics(t *testing.T) {
	orig := getMemoryStats
	t.Cleanup(func() { getMemoryStats = orig })

	getMemoryStats = func() (uint64, uint64, error) {
		return 8 << 30, 2 << 30, nil
	}
	m := CurrentSystemMetrics()
	assert.InDelta(t, 8.0, m.MemoryTotalGB, 0.001)
	assert.InDelta(t, 6.0, m.MemoryUsedGB, 0.001)
	assert.InDelta(t, 75.0, m.MemoryPercent, 0.001)

	getMemoryStats = func() (uint64, uint64, error) { return 0, 0, errors.New("unsupported") }
	assert.Equal(t, SystemMetrics{}, CurrentSystemMetrics())
}
