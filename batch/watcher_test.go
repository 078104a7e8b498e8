package batch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputWatcherDebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w, err := NewInputWatcher(dir, 200*time.Millisecond, func() { calls.Add(1) }, nil)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	// Several writes in a burst collapse into one trigger
	path := filepath.Join(dir, "AAPL.jsonl")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0644))
		time.Sleep(10 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestInputWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w, err := NewInputWatcher(dir, 50*time.Millisecond, func() { calls.Add(1) }, nil)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".AAPL.jsonl.swp"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.jsonl"), []byte("x"), 0644))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestInputWatcherStopWithoutStart(t *testing.T) {
	w, err := NewInputWatcher(t.TempDir(), 0, func() {}, nil)
	require.NoError(t, err)
	assert.NoError(t, w.Stop())
}

func TestInputWatcherMissingDir(t *testing.T) {
	_, err := NewInputWatcher(filepath.Join(t.TempDir(), "nope"), 0, func() {}, nil)
	assert.Error(t, err)
}

func TestIsInputFile(t *testing.T) {
	assert.True(t, isInputFile("/data/inputs/AAPL.jsonl"))
	assert.False(t, isInputFile("/data/inputs/.AAPL.jsonl"))
	assert.False(t, isInputFile("/data/inputs/AAPL.jsonl.tmp"))
	assert.False(t, isInputFile("/data/inputs/readme.md"))
}
