package batch

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteArtifact(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "batches")
	b := NewTaskBuilder(DefaultConfig())
	tasks := b.Build("AMZN", makeItems(3), 0)

	path, wrote, err := WriteArtifact(dir, "AMZN", 1, tasks)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, filepath.Join(dir, "batch_tasks_AMZN_1.jsonl"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var got []Task
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var task Task
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &task))
		got = append(got, task)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, tasks, got)

	t.Run("existing artifact is kept", func(t *testing.T) {
		before, err := os.ReadFile(path)
		require.NoError(t, err)

		other := b.Build("AMZN", makeItems(1), 50)
		_, wrote, err := WriteArtifact(dir, "AMZN", 1, other)
		require.NoError(t, err)
		assert.False(t, wrote)

		after, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("no temp files left behind", func(t *testing.T) {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "batch_tasks_AMZN_1.jsonl", entries[0].Name())
	})
}

func TestOutputFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"output_A_10.jsonl",
		"output_A_2.jsonl",
		"output_A_1.jsonl",
		"output_A_B_1.jsonl", // another owner
		"output_AB_3.jsonl",
		"output_A_x.jsonl",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	files, err := OutputFiles(dir, "A")
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	assert.Equal(t, []string{"output_A_1.jsonl", "output_A_2.jsonl", "output_A_10.jsonl"}, names)

	files, err = OutputFiles(dir, "A_B")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "output_A_B_1.jsonl", filepath.Base(files[0]))
}

func TestSubIDFromName(t *testing.T) {
	assert.Equal(t, 12, subIDFromName("/x/output_A_12.jsonl"))
	assert.Equal(t, 1, subIDFromName("batch_tasks_A_B_1.jsonl"))
	assert.Equal(t, -1, subIDFromName("output_A.jsonl"))
}
