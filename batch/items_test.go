package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/verdict/errors"
)

func TestReadInputs(t *testing.T) {
	dir := t.TempDir()
	path := InputPath(dir, "TSLA")
	content := `{"hash_id":"a1","date":"2024-01-02","text":"Deliveries up"}

{"date":"2024-01-03","title":"  Recall announced  "}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	items, err := ReadInputs(path, "TSLA")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, RequestItem{HashID: "a1", Date: "2024-01-02", Text: "Deliveries up", OwnerKey: "TSLA"}, items[0])

	// title is accepted for text, and a missing hash is derived
	assert.Equal(t, "Recall announced", items[1].Text)
	assert.Equal(t, HashFor("2024-01-03", "Recall announced"), items[1].HashID)
	assert.Len(t, items[1].HashID, 64)
}

func TestReadInputsRejectsBadLine(t *testing.T) {
	dir := t.TempDir()
	path := InputPath(dir, "X")
	require.NoError(t, os.WriteFile(path, []byte("{\"text\":\"ok\"}\nnot json\n"), 0644))

	_, err := ReadInputs(path, "X")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid input line 2")
}

func TestReadInputsRejectsDashedHashID(t *testing.T) {
	// Given an input whose hash_id is a UUID
	dir := t.TempDir()
	path := InputPath(dir, "UUID")
	line := `{"hash_id":"0b6e4a1c-5d2f-4f7e-9a51-3c2d1e0f9a88","date":"2024-01-02","text":"t"}`
	require.NoError(t, os.WriteFile(path, []byte(`{"hash_id":"abc123","text":"ok"}`+"\n"+line+"\n"), 0644))

	// When read
	_, err := ReadInputs(path, "UUID")

	// Then the line is rejected before any request carries the key
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid input line 2")
	assert.Contains(t, errors.FlattenHints(err), "hash_id")

	t.Run("derived keys never contain dashes", func(t *testing.T) {
		id := CustomID("BRK-B", 3, HashFor("2024-01-02", "some text"))
		assert.Equal(t, HashFor("2024-01-02", "some text"), CorrelationKeyFromCustomID(id))
	})
}

func TestReadInputsMissingFile(t *testing.T) {
	_, err := ReadInputs(filepath.Join(t.TempDir(), "none.jsonl"), "none")
	require.Error(t, err)
}

func TestHashForIsStable(t *testing.T) {
	assert.Equal(t, HashFor("d", "t"), HashFor("d", "t"))
	assert.NotEqual(t, HashFor("d", "t"), HashFor("d", "t2"))
}

func TestListInputOwners(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"MSFT.jsonl", "AAPL.jsonl", ".hidden.jsonl", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}\n"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.jsonl"), 0755))

	owners, err := ListInputOwners(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, owners)
}

func TestIndexByHashKeepsFirst(t *testing.T) {
	idx := indexByHash([]RequestItem{
		{HashID: "h", Text: "first"},
		{HashID: "h", Text: "second"},
	})
	require.Len(t, idx, 1)
	assert.Equal(t, "first", idx["h"].Text)
}
