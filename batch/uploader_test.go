package batch

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/verdict/ai/openai"
	"github.com/teranos/verdict/pulse/ledger"
)

func writeTestArtifact(t *testing.T, owner string, sub int) string {
	t.Helper()
	path, _, err := WriteArtifact(t.TempDir(), owner, sub, NewTaskBuilder(DefaultConfig()).Build(owner, makeItems(2), 0))
	require.NoError(t, err)
	return path
}

func TestUploaderCreatesRecordAndUploads(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestLedger(t)
	remote := newFakeRemote()
	u := NewUploader(remote, store, nil)
	path := writeTestArtifact(t, "META", 1)

	rec, err := u.EnsureUploaded(ctx, "META", 1, path)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.RemoteFileID)
	assert.Equal(t, ledger.TriTrue, rec.ShouldRetry)
	assert.Equal(t, ledger.StateUnsubmitted, rec.State())
	assert.Equal(t, "batch_tasks_META_1.jsonl", rec.ArtifactName)
	assert.Equal(t, openai.PurposeBatch, remote.files[rec.RemoteFileID].Purpose)

	stored, err := store.Find(ctx, "META", 1)
	require.NoError(t, err)
	assert.Equal(t, rec.RemoteFileID, stored.RemoteFileID)

	t.Run("live handle is reused", func(t *testing.T) {
		again, err := u.EnsureUploaded(ctx, "META", 1, path)
		require.NoError(t, err)
		assert.Equal(t, rec.RemoteFileID, again.RemoteFileID)
		assert.Equal(t, 1, remote.uploads)
	})
}

// The remote dropped the uploaded file; the next cycle must notice and upload again
func TestUploaderReplacesStaleFileHandle(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestLedger(t)
	remote := newFakeRemote()
	u := NewUploader(remote, store, nil)
	path := writeTestArtifact(t, "META", 2)

	// Given a record with an uploaded file
	rec, err := u.EnsureUploaded(ctx, "META", 2, path)
	require.NoError(t, err)
	oldID := rec.RemoteFileID

	// When the remote forgets the file
	remote.forget(oldID)
	rec, err = u.EnsureUploaded(ctx, "META", 2, path)

	// Then a fresh handle replaces the stale one
	require.NoError(t, err)
	assert.NotEmpty(t, rec.RemoteFileID)
	assert.NotEqual(t, oldID, rec.RemoteFileID)
	assert.Equal(t, 2, remote.uploads)

	stored, err := store.Find(ctx, "META", 2)
	require.NoError(t, err)
	assert.Equal(t, rec.RemoteFileID, stored.RemoteFileID)
}

func TestUploaderKeepsHandleOnTransientVerifyError(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestLedger(t)
	remote := newFakeRemote()
	u := NewUploader(remote, store, nil)
	path := writeTestArtifact(t, "META", 1)

	rec, err := u.EnsureUploaded(ctx, "META", 1, path)
	require.NoError(t, err)
	id := rec.RemoteFileID

	remote.retrieveErr = &openai.APIError{StatusCode: http.StatusServiceUnavailable}
	rec, err = u.EnsureUploaded(ctx, "META", 1, path)
	require.NoError(t, err)
	assert.Equal(t, id, rec.RemoteFileID)
	assert.Equal(t, 1, remote.uploads)
}

func TestUploaderPersistsRecordWhenUploadFails(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestLedger(t)
	remote := newFakeRemote()
	remote.uploadErr = &openai.APIError{StatusCode: http.StatusBadGateway, Message: "upstream"}
	u := NewUploader(remote, store, nil)
	path := writeTestArtifact(t, "META", 1)

	_, err := u.EnsureUploaded(ctx, "META", 1, path)
	require.Error(t, err)

	stored, err := store.Find(ctx, "META", 1)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Empty(t, stored.RemoteFileID)
	assert.Equal(t, ledger.StateUnsubmitted, stored.State())

	t.Run("next attempt uploads", func(t *testing.T) {
		remote.uploadErr = nil
		rec, err := u.EnsureUploaded(ctx, "META", 1, path)
		require.NoError(t, err)
		assert.NotEmpty(t, rec.RemoteFileID)
	})
}

func TestUploaderLeavesTerminalRecords(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestLedger(t)
	remote := newFakeRemote()
	u := NewUploader(remote, store, nil)

	rec := &ledger.Record{OwnerKey: "META", SubID: 1, RemoteJobID: "batch-9", RemoteFileID: "file-gone", ShouldRetry: ledger.TriFalse}
	require.NoError(t, store.Create(ctx, rec))

	got, err := u.EnsureUploaded(ctx, "META", 1, filepath.Join(t.TempDir(), "missing.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, "file-gone", got.RemoteFileID)
	assert.Equal(t, 0, remote.uploads)
}

func TestUploaderMissingArtifact(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestLedger(t)
	u := NewUploader(newFakeRemote(), store, nil)

	missing := filepath.Join(t.TempDir(), "batch_tasks_X_1.jsonl")
	_, err := u.EnsureUploaded(ctx, "X", 1, missing)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
