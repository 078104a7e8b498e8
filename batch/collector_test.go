package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/verdict/ai/openai"
	"github.com/teranos/verdict/errors"
	"github.com/teranos/verdict/pulse/async"
	"github.com/teranos/verdict/pulse/ledger"
)

type collectorFixture struct {
	ctx       context.Context
	cfg       Config
	store     *ledger.Store
	remote    *fakeRemote
	collector *Collector
}

func newCollectorFixture(t *testing.T, requireComplete bool) *collectorFixture {
	t.Helper()
	cfg := testConfig(t)
	cfg.RequireComplete = requireComplete
	store, _ := newTestLedger(t)
	remote := newFakeRemote()
	v, err := NewResultValidator()
	require.NoError(t, err)
	pool := async.NewPool(async.PoolConfig{Width: 2}, nil)
	return &collectorFixture{
		ctx:       context.Background(),
		cfg:       cfg,
		store:     store,
		remote:    remote,
		collector: NewCollector(cfg, remote, store, pool, v, nil),
	}
}

// doneRecord stores a TERMINAL_SUCCESS record whose remote output answers items
func (f *collectorFixture) doneRecord(t *testing.T, owner string, sub int, items []RequestItem, offset int, keepOutputID bool) *ledger.Record {
	t.Helper()
	tasks := NewTaskBuilder(f.cfg).Build(owner, items, offset)
	path, _, err := WriteArtifact(f.cfg.ArtifactsDir, owner, sub, tasks)
	require.NoError(t, err)
	file, err := f.remote.UploadFile(f.ctx, filepath.Base(path), openArtifact(t, path), openai.PurposeBatch)
	require.NoError(t, err)
	job, err := f.remote.CreateBatch(f.ctx, openai.CreateBatchRequest{InputFileID: file.ID})
	require.NoError(t, err)
	f.remote.complete(t, job.ID, func(task Task) string { return answer(DecisionUnknown, "no signal") })

	rec := &ledger.Record{OwnerKey: owner, SubID: sub, RemoteFileID: file.ID, RemoteJobID: job.ID, ShouldRetry: ledger.TriTrue}
	require.NoError(t, f.store.Create(f.ctx, rec))
	outputID := ""
	if keepOutputID {
		outputID = f.remote.batches[job.ID].OutputFileID
	}
	require.NoError(t, f.store.MarkDone(f.ctx, rec, outputID))
	return rec
}

func openArtifact(t *testing.T, path string) *os.File {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { fh.Close() })
	return fh
}

func TestCollectRequireCompleteRefusesPartial(t *testing.T) {
	f := newCollectorFixture(t, true)
	items := writeInputs(t, f.cfg.InputsDir, "TSM", 3)
	f.doneRecord(t, "TSM", 1, items[:2], 0, true)
	require.NoError(t, f.store.Create(f.ctx, &ledger.Record{OwnerKey: "TSM", SubID: 2, RemoteJobID: "batch-open", ShouldRetry: ledger.TriTrue}))

	sum, err := f.collector.CollectOwner(f.ctx, "TSM")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPartialCollection))
	assert.Equal(t, ClassPartialCollection, Classify("collect", err).Class)
	assert.True(t, sum.Partial)
	assert.Equal(t, 1, sum.Ledger.Submitted)

	_, statErr := os.Stat(filepath.Join(f.cfg.DatasetsDir, DatasetName("TSM")))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCollectPartialProceeds(t *testing.T) {
	f := newCollectorFixture(t, false)
	items := writeInputs(t, f.cfg.InputsDir, "TSM", 3)
	f.doneRecord(t, "TSM", 1, items[:2], 0, true)
	require.NoError(t, f.store.Create(f.ctx, &ledger.Record{OwnerKey: "TSM", SubID: 2, RemoteJobID: "batch-open", ShouldRetry: ledger.TriTrue}))

	sum, err := f.collector.CollectOwner(f.ctx, "TSM")
	require.NoError(t, err)
	assert.True(t, sum.Partial)
	assert.Equal(t, 2, sum.Stats.Matched)
	assert.Equal(t, 1, sum.Stats.UnmatchedRequests)
	assert.Len(t, readLines(t, sum.DatasetPath), 2)
}

func TestCollectFallsBackToRemoteJobForOutput(t *testing.T) {
	f := newCollectorFixture(t, false)
	items := writeInputs(t, f.cfg.InputsDir, "ASML", 2)
	f.doneRecord(t, "ASML", 1, items, 0, false)

	sum, err := f.collector.CollectOwner(f.ctx, "ASML")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Downloaded)
	assert.Equal(t, 2, sum.Stats.Matched)
	assert.FileExists(t, filepath.Join(f.cfg.OutputsDir, OutputName("ASML", 1)))
}

func TestCollectReusesLocalOutputs(t *testing.T) {
	f := newCollectorFixture(t, false)
	items := writeInputs(t, f.cfg.InputsDir, "ASML", 2)
	rec := f.doneRecord(t, "ASML", 1, items, 0, true)

	_, err := f.collector.CollectOwner(f.ctx, "ASML")
	require.NoError(t, err)

	// The remote output expires; the local copy still serves
	f.remote.forget(rec.OutputFileID)
	sum, err := f.collector.CollectOwner(f.ctx, "ASML")
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Downloaded)
	assert.Equal(t, 0, sum.Missing)
	assert.Equal(t, 2, sum.Stats.Matched)
}

func TestCollectCountsMissingOutputs(t *testing.T) {
	f := newCollectorFixture(t, false)
	items := writeInputs(t, f.cfg.InputsDir, "ASML", 2)
	rec := f.doneRecord(t, "ASML", 1, items, 0, true)
	f.remote.forget(rec.OutputFileID)

	sum, err := f.collector.CollectOwner(f.ctx, "ASML")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Missing)
	assert.Equal(t, 0, sum.Stats.Matched)
	assert.Equal(t, 2, sum.Stats.UnmatchedRequests)
}

func TestCollectAllOwners(t *testing.T) {
	f := newCollectorFixture(t, false)
	a := writeInputs(t, f.cfg.InputsDir, "A", 1)
	b := writeInputs(t, f.cfg.InputsDir, "B", 1)
	f.doneRecord(t, "A", 1, a, 0, true)
	f.doneRecord(t, "B", 1, b, 0, true)

	sums, err := f.collector.Collect(f.ctx, nil)
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, "A", sums[0].OwnerKey)
	assert.Equal(t, "B", sums[1].OwnerKey)
}
