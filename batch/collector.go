package batch

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/verdict/am"
	"github.com/teranos/verdict/errors"
	"github.com/teranos/verdict/logger"
	"github.com/teranos/verdict/pulse/async"
	"github.com/teranos/verdict/pulse/ledger"
)

// DatasetSink receives each reassembled dataset after it is written locally
type DatasetSink interface {
	Name() string
	Publish(ctx context.Context, owner, datasetPath string, rows []DatasetRow) error
}

// CollectSummary reports one owner's collection
type CollectSummary struct {
	OwnerKey    string
	Ledger      ledger.Summary
	Downloaded  int
	Missing     int // TERMINAL_SUCCESS records whose output could not be fetched
	Stats       ReassembleStats
	DatasetPath string
	Partial     bool
	SinkErrors  map[string]error
}

// Collector fetches remote outputs and reassembles them into datasets
type Collector struct {
	cfg       Config
	remote    Remote
	ledger    Ledger
	pool      *async.Pool
	validator *ResultValidator
	sinks     []DatasetSink
	logger    *zap.SugaredLogger
}

// NewCollector creates a collector
func NewCollector(cfg Config, remote Remote, store Ledger, pool *async.Pool, validator *ResultValidator, log *zap.SugaredLogger) *Collector {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Collector{
		cfg:       cfg,
		remote:    remote,
		ledger:    store,
		pool:      pool,
		validator: validator,
		logger:    logger.AddAxSymbol(log),
	}
}

// Collect runs CollectOwner for each owner (all ledger owners when empty).
// Owners fail independently; the first error is returned after all ran.
func (c *Collector) Collect(ctx context.Context, owners []string) ([]CollectSummary, error) {
	if len(owners) == 0 {
		var err error
		if owners, err = c.ledger.ListOwners(ctx); err != nil {
			return nil, err
		}
	}

	var firstErr error
	out := make([]CollectSummary, 0, len(owners))
	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		sum, err := c.CollectOwner(ctx, owner)
		out = append(out, sum)
		if err != nil {
			c.logger.Warnw("Collection failed for owner",
				logger.FieldOwnerKey, owner,
				logger.FieldErrorClass, Classify("collect", err).Class,
				logger.FieldError, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return out, firstErr
}

// CollectOwner downloads missing outputs for the owner's completed records,
// reassembles them with the owner's inputs and writes the dataset.
func (c *Collector) CollectOwner(ctx context.Context, owner string) (CollectSummary, error) {
	sum := CollectSummary{OwnerKey: owner, Ledger: ledger.Summary{OwnerKey: owner}}

	records, err := c.ledger.ListByOwner(ctx, owner)
	if err != nil {
		return sum, err
	}
	var done []*ledger.Record
	for _, r := range records {
		sum.Ledger.Add(r)
		if r.State() == ledger.StateTerminalSuccess {
			done = append(done, r)
		}
	}
	sum.Partial = !sum.Ledger.Complete()

	if sum.Partial && c.cfg.RequireComplete {
		err := errors.Mark(errors.Newf("%s has %d of %d sub-batches still open",
			owner, sum.Ledger.Unsubmitted+sum.Ledger.Submitted, sum.Ledger.Total), ErrPartialCollection)
		return sum, errors.WithHint(err, "wait for more cycles or set collect.require_complete = false")
	}

	if err := os.MkdirAll(c.cfg.OutputsDir, am.DefaultDirPermissions); err != nil {
		return sum, errors.Wrapf(err, "failed to create %s", c.cfg.OutputsDir)
	}

	var mu sync.Mutex
	run := c.pool.Run(ctx, len(done), func(ctx context.Context, i int) error {
		downloaded, err := c.fetchOutput(ctx, done[i])
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			sum.Missing++
			return err
		}
		if downloaded {
			sum.Downloaded++
		}
		return nil
	})
	for _, ue := range run.Errors {
		c.logger.Warnw("Output not fetched",
			append(recordFields(done[ue.Index]), logger.FieldError, ue.Err)...)
	}

	items, err := ReadInputs(InputPath(c.cfg.InputsDir, owner), owner)
	if err != nil {
		return sum, err
	}
	files, err := OutputFiles(c.cfg.OutputsDir, owner)
	if err != nil {
		return sum, err
	}
	rows, stats, err := Reassemble(owner, files, items, c.validator)
	sum.Stats = stats
	if err != nil {
		return sum, err
	}

	if err := os.MkdirAll(c.cfg.DatasetsDir, am.DefaultDirPermissions); err != nil {
		return sum, errors.Wrapf(err, "failed to create %s", c.cfg.DatasetsDir)
	}
	sum.DatasetPath = filepath.Join(c.cfg.DatasetsDir, DatasetName(owner))
	if err := WriteDataset(sum.DatasetPath, rows); err != nil {
		return sum, err
	}

	fields := []interface{}{
		logger.FieldOwnerKey, owner,
		logger.FieldPath, sum.DatasetPath,
		"rows", len(rows),
		"files", stats.Files,
		"downloaded", sum.Downloaded,
		"unmatched_requests", stats.UnmatchedRequests,
		"duplicate_requests", stats.DuplicateRequests,
		"unmatched_results", stats.UnmatchedResults,
		"invalid_results", stats.InvalidResults,
		"failed_requests", stats.FailedRequests,
	}
	if sum.Partial {
		c.logger.Warnw("Dataset written from partial results",
			append(fields, "open_sub_batches", sum.Ledger.Unsubmitted+sum.Ledger.Submitted,
				"invalid_sub_batches", sum.Ledger.TerminalInvalid)...)
	} else {
		c.logger.Infow("Dataset written", fields...)
	}

	for _, sink := range c.sinks {
		if err := sink.Publish(ctx, owner, sum.DatasetPath, rows); err != nil {
			if sum.SinkErrors == nil {
				sum.SinkErrors = map[string]error{}
			}
			sum.SinkErrors[sink.Name()] = err
			c.logger.Warnw("Dataset sink failed", logger.FieldOwnerKey, owner, "sink", sink.Name(), logger.FieldError, err)
		}
	}
	return sum, nil
}

// fetchOutput downloads one record's output unless a local copy exists
func (c *Collector) fetchOutput(ctx context.Context, rec *ledger.Record) (bool, error) {
	path := filepath.Join(c.cfg.OutputsDir, OutputName(rec.OwnerKey, rec.SubID))
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	fileID := rec.OutputFileID
	if fileID == "" {
		// Records completed before the output handle was tracked
		job, err := c.remote.RetrieveBatch(ctx, rec.RemoteJobID)
		if err != nil {
			return false, err
		}
		if job.OutputFileID == "" {
			return false, errors.Newf("remote job %s completed without an output file", rec.RemoteJobID)
		}
		fileID = job.OutputFileID
	}

	body, err := c.remote.FileContent(ctx, fileID)
	if err != nil {
		return false, err
	}
	defer body.Close()

	err = writeFileAtomic(path, func(w *bufio.Writer) error {
		if _, err := io.Copy(w, body); err != nil {
			return errors.Wrapf(err, "failed to download %s", fileID)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	c.logger.Debugw("Downloaded output", append(recordFields(rec), logger.FieldPath, path)...)
	return true, nil
}
