package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/verdict/errors"
	"github.com/teranos/verdict/logger"
	"github.com/teranos/verdict/pulse/async"
	"github.com/teranos/verdict/pulse/budget"
	"github.com/teranos/verdict/pulse/ledger"
	"github.com/teranos/verdict/pulse/schedule"
)

// Orchestrator owns the collaborators of one deployment: remote client, ledger,
// pool and admission controller.
type Orchestrator struct {
	cfg       Config
	remote    Remote
	ledger    Ledger
	pool      *async.Pool
	admission *budget.Admission
	builder   *TaskBuilder
	uploader  *Uploader
	submitter *Submitter
	poller    *Poller
	collector *Collector
	logger    *zap.SugaredLogger
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithSinks adds dataset sinks run after each owner is reassembled
func WithSinks(sinks ...DatasetSink) Option {
	return func(o *Orchestrator) {
		o.collector.sinks = append(o.collector.sinks, sinks...)
	}
}

// WithAdmission replaces the admission controller
func WithAdmission(a *budget.Admission) Option {
	return func(o *Orchestrator) { o.admission = a }
}

// New wires an orchestrator around a remote service and a ledger
func New(cfg Config, remote Remote, store Ledger, log *zap.SugaredLogger, opts ...Option) (*Orchestrator, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	validator, err := NewResultValidator()
	if err != nil {
		return nil, err
	}

	pool := async.NewPool(async.PoolConfig{Width: cfg.Workers}, log)
	submitter := NewSubmitter(remote, store, cfg, log.Named("submitter"))

	o := &Orchestrator{
		cfg:    cfg,
		remote: remote,
		ledger: store,
		pool:   pool,
		admission: budget.NewAdmission(remote, budget.AdmissionConfig{
			Floor: cfg.AdmissionFloor,
		}, log.Named("admission")),
		builder:   NewTaskBuilder(cfg),
		uploader:  NewUploader(remote, store, log.Named("uploader")),
		submitter: submitter,
		poller:    NewPoller(remote, store, submitter, cfg, log.Named("poller")),
		collector: NewCollector(cfg, remote, store, pool, validator, log.Named("collector")),
		logger:    log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// PrepareSummary counts what one preparation pass did
type PrepareSummary struct {
	Owners     int
	Items      int
	SubBatches int
	Written    int // new artifacts
	Uploaded   int // records holding a valid file handle afterwards
	Failed     int
}

// Prepare partitions every owner's inputs, writes missing artifacts and makes
// sure each sub-batch has a ledger record with a live file handle. Owners are
// processed concurrently through the pool; one owner's failure does not stop others.
func (o *Orchestrator) Prepare(ctx context.Context) (PrepareSummary, error) {
	owners, err := ListInputOwners(o.cfg.InputsDir)
	if err != nil {
		return PrepareSummary{}, err
	}

	var (
		mu    sync.Mutex
		total = PrepareSummary{Owners: len(owners)}
	)
	run := o.pool.Run(ctx, len(owners), func(ctx context.Context, i int) error {
		sum, err := o.PrepareOwner(ctx, owners[i])
		mu.Lock()
		total.Items += sum.Items
		total.SubBatches += sum.SubBatches
		total.Written += sum.Written
		total.Uploaded += sum.Uploaded
		total.Failed += sum.Failed
		mu.Unlock()
		return err
	})
	for _, ue := range run.Errors {
		o.logger.Warnw("Preparation failed for owner",
			logger.FieldOwnerKey, owners[ue.Index], logger.FieldError, ue.Err)
	}
	return total, nil
}

// PrepareOwner runs partition, artifact and upload for one owner key
func (o *Orchestrator) PrepareOwner(ctx context.Context, owner string) (PrepareSummary, error) {
	sum := PrepareSummary{Owners: 1}
	items, err := ReadInputs(InputPath(o.cfg.InputsDir, owner), owner)
	if err != nil {
		return sum, err
	}
	sum.Items = len(items)

	parts := Partition(items, o.cfg.SubBatchSize)
	sum.SubBatches = len(parts)

	var firstErr error
	offset := 0
	for k, part := range parts {
		sub := k + 1
		tasks := o.builder.Build(owner, part, offset)
		offset += len(part)

		path, wrote, err := WriteArtifact(o.cfg.ArtifactsDir, owner, sub, tasks)
		if err != nil {
			return sum, err
		}
		if wrote {
			sum.Written++
		}

		rec, err := o.uploader.EnsureUploaded(ctx, owner, sub, path)
		if err != nil {
			sum.Failed++
			if firstErr == nil {
				firstErr = err
			}
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			continue
		}
		if rec.RemoteFileID != "" || rec.IsTerminal() {
			sum.Uploaded++
		}
	}

	o.logger.Debugw("Prepared owner",
		logger.FieldOwnerKey, owner,
		"items", sum.Items,
		"sub_batches", sum.SubBatches,
		"written", sum.Written,
		"uploaded", sum.Uploaded)
	return sum, firstErr
}

// AdvanceSummary counts what one advance pass did
type AdvanceSummary struct {
	Decision budget.Decision
	Slots    int
	Records  int
	Outcomes map[Outcome]int
	Run      async.RunSummary
}

// submitSlots hands out the remote jobs one cycle may still create
type submitSlots struct {
	left atomic.Int64
}

func newSubmitSlots(n int) *submitSlots {
	s := &submitSlots{}
	s.left.Store(int64(n))
	return s
}

func (s *submitSlots) take() bool {
	for {
		n := s.left.Load()
		if n <= 0 {
			return false
		}
		if s.left.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// Advance checks admission once, then advances up to MaxRecordsPerCycle
// records through the pool. An admitted cycle creates at most floor minus
// in-flight remote jobs. A cycle that is not admitted only polls records
// that already have a remote job.
func (o *Orchestrator) Advance(ctx context.Context) (AdvanceSummary, error) {
	sum := AdvanceSummary{Outcomes: map[Outcome]int{}}

	decision, err := o.admission.Check(ctx)
	if err != nil {
		o.logger.Warnw("Admission check failed; polling without submitting",
			logger.FieldErrorClass, Classify("admission", err).Class, logger.FieldError, err)
	}
	sum.Decision = decision

	list := o.ledger.ListSubmitted
	if decision.Admit {
		sum.Slots = decision.Remaining()
		list = o.ledger.ListPending
	}
	slots := newSubmitSlots(sum.Slots)

	records, err := list(ctx, o.cfg.MaxRecordsPerCycle)
	if err != nil {
		return sum, errors.Wrap(err, "failed to read pending records")
	}
	sum.Records = len(records)
	if len(records) == 0 {
		return sum, nil
	}

	var mu sync.Mutex
	sum.Run = o.pool.Run(ctx, len(records), func(ctx context.Context, i int) error {
		outcome, err := o.poller.advance(ctx, records[i], slots.take)
		mu.Lock()
		sum.Outcomes[outcome]++
		mu.Unlock()
		return err
	})
	return sum, nil
}

// RunCycle is one scheduled cycle: prepare, then advance. It fills run's counters.
func (o *Orchestrator) RunCycle(ctx context.Context, run *schedule.CycleRun) error {
	ctx = logger.WithComponent(logger.WithCycleID(ctx, run.ID), "cycle")
	log := logger.FromContext(ctx, o.logger)
	start := time.Now()

	// Records already in the ledger are still advanced when inputs are unreadable
	prep, err := o.Prepare(ctx)
	if err != nil {
		log.Errorw("Preparation failed", logger.FieldError, err)
	}

	adv, err := o.Advance(ctx)
	run.Inflight = adv.Decision.Inflight
	run.Admitted = adv.Decision.Admit
	run.Records = adv.Records
	run.Succeeded = adv.Run.Succeeded
	run.Failed = adv.Run.Failed + prep.Failed
	if err != nil {
		return errors.Wrap(err, "advance")
	}

	metrics := async.CurrentSystemMetrics()
	log.Infow("Cycle finished",
		"owners", prep.Owners,
		"sub_batches", prep.SubBatches,
		"artifacts_written", prep.Written,
		logger.FieldInflight, adv.Decision.Inflight,
		"admitted", adv.Decision.Admit,
		"slots", adv.Slots,
		"records", adv.Records,
		"submitted", adv.Outcomes[OutcomeSubmitted],
		"resubmitted", adv.Outcomes[OutcomeResubmitted],
		"completed", adv.Outcomes[OutcomeCompleted],
		"invalid", adv.Outcomes[OutcomeInvalid],
		"stale", adv.Outcomes[OutcomeStale],
		logger.FieldFailed, run.Failed,
		"mem_percent", metrics.MemoryPercent,
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return nil
}

// Collect downloads and reassembles results for the given owners, or for every
// owner in the ledger when none are given.
func (o *Orchestrator) Collect(ctx context.Context, owners []string) ([]CollectSummary, error) {
	return o.collector.Collect(ctx, owners)
}

// Status returns per-owner ledger counts
func (o *Orchestrator) Status(ctx context.Context) ([]ledger.Summary, error) {
	return o.ledger.Summarize(ctx)
}
