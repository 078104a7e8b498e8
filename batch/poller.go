package batch

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/verdict/ai/openai"
	"github.com/teranos/verdict/logger"
	"github.com/teranos/verdict/pulse/ledger"
)

// Outcome is what one Advance call did to a record
type Outcome string

const (
	OutcomeSkipped     Outcome = "skipped"
	OutcomeSubmitted   Outcome = "submitted"
	OutcomeResubmitted Outcome = "resubmitted"
	OutcomeWaiting     Outcome = "waiting"
	OutcomeCompleted   Outcome = "completed"
	OutcomeInvalid     Outcome = "invalid"
	OutcomeStale       Outcome = "stale"
	OutcomeFailed      Outcome = "failed"
)

// resubmittable are the non-completed statuses that end a remote job
var resubmittable = map[string]bool{
	openai.StatusFailed:    true,
	openai.StatusExpired:   true,
	openai.StatusCancelled: true,
}

// Poller advances one ledger record per call
type Poller struct {
	remote           Remote
	ledger           Ledger
	submitter        *Submitter
	invalidCodes     []string
	resubmitInFlight bool
	logger           *zap.SugaredLogger
}

// NewPoller creates a poller
func NewPoller(remote Remote, store Ledger, submitter *Submitter, cfg Config, log *zap.SugaredLogger) *Poller {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	codes := cfg.InvalidErrorCodes
	if len(codes) == 0 {
		codes = []string{DefaultInvalidErrorCode}
	}
	return &Poller{
		remote:           remote,
		ledger:           store,
		submitter:        submitter,
		invalidCodes:     codes,
		resubmitInFlight: cfg.ResubmitInFlight,
		logger:           logger.AddPulseSymbol(log),
	}
}

// Advance moves rec one step through its lifecycle. admit gates new submissions
// and resubmissions only; submitted records are polled either way.
func (p *Poller) Advance(ctx context.Context, rec *ledger.Record, admit bool) (Outcome, error) {
	return p.advance(ctx, rec, func() bool { return admit })
}

// advance asks take for a slot right before creating a remote job, so polls
// that end in completion or waiting never use one up.
func (p *Poller) advance(ctx context.Context, rec *ledger.Record, take func() bool) (Outcome, error) {
	switch rec.State() {
	case ledger.StateTerminalSuccess, ledger.StateTerminalInvalid:
		return OutcomeSkipped, nil

	case ledger.StateUnsubmitted:
		if rec.RemoteFileID == "" {
			p.logger.Debugw("Record has no uploaded file yet", recordFields(rec)...)
			return OutcomeSkipped, nil
		}
		if !take() {
			return OutcomeSkipped, nil
		}
		if err := p.submitter.Submit(ctx, rec); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeSubmitted, nil
	}

	job, err := p.remote.RetrieveBatch(ctx, rec.RemoteJobID)
	if err != nil {
		if openai.IsNotFound(err) {
			return p.clearStale(ctx, rec)
		}
		p.logger.Warnw("Failed to retrieve remote job",
			append(recordFields(rec), logger.FieldErrorClass, Classify("poll", err).Class, logger.FieldError, err)...)
		return OutcomeFailed, err
	}

	if job.HasErrorCode(p.invalidCodes) {
		rec.LastStatus = job.Status
		if err := p.ledger.MarkInvalid(ctx, rec); err != nil {
			return OutcomeFailed, err
		}
		p.logger.Infow("Remote job failed validation, record is now terminal",
			append(recordFields(rec), logger.FieldStatus, job.Status, "codes", job.ErrorCodes())...)
		return OutcomeInvalid, nil
	}

	if job.Status == openai.StatusCompleted {
		rec.LastStatus = job.Status
		if err := p.ledger.MarkDone(ctx, rec, job.OutputFileID); err != nil {
			return OutcomeFailed, err
		}
		p.logger.Infow("Remote job completed",
			append(recordFields(rec), "output_file_id", job.OutputFileID,
				"completed", job.RequestCounts.Completed, "failed_requests", job.RequestCounts.Failed)...)
		return OutcomeCompleted, nil
	}

	if rec.ShouldRetry == ledger.TriTrue && p.mayResubmit(job.Status) && take() {
		if err := p.submitter.Submit(ctx, rec); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeResubmitted, nil
	}

	if rec.LastStatus != job.Status {
		rec.LastStatus = job.Status
		if err := p.ledger.Update(ctx, rec); err != nil {
			return OutcomeFailed, err
		}
	}
	p.logger.Debugw("Remote job still running", append(recordFields(rec), logger.FieldStatus, job.Status)...)
	return OutcomeWaiting, nil
}

// mayResubmit applies the resubmit policy to a non-terminal remote status
func (p *Poller) mayResubmit(status string) bool {
	return p.resubmitInFlight || resubmittable[status]
}

// clearStale drops a job id the remote no longer knows; the record goes back
// to UNSUBMITTED and is resubmitted on a later admitted cycle.
func (p *Poller) clearStale(ctx context.Context, rec *ledger.Record) (Outcome, error) {
	stale := rec.RemoteJobID
	rec.RemoteJobID = ""
	rec.LastStatus = ""
	if err := p.ledger.Update(ctx, rec); err != nil {
		return OutcomeFailed, err
	}
	p.logger.Infow("Remote job handle is stale, cleared",
		append(recordFields(rec), "stale_job_id", stale)...)
	return OutcomeStale, nil
}
