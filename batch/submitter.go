package batch

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/teranos/verdict/ai/openai"
	"github.com/teranos/verdict/errors"
	"github.com/teranos/verdict/logger"
	"github.com/teranos/verdict/pulse/ledger"
)

// Submitter creates remote batch jobs for uploaded artifacts
type Submitter struct {
	remote           Remote
	ledger           Ledger
	endpoint         string
	completionWindow string
	logger           *zap.SugaredLogger
}

// NewSubmitter creates a submitter
func NewSubmitter(remote Remote, store Ledger, cfg Config, log *zap.SugaredLogger) *Submitter {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Submitter{
		remote:           remote,
		ledger:           store,
		endpoint:         cfg.Endpoint,
		completionWindow: cfg.CompletionWindow,
		logger:           logger.AddPulseOpenSymbol(log),
	}
}

// Submit creates a remote job for rec's file and records the new job id.
// A job that comes back already failed is a submission failure. On any
// failure the record is left untouched.
func (s *Submitter) Submit(ctx context.Context, rec *ledger.Record) error {
	if rec.RemoteFileID == "" {
		return errors.Wrapf(ErrNoFileHandle, "cannot submit %s/%d", rec.OwnerKey, rec.SubID)
	}

	job, err := s.remote.CreateBatch(ctx, openai.CreateBatchRequest{
		InputFileID:      rec.RemoteFileID,
		Endpoint:         s.endpoint,
		CompletionWindow: s.completionWindow,
		Metadata: map[string]string{
			"owner_key": rec.OwnerKey,
			"sub_id":    strconv.Itoa(rec.SubID),
		},
	})
	if err != nil {
		s.logger.Warnw("Failed to create remote job",
			append(recordFields(rec), logger.FieldErrorClass, Classify("submit", err).Class, logger.FieldError, err)...)
		return err
	}

	if job.Status == openai.StatusFailed {
		err := errors.Mark(errors.Newf("remote job %s was created in status failed", job.ID), ErrValidationPermanent)
		err = errors.WithDetailf(err, "Error codes: %v", job.ErrorCodes())
		s.logger.Warnw("Remote job failed on creation",
			append(recordFields(rec), "new_job_id", job.ID, "codes", job.ErrorCodes())...)
		return err
	}

	previous := rec.RemoteJobID
	rec.RemoteJobID = job.ID
	rec.LastStatus = job.Status
	rec.Attempts++
	if err := s.ledger.Update(ctx, rec); err != nil {
		return err
	}

	fields := append(recordFields(rec), logger.FieldStatus, job.Status, "attempts", rec.Attempts)
	if previous != "" {
		fields = append(fields, "abandoned_job_id", previous)
	}
	s.logger.Infow("Submitted remote job", fields...)
	return nil
}
