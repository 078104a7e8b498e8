package batch

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/teranos/verdict/ai/openai"
	"github.com/teranos/verdict/errors"
	"github.com/teranos/verdict/logger"
	"github.com/teranos/verdict/pulse/ledger"
)

// Uploader makes sure every sub-batch artifact has a live remote file handle
type Uploader struct {
	remote Remote
	ledger Ledger
	logger *zap.SugaredLogger
}

// NewUploader creates an uploader
func NewUploader(remote Remote, store Ledger, log *zap.SugaredLogger) *Uploader {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Uploader{remote: remote, ledger: store, logger: logger.AddIXSymbol(log)}
}

// EnsureUploaded finds or creates the ledger record for (owner, sub) and gives it
// a valid remote file id. Terminal records are left alone. A stale handle is
// cleared and the artifact uploaded again. Upload failures are returned but the
// record is still persisted, without a file id.
func (u *Uploader) EnsureUploaded(ctx context.Context, owner string, sub int, artifactPath string) (*ledger.Record, error) {
	rec, err := u.ledger.Find(ctx, owner, sub)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &ledger.Record{
			OwnerKey:     owner,
			SubID:        sub,
			ArtifactName: filepath.Base(artifactPath),
			ShouldRetry:  ledger.TriTrue,
		}
		if err := u.ledger.Create(ctx, rec); err != nil {
			return nil, err
		}
		u.logger.Debugw("Created ledger record", recordFields(rec)...)
	}

	if rec.IsTerminal() {
		return rec, nil
	}

	dirty := false
	if rec.RemoteFileID != "" {
		_, err := u.remote.RetrieveFile(ctx, rec.RemoteFileID)
		switch {
		case err == nil:
			return rec, nil
		case openai.IsNotFound(err):
			u.logger.Infow("Remote file handle is stale, uploading again",
				append(recordFields(rec), logger.FieldFileID, rec.RemoteFileID)...)
			rec.RemoteFileID = ""
			dirty = true
		default:
			// Keep the handle; a later cycle checks again
			u.logger.Warnw("Could not verify remote file handle",
				append(recordFields(rec), logger.FieldFileID, rec.RemoteFileID, logger.FieldError, err)...)
			return rec, nil
		}
	}

	file, uploadErr := u.upload(ctx, artifactPath)
	if uploadErr == nil {
		rec.RemoteFileID = file.ID
		if file.Filename != "" {
			rec.ArtifactName = file.Filename
		}
		dirty = true
		u.logger.Infow("Uploaded artifact",
			append(recordFields(rec), logger.FieldFileID, file.ID, logger.FieldPath, artifactPath)...)
	} else {
		u.logger.Errorw("Failed to upload artifact",
			append(recordFields(rec), logger.FieldPath, artifactPath,
				logger.FieldErrorClass, Classify("upload", uploadErr).Class, logger.FieldError, uploadErr)...)
	}

	if dirty {
		if err := u.ledger.Update(ctx, rec); err != nil {
			return rec, err
		}
	}
	return rec, uploadErr
}

func (u *Uploader) upload(ctx context.Context, path string) (*openai.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open artifact %s", path)
	}
	defer f.Close()
	return u.remote.UploadFile(ctx, filepath.Base(path), f, openai.PurposeBatch)
}
