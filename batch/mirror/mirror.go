// Package mirror copies reassembled datasets to S3-compatible object storage.
package mirror

import (
	"context"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/teranos/verdict/am"
	"github.com/teranos/verdict/batch"
	"github.com/teranos/verdict/errors"
	"github.com/teranos/verdict/logger"
)

// ContentType of mirrored JSONL datasets
const ContentType = "application/x-ndjson"

// Sink is a batch.DatasetSink that uploads each dataset file to a bucket
type Sink struct {
	client *minio.Client
	bucket string
	prefix string
	logger *zap.SugaredLogger

	// bucketReady is set after the first successful check; a failed check is retried next publish
	mu          sync.Mutex
	bucketReady bool
}

var _ batch.DatasetSink = (*Sink)(nil)

// New creates a mirror sink from the mirror config section
func New(cfg am.MirrorConfig, log *zap.SugaredLogger) (*Sink, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "mirror needs an endpoint and a bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create object storage client")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Sink{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger.AddAxSymbol(log),
	}, nil
}

// Name identifies the sink in collection summaries
func (s *Sink) Name() string { return "mirror" }

// ObjectName is the key a dataset file is stored under
func (s *Sink) ObjectName(datasetPath string) string {
	prefix := strings.Trim(s.prefix, "/")
	if prefix == "" {
		return filepath.Base(datasetPath)
	}
	return path.Join(prefix, filepath.Base(datasetPath))
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *Sink) EnsureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bucketReady {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return errors.Wrapf(err, "failed to check bucket %s", s.bucket)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return errors.Wrapf(err, "failed to create bucket %s", s.bucket)
		}
		s.logger.Infow("Created mirror bucket", "bucket", s.bucket)
	}
	s.bucketReady = true
	return nil
}

// Publish uploads the dataset file. Rows are not used; the file on disk is the source.
func (s *Sink) Publish(ctx context.Context, owner, datasetPath string, rows []batch.DatasetRow) error {
	if err := s.EnsureBucket(ctx); err != nil {
		return err
	}

	object := s.ObjectName(datasetPath)
	info, err := s.client.FPutObject(ctx, s.bucket, object, datasetPath, minio.PutObjectOptions{
		ContentType: ContentType,
		UserMetadata: map[string]string{
			"owner-key": owner,
		},
	})
	if err != nil {
		return errors.Wrapf(err, "failed to mirror %s", datasetPath)
	}

	s.logger.Infow("Dataset mirrored",
		logger.FieldOwnerKey, owner,
		"bucket", s.bucket,
		"object", object,
		"bytes", info.Size,
		"rows", len(rows))
	return nil
}
