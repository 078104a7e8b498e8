package batch

import (
	"context"
	"io"

	"github.com/teranos/verdict/ai/openai"
	"github.com/teranos/verdict/logger"
	"github.com/teranos/verdict/pulse/ledger"
)

// Remote is the subset of the batch service the orchestrator drives.
// *openai.Client implements it.
type Remote interface {
	UploadFile(ctx context.Context, filename string, content io.Reader, purpose string) (*openai.File, error)
	RetrieveFile(ctx context.Context, fileID string) (*openai.File, error)
	FileContent(ctx context.Context, fileID string) (io.ReadCloser, error)
	CreateBatch(ctx context.Context, req openai.CreateBatchRequest) (*openai.Batch, error)
	RetrieveBatch(ctx context.Context, batchID string) (*openai.Batch, error)
	ListBatches(ctx context.Context, params openai.ListParams) (*openai.BatchList, error)
}

// Ledger is the job ledger. *ledger.Store implements it.
type Ledger interface {
	Find(ctx context.Context, ownerKey string, subID int) (*ledger.Record, error)
	Create(ctx context.Context, r *ledger.Record) error
	Update(ctx context.Context, r *ledger.Record) error
	ListPending(ctx context.Context, limit int) ([]*ledger.Record, error)
	ListSubmitted(ctx context.Context, limit int) ([]*ledger.Record, error)
	MarkInvalid(ctx context.Context, r *ledger.Record) error
	MarkDone(ctx context.Context, r *ledger.Record, outputFileID string) error
	ListByOwner(ctx context.Context, ownerKey string) ([]*ledger.Record, error)
	ListOwners(ctx context.Context) ([]string, error)
	Summarize(ctx context.Context) ([]ledger.Summary, error)
}

var (
	_ Remote = (*openai.Client)(nil)
	_ Ledger = (*ledger.Store)(nil)
)

// recordFields are the standard log fields for a ledger record
func recordFields(r *ledger.Record) []interface{} {
	return []interface{}{
		logger.FieldOwnerKey, r.OwnerKey,
		logger.FieldSubID, r.SubID,
		logger.FieldRemoteJobID, r.RemoteJobID,
		logger.FieldState, string(r.State()),
	}
}
