package openai

// Batch statuses reported by the Batches API
const (
	StatusValidating = "validating"
	StatusFailed     = "failed"
	StatusInProgress = "in_progress"
	StatusFinalizing = "finalizing"
	StatusCompleted  = "completed"
	StatusExpired    = "expired"
	StatusCancelling = "cancelling"
	StatusCancelled  = "cancelled"
)

// InFlightStatuses are the statuses that count against the admission floor
var InFlightStatuses = []string{StatusValidating, StatusInProgress, StatusFinalizing, StatusCancelling}

// IsInFlight reports whether a status still occupies remote capacity
func IsInFlight(status string) bool {
	for _, s := range InFlightStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// PurposeBatch is the upload purpose for batch input files
const PurposeBatch = "batch"

// File is an uploaded file handle
type File struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Bytes     int64  `json:"bytes"`
	CreatedAt int64  `json:"created_at"`
	Filename  string `json:"filename"`
	Purpose   string `json:"purpose"`
	Status    string `json:"status,omitempty"`
}

// BatchError is one entry of a batch's validation errors
type BatchError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	Line    *int   `json:"line,omitempty"`
}

// BatchErrors wraps the error list of a batch
type BatchErrors struct {
	Object string       `json:"object"`
	Data   []BatchError `json:"data"`
}

// RequestCounts summarizes per-line progress of a batch
type RequestCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Batch is a remote batch job
type Batch struct {
	ID               string            `json:"id"`
	Object           string            `json:"object"`
	Endpoint         string            `json:"endpoint"`
	InputFileID      string            `json:"input_file_id"`
	CompletionWindow string            `json:"completion_window"`
	Status           string            `json:"status"`
	OutputFileID     string            `json:"output_file_id,omitempty"`
	ErrorFileID      string            `json:"error_file_id,omitempty"`
	Errors           *BatchErrors      `json:"errors,omitempty"`
	CreatedAt        int64             `json:"created_at"`
	CompletedAt      int64             `json:"completed_at,omitempty"`
	RequestCounts    RequestCounts     `json:"request_counts"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// ErrorCodes lists the codes of the batch's validation errors
func (b *Batch) ErrorCodes() []string {
	if b == nil || b.Errors == nil {
		return nil
	}
	codes := make([]string, 0, len(b.Errors.Data))
	for _, e := range b.Errors.Data {
		codes = append(codes, e.Code)
	}
	return codes
}

// HasErrorCode reports whether any validation error carries one of codes
func (b *Batch) HasErrorCode(codes []string) bool {
	for _, got := range b.ErrorCodes() {
		for _, want := range codes {
			if got == want {
				return true
			}
		}
	}
	return false
}

// CreateBatchRequest is the body of POST /batches
type CreateBatchRequest struct {
	InputFileID      string            `json:"input_file_id"`
	Endpoint         string            `json:"endpoint"`
	CompletionWindow string            `json:"completion_window"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// ListParams pages through GET /batches
type ListParams struct {
	Limit int
	After string
}

// BatchList is one page of batches
type BatchList struct {
	Object  string  `json:"object"`
	Data    []Batch `json:"data"`
	FirstID string  `json:"first_id"`
	LastID  string  `json:"last_id"`
	HasMore bool    `json:"has_more"`
}
