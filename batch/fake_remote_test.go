package batch

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teranos/verdict/ai/openai"
	"github.com/teranos/verdict/db"
	testdb "github.com/teranos/verdict/internal/testing"
	"github.com/teranos/verdict/pulse/ledger"
)

// fakeRemote is an in-memory batch service
type fakeRemote struct {
	mu       sync.Mutex
	seq      int
	files    map[string]*openai.File
	contents map[string]string
	batches  map[string]*openai.Batch
	order    []string

	uploadErr     error
	retrieveErr   error // returned by RetrieveFile for known files
	createErr     error
	createStatus  string
	listErr       error
	extraInFlight int

	uploads int
	creates int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		files:        map[string]*openai.File{},
		contents:     map[string]string{},
		batches:      map[string]*openai.Batch{},
		createStatus: openai.StatusValidating,
	}
}

func notFound(what string) error {
	return &openai.APIError{StatusCode: http.StatusNotFound, Type: "invalid_request_error", Message: "No such " + what}
}

func (f *fakeRemote) next(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeRemote) UploadFile(ctx context.Context, filename string, content io.Reader, purpose string) (*openai.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	b, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	file := &openai.File{ID: f.next("file"), Filename: filename, Purpose: purpose, Bytes: int64(len(b))}
	f.files[file.ID] = file
	f.contents[file.ID] = string(b)
	f.uploads++
	return file, nil
}

func (f *fakeRemote) RetrieveFile(ctx context.Context, fileID string) (*openai.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[fileID]
	if !ok {
		return nil, notFound("File object: " + fileID)
	}
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	return file, nil
}

func (f *fakeRemote) FileContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.contents[fileID]
	if !ok {
		return nil, notFound("File object: " + fileID)
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

func (f *fakeRemote) CreateBatch(ctx context.Context, req openai.CreateBatchRequest) (*openai.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.files[req.InputFileID]; !ok {
		return nil, notFound("File object: " + req.InputFileID)
	}
	b := &openai.Batch{
		ID:               f.next("batch"),
		Endpoint:         req.Endpoint,
		InputFileID:      req.InputFileID,
		CompletionWindow: req.CompletionWindow,
		Status:           f.createStatus,
		Metadata:         req.Metadata,
	}
	f.batches[b.ID] = b
	f.order = append(f.order, b.ID)
	f.creates++
	cp := *b
	return &cp, nil
}

func (f *fakeRemote) RetrieveBatch(ctx context.Context, batchID string) (*openai.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[batchID]
	if !ok {
		return nil, notFound("batch: " + batchID)
	}
	cp := *b
	return &cp, nil
}

func (f *fakeRemote) ListBatches(ctx context.Context, params openai.ListParams) (*openai.BatchList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	list := &openai.BatchList{}
	for _, id := range f.order {
		list.Data = append(list.Data, *f.batches[id])
	}
	for i := 0; i < f.extraInFlight; i++ {
		list.Data = append(list.Data, openai.Batch{ID: fmt.Sprintf("other-%d", i), Status: openai.StatusInProgress})
	}
	return list, nil
}

// jobFor returns the id of the latest remote job created for (owner, sub)
func (f *fakeRemote) jobFor(owner string, sub int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := ""
	for _, bid := range f.order {
		b, ok := f.batches[bid]
		if ok && b.Metadata["owner_key"] == owner && b.Metadata["sub_id"] == fmt.Sprint(sub) {
			id = bid
		}
	}
	return id
}

// setStatus changes a remote job's status
func (f *fakeRemote) setStatus(batchID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches[batchID].Status = status
}

// failValidation gives a remote job validation errors
func (f *fakeRemote) failValidation(batchID string, codes ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.batches[batchID]
	b.Status = openai.StatusFailed
	b.Errors = &openai.BatchErrors{Object: "list"}
	for _, c := range codes {
		b.Errors.Data = append(b.Errors.Data, openai.BatchError{Code: c, Message: "bad line"})
	}
}

// forget drops a remote object, as if it expired server side
func (f *fakeRemote) forget(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, id)
	delete(f.contents, id)
	delete(f.batches, id)
}

// complete answers every task of a remote job's input file and marks it completed.
// decide picks the answer content for each task.
func (f *fakeRemote) complete(t *testing.T, batchID string, decide func(task Task) string) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	b := f.batches[batchID]
	input := f.contents[b.InputFileID]

	var out strings.Builder
	n := 0
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		var task Task
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &task))
		out.WriteString(outputLineFor(t, task.CustomID, decide(task)))
		n++
	}
	require.NoError(t, scanner.Err())

	outID := f.next("file-out")
	f.contents[outID] = out.String()
	b.Status = openai.StatusCompleted
	b.OutputFileID = outID
	b.RequestCounts = openai.RequestCounts{Total: n, Completed: n}
}

// outputLineFor renders one successful output line
func outputLineFor(t *testing.T, customID, content string) string {
	t.Helper()
	line := map[string]interface{}{
		"id":        "resp-" + customID,
		"custom_id": customID,
		"response": map[string]interface{}{
			"status_code": 200,
			"body": map[string]interface{}{
				"choices": []interface{}{
					map[string]interface{}{"message": map[string]interface{}{"role": "assistant", "content": content}},
				},
			},
		},
		"error": nil,
	}
	b, err := json.Marshal(line)
	require.NoError(t, err)
	return string(b) + "\n"
}

func answer(decision, why string) string {
	return fmt.Sprintf(`{"decision":%q,"justification":%q}`, decision, why)
}

// newTestLedger returns a migrated in-memory ledger
func newTestLedger(t *testing.T) (*ledger.Store, *sql.DB) {
	t.Helper()
	conn := testdb.CreateTestDB(t)
	return ledger.NewStore(conn, db.DialectSQLite, nil), conn
}

// testConfig points every directory into a temp dir
func testConfig(t *testing.T) Config {
	t.Helper()
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.InputsDir = filepath.Join(root, "inputs")
	cfg.ArtifactsDir = filepath.Join(root, "batches")
	cfg.OutputsDir = filepath.Join(root, "outputs")
	cfg.DatasetsDir = filepath.Join(root, "datasets")
	require.NoError(t, os.MkdirAll(cfg.InputsDir, 0755))
	return cfg
}

// writeInputs writes n items for owner and returns them
func writeInputs(t *testing.T, dir, owner string, n int) []RequestItem {
	t.Helper()
	var b strings.Builder
	items := make([]RequestItem, 0, n)
	for i := 0; i < n; i++ {
		it := RequestItem{
			HashID:   fmt.Sprintf("h%04d", i),
			Date:     fmt.Sprintf("2024-01-%02d", i%28+1),
			Text:     fmt.Sprintf("news item %d about %s", i, owner),
			OwnerKey: owner,
		}
		line, err := json.Marshal(it)
		require.NoError(t, err)
		b.Write(line)
		b.WriteByte('\n')
		items = append(items, it)
	}
	require.NoError(t, os.WriteFile(InputPath(dir, owner), []byte(b.String()), 0644))
	return items
}
