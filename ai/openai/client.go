package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/verdict/errors"
	"github.com/teranos/verdict/internal/httpclient"
)

const (
	// DefaultBaseURL is the public API root
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout bounds every HTTP call
	DefaultTimeout = 120 * time.Second
	// DefaultListLimit is the page size used when paging through batches
	DefaultListLimit = 100
)

// Config holds client configuration
type Config struct {
	APIKey            string
	BaseURL           string        // "" = DefaultBaseURL
	Timeout           time.Duration // 0 = DefaultTimeout
	RequestsPerSecond float64       // 0 = unlimited
	Burst             int
	MaxRetries        int           // extra attempts for idempotent GETs on transient errors
	RetryDelay        time.Duration // base delay, multiplied by the attempt number
	UserAgent         string
	Logger            *zap.SugaredLogger
}

// Client talks to the Files and Batches endpoints
type Client struct {
	config     Config
	baseURL    string
	httpClient *httpclient.Client
	logger     *zap.SugaredLogger
}

// NewClient creates a client with defaults applied
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Client{
		config:  config,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpclient.New(httpclient.Options{
			Timeout:           config.Timeout,
			RequestsPerSecond: config.RequestsPerSecond,
			Burst:             config.Burst,
		}),
		logger: logger,
	}
}

// IsConfigured returns true if the client has an API key
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// SetHTTPClient overrides the HTTP client, keeping the configured rate limit.
// Only use this in tests.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.Wrap(client, httpclient.Options{
		RequestsPerSecond: c.config.RequestsPerSecond,
		Burst:             c.config.Burst,
	})
}

// UploadFile uploads content as a multipart form under the given purpose
func (c *Client) UploadFile(ctx context.Context, filename string, content io.Reader, purpose string) (*File, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("purpose", purpose); err != nil {
		return nil, errors.Wrap(err, "failed to write purpose field")
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create form file")
	}
	n, err := io.Copy(part, content)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", filename)
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close multipart writer")
	}

	var file File
	if err := c.do(ctx, http.MethodPost, "/files", w.FormDataContentType(), body.Bytes(), &file); err != nil {
		return nil, errors.Wrapf(err, "upload %s", filename)
	}

	c.logger.Debugw("Uploaded file", "filename", filename, "bytes", n, "remote_file_id", file.ID)
	return &file, nil
}

// RetrieveFile fetches a file handle. A missing file yields an error matching IsNotFound.
func (c *Client) RetrieveFile(ctx context.Context, fileID string) (*File, error) {
	var file File
	if err := c.get(ctx, "/files/"+url.PathEscape(fileID), &file); err != nil {
		return nil, errors.Wrapf(err, "retrieve file %s", fileID)
	}
	return &file, nil
}

// FileContent streams the content of a file. The caller closes the reader.
func (c *Client) FileContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID)+"/content", "", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "download file %s", fileID)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, errors.Wrapf(parseAPIError(resp.StatusCode, respBody), "download file %s", fileID)
	}
	return resp.Body, nil
}

// CreateBatch creates a batch job from an uploaded input file
func (c *Client) CreateBatch(ctx context.Context, req CreateBatchRequest) (*Batch, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal batch request")
	}
	var batch Batch
	if err := c.do(ctx, http.MethodPost, "/batches", "application/json", payload, &batch); err != nil {
		return nil, errors.Wrapf(err, "create batch for %s", req.InputFileID)
	}
	return &batch, nil
}

// RetrieveBatch fetches the current state of a batch
func (c *Client) RetrieveBatch(ctx context.Context, batchID string) (*Batch, error) {
	var batch Batch
	if err := c.get(ctx, "/batches/"+url.PathEscape(batchID), &batch); err != nil {
		return nil, errors.Wrapf(err, "retrieve batch %s", batchID)
	}
	return &batch, nil
}

// ListBatches returns one page of batches, newest first
func (c *Client) ListBatches(ctx context.Context, params ListParams) (*BatchList, error) {
	q := url.Values{}
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q.Set("limit", strconv.Itoa(limit))
	if params.After != "" {
		q.Set("after", params.After)
	}

	var list BatchList
	if err := c.get(ctx, "/batches?"+q.Encode(), &list); err != nil {
		return nil, errors.Wrap(err, "list batches")
	}
	return &list, nil
}

// get retries transient failures; GETs are idempotent
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	var err error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * c.config.RetryDelay
			c.logger.Debugw("Retrying request", "path", path, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "retry cancelled")
			case <-time.After(delay):
			}
		}

		err = c.do(ctx, http.MethodGet, path, "", nil, out)
		if err == nil || !IsRetryable(err) {
			return err
		}
		c.logger.Warnw("Transient API error", "path", path, "attempt", attempt+1, "error", err)
	}
	return err
}

func (c *Client) newRequest(ctx context.Context, method, path, contentType string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, out interface{}) error {
	if !c.IsConfigured() {
		return errors.New("OpenAI API key not configured")
	}

	req, err := c.newRequest(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.Wrap(err, "failed to unmarshal response")
	}
	return nil
}
