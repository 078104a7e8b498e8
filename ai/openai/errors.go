package openai

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/teranos/verdict/errors"
)

// APIError is a non-2xx response from the API
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("openai: %d %s (%s)", e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("openai: %d %s", e.StatusCode, e.Message)
}

// parseAPIError builds an APIError from a response body, falling back to the raw text
func parseAPIError(status int, body []byte) error {
	var envelope struct {
		Error struct {
			Message string          `json:"message"`
			Type    string          `json:"type"`
			Code    json.RawMessage `json:"code"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Type = envelope.Error.Type
		// code is a string or null
		var code string
		if json.Unmarshal(envelope.Error.Code, &code) == nil {
			apiErr.Code = code
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
	}

	var err error = apiErr
	switch {
	case status == http.StatusNotFound:
		err = errors.Mark(apiErr, errors.ErrNotFound)
	case status == http.StatusTooManyRequests || status >= 500:
		err = errors.Mark(apiErr, errors.ErrServiceUnavailable)
	case status == http.StatusBadRequest:
		err = errors.Mark(apiErr, errors.ErrInvalidRequest)
	}
	return errors.WithStack(err)
}

// IsNotFound reports whether err means the remote file or batch does not exist
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return errors.IsNotFoundError(err)
}

// IsRetryable reports whether err is transient: network trouble, 429 or 5xx
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		var errno syscall.Errno
		if errors.As(opErr.Err, &errno) {
			switch errno {
			case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT:
				return true
			}
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection reset by peer",
		"connection refused",
		"timeout",
		"temporary failure",
		"network is unreachable",
		"eof",
	} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}
