package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesSentinel(t *testing.T) {
	wrapped := Wrap(ErrConflict, "update batch_log row 7")

	assert.Contains(t, wrapped.Error(), "update batch_log row 7")
	assert.True(t, Is(wrapped, ErrConflict))
	assert.True(t, IsConflictError(wrapped))
	assert.False(t, IsNotFoundError(wrapped))
}

func TestWithDetailSurvivesWrapping(t *testing.T) {
	err := New("remote job failed")
	err = WithDetail(err, "Owner key: PETR4")
	err = WithDetail(err, "Sub-batch: 3")
	err = Wrap(err, "advance record")

	details := GetAllDetails(err)
	require.Len(t, details, 2)
	assert.Contains(t, details, "Owner key: PETR4")
	assert.Contains(t, details, "Sub-batch: 3")
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("file %s", "file-abc")

	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "file file-abc")
	assert.False(t, IsNotFoundError(nil))
}

func TestNewConflictError(t *testing.T) {
	err := NewConflictError("record %d version %d", 4, 2)

	assert.True(t, IsConflictError(err))
	assert.Contains(t, err.Error(), "record 4 version 2")
}

func TestMarkKeepsMessage(t *testing.T) {
	base := fmt.Errorf("dial tcp: connection refused")
	marked := Mark(base, ErrServiceUnavailable)

	assert.Equal(t, base.Error(), marked.Error())
	assert.True(t, IsServiceUnavailableError(marked))
}

func TestStackTraceInVerboseFormat(t *testing.T) {
	err := Wrap(New("boom"), "context")
	verbose := fmt.Sprintf("%+v", err)

	assert.Contains(t, verbose, "errors_test.go")
}
