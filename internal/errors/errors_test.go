package errors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDerivesCategoryAndSeverity(t *testing.T) {
	err := New(CodeBackendTimeout, "index engine did not respond", nil)
	assert.Equal(t, CategoryTransient, err.Category)
	assert.True(t, err.Retryable)
	assert.Equal(t, "[ERR_301_BACKEND_TIMEOUT] index engine did not respond", err.Error())
}

func TestIsMatchesByCode(t *testing.T) {
	target := &CoreError{Code: CodeFileNotFound}
	err := New(CodeFileNotFound, "missing", nil)
	assert.ErrorIs(t, err, target)

	other := New(CodeFileTooLarge, "too big", nil)
	assert.NotErrorIs(t, other, target)
}

func TestWithDetail(t *testing.T) {
	err := New(CodeInvalidGlob, "bad glob", nil).WithDetail("pattern", "**/*[")
	require.Equal(t, "**/*[", err.Details["pattern"])
}

func TestRetryOnceRetriesOnlyRetryable(t *testing.T) {
	calls := 0
	err := RetryOnce(context.Background(), time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return New(CodeBackendTimeout, "timeout", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryOnceDoesNotRetryNonRetryable(t *testing.T) {
	calls := 0
	err := RetryOnce(context.Background(), time.Millisecond, func() error {
		calls++
		return New(CodeInvalidGlob, "bad glob", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsCancelled(t *testing.T) {
	err := New(CodeCancelled, "stopped", nil)
	assert.True(t, IsCancelled(err))
	assert.False(t, IsCancelled(fmt.Errorf("boom")))
}
