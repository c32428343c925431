package errors

import (
	"context"
	"time"
)

// RetryOnce runs fn, and if it fails with a retryable error, waits for
// a short exponential backoff and runs it exactly one more time.
// Transient errors on a batch are retried once with exponential
// backoff, then surfaced as a run failure.
func RetryOnce(ctx context.Context, backoff time.Duration, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}

	var ce *CoreError
	if !As(err, &ce) || !ce.Retryable {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backoff):
	}

	return fn()
}
