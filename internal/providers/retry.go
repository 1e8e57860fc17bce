package providers

import (
	"context"
	"errors"
	"net"
	"time"

	"video-pipeline/internal/types"
)

// Backoff is the base delay between attempts. Attempt n waits n*Backoff.
var Backoff = 2 * time.Second

// Retry runs fn up to attempts times with linear backoff. Only retryable
// provider errors and timeouts are retried; anything else returns at once.
func Retry(ctx context.Context, attempts int, fn func(attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if !Retryable(err) || attempt == attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(time.Duration(attempt) * Backoff):
		}
	}
	return err
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if types.IsRetryable(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// RetryableStatus reports whether an HTTP status is transient.
func RetryableStatus(code int) bool {
	return code == 429 || code >= 500
}
