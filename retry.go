package go_bridgeclient

import (
	"context"
	"time"
)

// Retry policy for relay operations.
//
// The relay contract uses a fixed attempt budget (BRIDGE_MAX_RETRIES
// retries, so three attempts total) with LINEAR backoff between non-auth
// failures: 1s after the first failure, 2s after the second. Auth-refresh
// retries bypass the delay entirely but still consume an attempt.

// sleeper abstracts the inter-retry delay so tests can assert the backoff
// schedule without waiting on a wall clock.
type sleeper func(ctx context.Context, d time.Duration) error

// sleepWithContext waits for the backoff duration while respecting context
// cancellation. Returns ErrCancelled if the context ends during the wait.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ErrCancelled
	case <-timer.C:
		return nil
	}
}

// backoffForFailure returns the delay to wait after the given zero-based
// attempt index fails: attemptIndex + 1 seconds.
func backoffForFailure(attemptIndex int) time.Duration {
	return time.Duration(attemptIndex+1) * BRIDGE_BACKOFF_UNIT
}

// shouldRetry reports whether another attempt is allowed after a failure on
// the given zero-based attempt index.
func shouldRetry(err error, attemptIndex, maxRetries int) bool {
	if !IsTemporary(err) {
		Debug("Encountered terminal error (not retrying): %v", err)
		return false
	}
	return attemptIndex < maxRetries
}
