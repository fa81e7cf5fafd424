package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// RetryPolicy is an explicit, testable description of how authoritative
// lookups are retried: attempt count, backoff curve, and which error classes
// are worth retrying. It replaces inline retry handling at call sites.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultRetryPolicy retries twice more after the first failure, backing off
// 250ms then 750ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    250 * time.Millisecond,
		BackoffMultiplier: 3,
		MaxBackoff:        5 * time.Second,
	}
}

// StatusError is an HTTP-level failure from the classification service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("classification service returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether an error class is worth another attempt:
// transient network failures, per-attempt timeouts, rate limiting, and
// server-side errors. Client errors (4xx other than 429) are permanent.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 429 || statusErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// A timed-out attempt may succeed on retry as long as the caller's
	// overall deadline still has room.
	return errors.Is(err, context.DeadlineExceeded)
}

// Do runs fn under the policy. Each attempt gets its own deadline via
// attemptCtx; the loop stops early when ctx itself is done, so a batch
// cancellation is never stretched by backoff sleeps.
func (p RetryPolicy) Do(ctx context.Context, attemptTimeout time.Duration, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	backoff := p.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if !Retryable(err) || attempt == attempts {
			break
		}
		if ctx.Err() != nil {
			// The batch deadline expired; report that, not the attempt error.
			return ctx.Err()
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff = time.Duration(float64(backoff) * p.BackoffMultiplier)
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}

	return lastErr
}
