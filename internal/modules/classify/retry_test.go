package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		BackoffMultiplier: 2,
		MaxBackoff:        5 * time.Millisecond,
	}
}

func TestRetryableClassification(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(errors.New("parse failure")))
	assert.False(t, Retryable(&StatusError{StatusCode: 400}))
	assert.False(t, Retryable(&StatusError{StatusCode: 404}))
	assert.True(t, Retryable(&StatusError{StatusCode: 429}))
	assert.True(t, Retryable(&StatusError{StatusCode: 500}))
	assert.True(t, Retryable(&StatusError{StatusCode: 503}))
	assert.True(t, Retryable(context.DeadlineExceeded))
}

func TestRetryDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), time.Second, func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryDoRetriesTransientFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), time.Second, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &StatusError{StatusCode: 503}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := &StatusError{StatusCode: 400}
	err := fastPolicy(3).Do(context.Background(), time.Second, func(ctx context.Context) error {
		calls++
		return permanent
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 400, statusErr.StatusCode)
}

func TestRetryDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), time.Second, func(ctx context.Context) error {
		calls++
		return &StatusError{StatusCode: 500}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryDoRespectsParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := fastPolicy(5).Do(ctx, time.Second, func(attemptCtx context.Context) error {
		calls++
		cancel()
		return &StatusError{StatusCode: 500}
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryDoAppliesAttemptTimeout(t *testing.T) {
	err := fastPolicy(1).Do(context.Background(), 5*time.Millisecond, func(attemptCtx context.Context) error {
		<-attemptCtx.Done()
		return attemptCtx.Err()
	})

	require.ErrorIs(t, err, context.DeadlineExceeded)
}
