package camunda

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medkit-workers/internal/common/errors"
)

func TestIsRetryableZeebeError(t *testing.T) {
	assert.True(t, IsRetryableZeebeError(stderrors.New("rpc error: code = Unavailable desc = connection refused")))
	assert.True(t, IsRetryableZeebeError(stderrors.New("context deadline exceeded")))
	assert.False(t, IsRetryableZeebeError(stderrors.New("NOT_FOUND: job 42 not found")))
}

func TestBackoffDelay(t *testing.T) {
	rc := &RetryConfig{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, BackoffDelay(rc, 0))
	assert.Equal(t, 2*time.Second, BackoffDelay(rc, 1))
	assert.Equal(t, 4*time.Second, BackoffDelay(rc, 2))
	assert.Equal(t, 5*time.Second, BackoffDelay(rc, 3))
}

func TestMapZeebeError(t *testing.T) {
	transient := errors.Normalize(mapZeebeError(stderrors.New("unavailable"), "complete-job", 2))
	assert.True(t, transient.Retryable)
	assert.Contains(t, transient.Details, "after 2 attempts")

	permanent := errors.Normalize(mapZeebeError(stderrors.New("invalid argument"), "complete-job", 0))
	assert.Equal(t, errors.ErrCodeInternalError, permanent.Code)
}

func TestSendWithRetry(t *testing.T) {
	rc := &RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	t.Run("transient then ok", func(t *testing.T) {
		calls := 0
		err := SendWithRetry(context.Background(), rc, "complete-job", func(context.Context) error {
			calls++
			if calls < 3 {
				return stderrors.New("rpc error: code = Unavailable")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		calls := 0
		err := SendWithRetry(context.Background(), rc, "complete-job", func(context.Context) error {
			calls++
			return stderrors.New("NOT_FOUND: job 42 not found")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.Equal(t, errors.ErrCodeInternalError, errors.Normalize(err).Code)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := SendWithRetry(context.Background(), rc, "complete-job", func(context.Context) error {
			calls++
			return stderrors.New("connection refused")
		})
		require.Error(t, err)
		assert.Equal(t, 4, calls)
		assert.True(t, errors.Normalize(err).Retryable)
	})

	t.Run("canceled context stops backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		slow := &RetryConfig{MaxRetries: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}
		err := SendWithRetry(ctx, slow, "complete-job", func(context.Context) error {
			return stderrors.New("timeout")
		})
		require.ErrorIs(t, err, context.Canceled)
	})
}
