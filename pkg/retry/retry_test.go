package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDoWithResult(t *testing.T) {
	ctx := context.Background()

	t.Run("success on first attempt", func(t *testing.T) {
		calls := 0
		result, err := DoWithResult(ctx, testConfig(), func() (string, error) {
			calls++
			return "ok", nil
		})

		require.NoError(t, err)
		assert.Equal(t, "ok", result)
		assert.Equal(t, 1, calls)
	})

	t.Run("success after transient failures", func(t *testing.T) {
		calls := 0
		result, err := DoWithResult(ctx, testConfig(), func() (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("transient")
			}
			return 42, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 42, result)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausts attempts and returns last error", func(t *testing.T) {
		calls := 0
		lastErr := errors.New("still broken")
		_, err := DoWithResult(ctx, testConfig(), func() (int, error) {
			calls++
			return 0, lastErr
		})

		assert.ErrorIs(t, err, lastErr)
		assert.Equal(t, 3, calls)
	})

	t.Run("non-retryable error stops immediately", func(t *testing.T) {
		permanent := errors.New("permanent")
		cfg := testConfig()
		cfg.Retryable = func(err error) bool {
			return !errors.Is(err, permanent)
		}

		calls := 0
		_, err := DoWithResult(ctx, cfg, func() (int, error) {
			calls++
			return 0, permanent
		})

		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("invalid max attempts", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxAttempts = 0

		_, err := DoWithResult(ctx, cfg, func() (int, error) {
			return 0, nil
		})

		assert.Error(t, err)
	})

	t.Run("context cancellation stops retries", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)

		calls := 0
		_, err := DoWithResult(cancelled, testConfig(), func() (int, error) {
			calls++
			cancel()
			return 0, errors.New("transient")
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestDo(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testConfig(), func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCalculateDelay(t *testing.T) {
	cfg := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}

	assert.Equal(t, 100*time.Millisecond, calculateDelay(0, cfg))
	assert.Equal(t, 200*time.Millisecond, calculateDelay(1, cfg))
	assert.Equal(t, 400*time.Millisecond, calculateDelay(2, cfg))
	// Capped at MaxDelay
	assert.Equal(t, 1*time.Second, calculateDelay(10, cfg))
	// Negative attempts are clamped
	assert.Equal(t, 100*time.Millisecond, calculateDelay(-1, cfg))
}
