package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adcraft/ad-pipeline/internal/apierr"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond}
}

func TestWithRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	v, err := withRetry(context.Background(), fastRetry(), zerolog.Nop(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestWithRetryRecoversFromTransientFailure(t *testing.T) {
	calls := 0
	v, err := withRetry(context.Background(), fastRetry(), zerolog.Nop(), "op", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", apierr.New("svc", http.StatusServiceUnavailable, "unavailable")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestWithRetryStopsOnPermanentFailure(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), fastRetry(), zerolog.Nop(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, apierr.New("svc", http.StatusBadRequest, "malformed")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), fastRetry(), zerolog.Nop(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, apierr.New("svc", http.StatusTooManyRequests, "rate limited")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "giving up after 3 attempts")
}

func TestWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := withRetry(ctx, fastRetry(), zerolog.Nop(), "op", func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, apierr.Wrap("svc", "transport", errors.New("reset"))
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestWithRetryDoesNotRetryPlainErrors(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), fastRetry(), zerolog.Nop(), "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("not classified")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffForIsCapped(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 10, InitialBackoff: time.Second, MaxBackoff: 8 * time.Second}

	assert.Equal(t, 1*time.Second, backoffFor(cfg, 0))
	assert.Equal(t, 2*time.Second, backoffFor(cfg, 1))
	assert.Equal(t, 4*time.Second, backoffFor(cfg, 2))
	assert.Equal(t, 8*time.Second, backoffFor(cfg, 3))
	assert.Equal(t, 8*time.Second, backoffFor(cfg, 6))
}

func TestRetryConfigDefaults(t *testing.T) {
	var cfg RetryConfig
	cfg.withDefaults()

	assert.Equal(t, 4, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.InitialBackoff)
	assert.Equal(t, 8*time.Second, cfg.MaxBackoff)
}
