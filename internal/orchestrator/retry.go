package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/adcraft/ad-pipeline/internal/apierr"
)

// RetryConfig bounds retries of transient remote failures: rate limits,
// server errors, and transport failures. Permanent failures (auth, malformed
// request, missing remote resource) are never retried.
type RetryConfig struct {
	MaxAttempts    int           // total attempts, including the first
	InitialBackoff time.Duration // doubles each retry
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    4,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     8 * time.Second,
	}
}

func (c *RetryConfig) withDefaults() {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultRetryConfig().InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultRetryConfig().MaxBackoff
	}
}

// withRetry executes fn with exponential backoff on retryable errors.
// Non-retryable errors and context cancellation return immediately.
func withRetry[T any](ctx context.Context, cfg RetryConfig, log zerolog.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		v, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				log.Debug().Str("op", op).Int("attempt", attempt+1).Msg("retry succeeded")
			}
			return v, nil
		}
		lastErr = err

		if !apierr.IsRetryable(err) {
			return zero, err
		}

		if attempt < cfg.MaxAttempts-1 {
			backoff := backoffFor(cfg, attempt)
			log.Debug().Str("op", op).Int("attempt", attempt+1).Dur("backoff", backoff).Err(err).Msg("transient failure, retrying")

			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return zero, fmt.Errorf("%s: giving up after %d attempts: %w", op, cfg.MaxAttempts, lastErr)
}

// retryDo is withRetry for operations without a result.
func retryDo(ctx context.Context, cfg RetryConfig, log zerolog.Logger, op string, fn func(context.Context) error) error {
	_, err := withRetry(ctx, cfg, log, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func backoffFor(cfg RetryConfig, attempt int) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(2, float64(attempt))
	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	return time.Duration(backoff)
}
