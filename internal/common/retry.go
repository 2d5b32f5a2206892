package common

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig parameterises the retry combinator
type RetryConfig struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // upper bound for any single delay
	Jitter      float64       // fraction of the delay added as random jitter, e.g. 0.2

	// Retryable classifies errors. A nil Retryable retries everything.
	Retryable func(error) bool
}

// DefaultRetryConfig returns the pipeline-wide retry defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
	}
}

// Retry runs fn up to MaxAttempts times with exponential backoff and jitter.
// It returns nil on the first success, the last error otherwise. Context
// cancellation stops the loop between attempts.
func Retry(ctx context.Context, config RetryConfig, fn func() error) error {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}

	var lastErr error
	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := config.BaseDelay << uint(attempt-1)
			if config.MaxDelay > 0 && delay > config.MaxDelay {
				delay = config.MaxDelay
			}
			if config.Jitter > 0 {
				delay += time.Duration(rand.Float64() * config.Jitter * float64(delay))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if config.Retryable != nil && !config.Retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
