package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hupe1980/infermesh/core"
)

// RetryConfig tunes the exponential backoff applied to failed attempts.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// InitialDelay is the base delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the growth of per-retry delays.
	MaxDelay time.Duration

	// BackoffMultiplier scales the delay between consecutive retries.
	BackoffMultiplier float64

	// RetryableErrors lists substrings that mark an error as transient
	// in addition to errors classified retryable by type.
	RetryableErrors []string
}

// DefaultEngineRetryConfig is the backend-level retry policy applied to
// individual inference calls.
func DefaultEngineRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialDelay:      200 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
		RetryableErrors:   []string{"timeout", "connection", "temporarily unavailable", "overloaded", "rate limit"},
	}
}

// DefaultTaskRetryConfig is the scheduler-level retry policy applied to
// whole task executions.
func DefaultTaskRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// retryable decides whether err warrants another attempt under cfg.
// Context cancellation is never retried.
func (cfg RetryConfig) retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if core.Retryable(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range cfg.RetryableErrors {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

func (cfg RetryConfig) newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialDelay
	bo.MaxInterval = cfg.MaxDelay
	bo.Multiplier = cfg.BackoffMultiplier
	// Jitter of plus or minus 20 percent around the computed interval.
	bo.RandomizationFactor = 0.2
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// Do runs op with the configured retry policy. It returns the number of
// attempts made and the final error. onAttempt, when non-nil, observes
// each failed attempt before the backoff sleep.
func Do(ctx context.Context, cfg RetryConfig, op func(ctx context.Context) error, onAttempt func(attempt int, err error)) (int, error) {
	bo := cfg.newBackOff()

	attempts := 0
	for {
		attempts++
		err := op(ctx)
		if err == nil {
			return attempts, nil
		}
		if attempts > cfg.MaxRetries || !cfg.retryable(err) {
			return attempts, err
		}
		if onAttempt != nil {
			onAttempt(attempts, err)
		}

		select {
		case <-ctx.Done():
			return attempts, ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}
}
