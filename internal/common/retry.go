package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tallyhq/tally/internal/service"
)

var (
	// ErrRateLimit indicates the validation provider throttled the request.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrMaxRetries indicates that all retry attempts have been exhausted.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// RetryableError wraps an error with retry-specific metadata.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// WithRetry runs operation with exponential backoff until it succeeds, a
// non-retryable error occurs, the attempts run out, or ctx ends. A
// rate-limited attempt waits the full MaxDelay before the next try.
func WithRetry(ctx context.Context, operation func() error, opts service.RetryOptions) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}

	for attempt := 1; ; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		var retryable *RetryableError
		if errors.As(err, &retryable) && !retryable.Retryable {
			return err
		}
		if attempt == opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %v", ErrMaxRetries, opts.MaxAttempts, err)
		}

		delay := backoff(attempt, opts)
		if errors.Is(err, ErrRateLimit) {
			// Throttled: back off all the way instead of probing the limit.
			delay = opts.MaxDelay
		}

		slog.Warn("Operation failed, retrying",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// backoff returns the delay before the next attempt:
// InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func backoff(attempt int, opts service.RetryOptions) time.Duration {
	delay := opts.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * opts.Multiplier)
		if delay >= opts.MaxDelay {
			return opts.MaxDelay
		}
	}
	return delay
}
