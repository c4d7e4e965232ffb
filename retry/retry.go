// Package retry retries remote calls with exponential backoff and jitter.
// Errors are classified by their canonical status code, so only transient
// failures such as Unavailable or ResourceExhausted are retried.
package retry

import (
	"context"
	"errors"
	"slices"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Config controls the retry behaviour of [Do].
type Config struct {
	// MaxAttempts is the maximum number of times fn is called (including the
	// first attempt). Values ≤ 1 mean no retries.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Subsequent retries use
	// exponential back-off: BaseDelay * 2^attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed back-off delay and any server-provided
	// Retry-After hint.
	MaxDelay time.Duration

	// Jitter adds randomness to the delay. A value of 0.2 means ±20 % of
	// the computed delay. Zero disables jitter.
	Jitter float64

	// RetryCodes lists the status codes that are considered retryable.
	// An empty list means no error is retried.
	RetryCodes []codes.Code

	// OnRetry, when set, is called before sleeping for the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig retries rate-limited and unavailable responses three times.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Jitter:      0.2,
		RetryCodes:  []codes.Code{codes.Unavailable, codes.ResourceExhausted},
	}
}

// retryAfter is implemented by errors that carry a server back-off hint.
type retryAfter interface {
	RetryAfter() time.Duration
}

// Retryable reports whether err carries one of cfg.RetryCodes.
func (cfg Config) Retryable(err error) bool {
	st, ok := status.FromError(err)
	return ok && slices.Contains(cfg.RetryCodes, st.Code())
}

// Do calls fn up to cfg.MaxAttempts times, retrying only when the returned
// error is [Config.Retryable]. Between attempts it waits for the larger of
// the back-off delay and the error's Retry-After hint, capped at MaxDelay.
//
// The context is checked before every retry; if ctx is done the function
// returns immediately with the context error.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxAttempts, 1)

	for i := range attempts {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if i == attempts-1 || !cfg.Retryable(err) {
			return zero, err
		}

		delay := backoff(cfg, i)
		var ra retryAfter
		if errors.As(err, &ra) && ra.RetryAfter() > delay {
			delay = min(ra.RetryAfter(), cfg.MaxDelay)
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(i+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	// Unreachable, but keeps the compiler happy.
	return zero, nil
}
