// Package retry provides the bounded retry-with-backoff policy applied to
// every call to the analysis service.
package retry

import (
	"context"
	"time"
)

// Retry defaults
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 30 * time.Second
	DefaultMultiplier  = 2.0
)

// Policy configures exponential backoff retry behavior
type Policy struct {
	MaxAttempts int           // Total attempts including the first call
	BaseDelay   time.Duration // Initial delay between attempts
	MaxDelay    time.Duration // Maximum delay between attempts
	Multiplier  float64       // Exponential backoff multiplier

	// Retryable decides whether a failed attempt may be repeated.
	// A nil Retryable retries every error.
	Retryable func(error) bool
}

// DefaultPolicy returns sensible defaults for API retry
func DefaultPolicy(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Multiplier:  DefaultMultiplier,
		Retryable:   retryable,
	}
}

// Delay returns the wait before attempt number next (2-based)
func (p Policy) Delay(next int) time.Duration {
	d := p.BaseDelay
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	for i := 2; i < next; i++ {
		d = time.Duration(float64(d) * mult)
		if p.MaxDelay > 0 && d > p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do executes fn with exponential backoff until it succeeds, returns a
// non-retryable error, or the attempt budget is spent. It returns the number
// of attempts made. Retry is skipped on context cancellation.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	var zero T
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := fn(ctx, attempt)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return zero, attempt, ctx.Err()
		}

		if p.Retryable != nil && !p.Retryable(err) {
			return zero, attempt, err
		}

		if attempt < maxAttempts {
			timer := time.NewTimer(p.Delay(attempt + 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, attempt, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return zero, maxAttempts, lastErr
}
