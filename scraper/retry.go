package scraper

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Clock abstracts waiting so retry schedules can be tested without sleeping.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Backoff is an exponential retry policy.
type Backoff struct {
	Base        time.Duration
	Multiplier  float64
	Max         time.Duration
	MaxAttempts int
}

// Delay returns the wait after the given failed attempt (1-based):
// Base * Multiplier^(attempt-1), capped at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := b.Base
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 2
	}

	delay := float64(base) * math.Pow(mult, float64(attempt-1))
	if b.Max > 0 && delay > float64(b.Max) {
		return b.Max
	}
	if delay > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

func (b Backoff) attempts() int {
	if b.MaxAttempts <= 0 {
		return 1
	}
	return b.MaxAttempts
}

// RetryNotify is called before waiting for the next attempt.
type RetryNotify func(attempt int, delay time.Duration, err error)

// Retry runs op until it succeeds, returns a non-retryable error, or the policy
// runs out of attempts. It returns the number of attempts made and the last error.
// Cancellation while waiting aborts with the context error wrapped around the last failure.
func Retry(ctx context.Context, policy Backoff, clock Clock, op func(attempt int) error, notify RetryNotify) (int, error) {
	if clock == nil {
		clock = realClock{}
	}

	maxAttempts := policy.attempts()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt - 1, fmt.Errorf("%w after attempt %d: %v", err, attempt-1, lastErr)
			}
			return attempt - 1, err
		}

		lastErr = op(attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if !IsRetryable(lastErr) || attempt == maxAttempts {
			return attempt, lastErr
		}

		delay := policy.Delay(attempt)
		if notify != nil {
			notify(attempt, delay, lastErr)
		}
		select {
		case <-ctx.Done():
			return attempt, fmt.Errorf("%w after attempt %d: %v", ctx.Err(), attempt, lastErr)
		case <-clock.After(delay):
		}
	}
	return maxAttempts, lastErr
}
