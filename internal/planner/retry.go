package planner

import (
	"context"
	"time"
)

// RetryPolicy bounds the local retry of a single stage call after a quota
// error. MaxAttempts counts every invocation, the first one included.
type RetryPolicy struct {
	MaxAttempts int
	// Backoff returns the wait after the given failed attempt (1-based).
	Backoff func(attempt int) time.Duration
}

// DefaultRetryPolicy is 3 attempts with a 2s, 4s linear backoff.
func DefaultRetryPolicy() RetryPolicy {
	return LinearBackoff(3, 2*time.Second)
}

// LinearBackoff waits base*attempt between attempts.
func LinearBackoff(maxAttempts int, base time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff: func(attempt int) time.Duration {
			return base * time.Duration(attempt)
		},
	}
}

func (r RetryPolicy) attempts() int {
	if r.MaxAttempts < 1 {
		return 1
	}
	return r.MaxAttempts
}

func (r RetryPolicy) delay(attempt int) time.Duration {
	if r.Backoff == nil {
		return 0
	}
	return r.Backoff(attempt)
}

// sleepCtx blocks for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
