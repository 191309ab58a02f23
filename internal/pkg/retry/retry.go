// internal/pkg/retry/retry.go
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy is a bounded retry schedule.
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration

	// Sleep waits between attempts. Tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Exponential returns a backoff that starts at initial and multiplies by factor
// after each failed attempt, capped at max (zero means no cap).
func Exponential(initial time.Duration, factor float64, max time.Duration) func(int) time.Duration {
	if factor < 1 {
		factor = 1
	}
	return func(attempt int) time.Duration {
		d := float64(initial)
		for i := 1; i < attempt; i++ {
			d *= factor
		}
		out := time.Duration(d)
		if max > 0 && out > max {
			return max
		}
		return out
	}
}

// New builds a policy with exponential backoff.
func New(maxAttempts int, initial time.Duration, factor float64, max time.Duration) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return Policy{
		MaxAttempts: maxAttempts,
		Backoff:     Exponential(initial, factor, max),
		Sleep:       sleepContext,
	}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do runs fn until it succeeds, returns a permanent error, or the attempt
// bound is reached. It returns the number of attempts made and the last error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= max; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if IsPermanent(lastErr) {
			var perm *permanentError
			errors.As(lastErr, &perm)
			return attempt, perm.err
		}
		if attempt == max {
			break
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if err := sleep(ctx, wait); err != nil {
			return attempt, errors.Join(lastErr, err)
		}
	}
	return max, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
