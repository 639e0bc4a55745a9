package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryPolicy is a bounded retry schedule with a fixed backoff between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so Attempt stops retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Attempt calls fn until it succeeds, returns a permanent error, the context
// ends, or the policy runs out of attempts. The backoff is applied between
// attempts only. It returns the value, the number of attempts made and the
// last error.
func Attempt[T any](
	ctx context.Context,
	policy RetryPolicy,
	pauser Pauser,
	fn func(ctx context.Context, attempt int) (T, error),
) (T, int, error) {
	var zero T
	if pauser == nil {
		pauser = TimerPauser{}
	}
	limit := policy.attempts()
	var lastErr error
	for attempt := 1; attempt <= limit; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, err
		}
		value, err := fn(ctx, attempt)
		if err == nil {
			return value, attempt, nil
		}
		lastErr = err
		if IsPermanent(err) || ctx.Err() != nil {
			return zero, attempt, err
		}
		if attempt < limit {
			if perr := pauser.Pause(ctx, policy.Backoff); perr != nil {
				return zero, attempt, fmt.Errorf("retry backoff: %w", perr)
			}
		}
	}
	return zero, limit, lastErr
}
