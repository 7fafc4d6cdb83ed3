package backoff

import (
	"context"
	"errors"
)

// ErrExhausted is returned when all retry attempts have failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// PermanentError wraps an error that must not be retried, such as an
// application-level failure reported by a tool.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Retry executes fn with exponential backoff, up to maxAttempts times.
// fn receives the 1-indexed attempt number. The loop stops early on
// success, on a permanent error (returned unwrapped), or when the
// context is cancelled during an inter-attempt sleep. After the final
// failed attempt the last error is returned wrapped together with
// ErrExhausted.
func Retry[T any](ctx context.Context, policy Policy, maxAttempts int, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := fn(attempt)
		if err == nil {
			return value, nil
		}

		var pe *PermanentError
		if errors.As(err, &pe) {
			return zero, pe.Err
		}
		lastErr = err

		if attempt < maxAttempts {
			if err := SleepAttempt(ctx, policy, attempt); err != nil {
				return zero, err
			}
		}
	}

	return zero, errors.Join(ErrExhausted, lastErr)
}
