// Package retry wraps idempotent, externally observable calls with bounded
// exponential backoff and jitter. Failures are split into retryable classes
// (timeouts, rate limits, transient server errors) and permanent ones, which
// stop the loop after the first attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	retrygo "github.com/avast/retry-go/v4"
)

// Policy configures retry behavior.
type Policy struct {
	// Attempts is the total number of tries, including the first (default: 3).
	Attempts uint
	// BaseDelay is the backoff base; the n-th retry waits BaseDelay * 2^n
	// plus jitter (default: 500ms).
	BaseDelay time.Duration
	// MaxDelay caps any single wait (default: 30s).
	MaxDelay time.Duration
	// MaxJitter bounds the random delay added to each wait
	// (default: BaseDelay / 4).
	MaxJitter time.Duration
	// AttemptTimeout bounds each attempt, not the whole call. Zero disables it.
	AttemptTimeout time.Duration
	// Retryable classifies an operation error. Defaults to IsRetryable.
	Retryable func(error) bool
	// Name labels log lines.
	Name   string
	Logger *slog.Logger
}

// DefaultPolicy returns the standard policy for AI calls.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  30 * time.Second,
		MaxJitter: 125 * time.Millisecond,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Attempts == 0 {
		p.Attempts = d.Attempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.MaxJitter <= 0 {
		p.MaxJitter = p.BaseDelay / 4
	}
	if p.Retryable == nil {
		p.Retryable = IsRetryable
	}
	if p.Name == "" {
		p.Name = "operation"
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return p
}

// ExhaustedError reports that every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// PermanentError reports a non-retryable failure. Attempts is the number of
// tries made before it occurred.
type PermanentError struct {
	Attempts int
	Err      error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("non-retryable failure on attempt %d: %v", e.Attempts, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsExhausted reports whether err came from running out of attempts.
func IsExhausted(err error) bool {
	var e *ExhaustedError
	return errors.As(err, &e)
}

// IsPermanent reports whether err came from a non-retryable failure.
func IsPermanent(err error) bool {
	var e *PermanentError
	return errors.As(err, &e)
}

// IsRetryable is the default classifier. Errors that declare themselves
// transient (Transient() bool) are retryable, as are deadline overruns of a
// single attempt. Everything else is permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var t interface{ Transient() bool }
	if errors.As(err, &t) {
		return t.Transient()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// retryDelayer is implemented by errors that carry a server-requested wait,
// such as a rate-limit response with Retry-After.
type retryDelayer interface {
	RetryDelay() time.Duration
}

// Do runs op until it succeeds, fails permanently, exhausts the policy's
// attempts, or ctx is cancelled. ctx is checked before every attempt and
// during every backoff wait; cancellation returns ctx.Err() unwrapped.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()
	var zero T

	var attempts int
	var lastErr error

	value, err := retrygo.DoWithData(
		func() (T, error) {
			if err := ctx.Err(); err != nil {
				return zero, retrygo.Unrecoverable(err)
			}
			attempts++

			actx := ctx
			if p.AttemptTimeout > 0 {
				var cancel context.CancelFunc
				actx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
				defer cancel()
			}

			v, err := op(actx)
			if err != nil {
				lastErr = err
				return zero, err
			}
			return v, nil
		},
		retrygo.Context(ctx),
		retrygo.Attempts(p.Attempts),
		retrygo.Delay(p.BaseDelay),
		retrygo.MaxDelay(p.MaxDelay),
		retrygo.MaxJitter(p.MaxJitter),
		retrygo.DelayType(func(n uint, err error, config *retrygo.Config) time.Duration {
			var rd retryDelayer
			if errors.As(err, &rd) && rd.RetryDelay() > 0 {
				return rd.RetryDelay()
			}
			return retrygo.CombineDelay(retrygo.BackOffDelay, retrygo.RandomDelay)(n, err, config)
		}),
		retrygo.RetryIf(func(err error) bool {
			return ctx.Err() == nil && p.Retryable(err)
		}),
		retrygo.OnRetry(func(n uint, err error) {
			p.Logger.Debug("retrying after failure",
				"operation", p.Name,
				"attempt", n+1,
				"max_attempts", p.Attempts,
				"error", err)
		}),
		retrygo.LastErrorOnly(true),
	)
	if err == nil {
		return value, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, ctxErr
	}
	if lastErr == nil {
		return zero, err
	}
	if !p.Retryable(lastErr) {
		p.Logger.Debug("non-retryable failure", "operation", p.Name, "attempt", attempts, "error", lastErr)
		return zero, &PermanentError{Attempts: attempts, Err: lastErr}
	}
	p.Logger.Warn("retries exhausted", "operation", p.Name, "attempts", attempts, "error", lastErr)
	return zero, &ExhaustedError{Attempts: attempts, Err: lastErr}
}

// Execute is Do for operations without a result value.
func (p Policy) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
