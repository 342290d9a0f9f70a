// Package retry runs an operation until it succeeds, fails permanently or
// runs out of attempts.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// Policy bounds a retry loop. Errors for which Retryable returns false end
// the loop at once; a nil Retryable retries every error.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
	Retryable   func(error) bool

	// OnRetry is called before each wait with the attempt that just failed.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Outcome is the result of Do. GaveUp is set only when every attempt failed
// with a retryable error.
type Outcome struct {
	Succeeded bool
	GaveUp    bool
	Attempts  int
	Err       error
}

func (p Policy) retryable(err error) bool {
	return p.Retryable == nil || p.Retryable(err)
}

// Do runs op under p.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) Outcome {
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}

	var out Outcome
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Interval), uint64(max-1)),
		ctx,
	)
	err := backoff.RetryNotify(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		out.Attempts++
		err := op(ctx)
		if err != nil && !p.retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(out.Attempts, err, wait)
		}
	})
	if perm, ok := err.(*backoff.PermanentError); ok {
		err = perm.Err
	}

	switch {
	case err == nil:
		out.Succeeded = true
	case ctx.Err() != nil:
		out.Err = ctx.Err()
	default:
		out.Err = err
		out.GaveUp = p.retryable(err)
	}
	return out
}
