// Package retry provides a generic retry helper with exponential backoff and
// jitter. Audit writers wrap storage calls with it so that a transient
// database hiccup does not lose an entry.
package retry

import (
	"context"
	"math/rand/v2"
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

	// MaxDelay caps the computed back-off delay.
	MaxDelay time.Duration

	// Jitter adds randomness to the delay. A value of 0.2 means ±20 % of
	// the computed delay. Zero disables jitter.
	Jitter float64

	// Retryable decides whether an error is worth another attempt. When nil,
	// RetryCodes is consulted instead.
	Retryable func(error) bool

	// RetryCodes lists the gRPC status codes that are considered retryable
	// when Retryable is nil. An empty list means no error is retried.
	RetryCodes []codes.Code
}

// Always retries every error. Storage writers use it because driver errors
// carry no status code.
func Always(error) bool { return true }

func (c Config) retryable(err error) bool {
	if c.Retryable != nil {
		return c.Retryable(err)
	}
	st, ok := status.FromError(err)
	return ok && slices.Contains(c.RetryCodes, st.Code())
}

// delay is the wait before retry number attempt (0-indexed): BaseDelay
// doubled per attempt, capped at MaxDelay, then spread by ±Jitter.
func (c Config) delay(attempt int) time.Duration {
	d := c.BaseDelay
	for range attempt {
		if d >= c.MaxDelay {
			break
		}
		d *= 2
	}
	d = min(d, c.MaxDelay)
	if c.Jitter > 0 {
		d += time.Duration(float64(d) * c.Jitter * (rand.Float64()*2 - 1))
	}
	return max(d, 0)
}

// Do calls fn up to cfg.MaxAttempts times, retrying only when cfg considers
// the returned error retryable. Between attempts an exponential back-off
// delay (with optional jitter) is applied.
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

		if i == attempts-1 || !cfg.retryable(err) {
			return zero, err
		}

		timer := time.NewTimer(cfg.delay(i))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, nil
}
