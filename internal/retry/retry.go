// Package retry wraps expensive, externally rate-limited calls with bounded
// exponential-backoff retry.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	defaultAttempts = 3
	defaultInitial  = 2 * time.Second
	defaultMax      = 10 * time.Second
)

// Invoker retries a thunk on any error, with no error-kind filtering, and
// propagates the last failure once attempts are exhausted.
type Invoker struct {
	attempts int
	initial  time.Duration
	max      time.Duration
	logger   zerolog.Logger
}

// Option customizes an Invoker.
type Option func(*Invoker)

// WithAttempts sets the total attempt count (including the first call).
func WithAttempts(n int) Option {
	return func(i *Invoker) {
		if n > 0 {
			i.attempts = n
		}
	}
}

// WithDelays sets the initial backoff and its cap.
func WithDelays(initial, max time.Duration) Option {
	return func(i *Invoker) {
		if initial > 0 {
			i.initial = initial
		}
		if max > 0 {
			i.max = max
		}
	}
}

// New constructs an Invoker with the service defaults: 3 attempts, delays
// doubling from 2s and capped at 10s, jittered.
func New(logger zerolog.Logger, opts ...Option) *Invoker {
	inv := &Invoker{
		attempts: defaultAttempts,
		initial:  defaultInitial,
		max:      defaultMax,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Do runs op until it succeeds or attempts are exhausted. The context cancels
// waiting between attempts.
func Do[T any](ctx context.Context, inv *Invoker, op func() (T, error)) (T, error) {
	attempt := 0
	wrapped := func() (T, error) {
		attempt++
		v, err := op()
		if err != nil {
			inv.logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_attempts", inv.attempts).
				Msg("retry: attempt failed")
		}
		return v, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = inv.initial
	policy.MaxInterval = inv.max
	policy.Multiplier = 2
	// Attempts alone bound the loop; MaxElapsedTime would cut retries short.
	policy.MaxElapsedTime = 0

	return backoff.RetryWithData(
		wrapped,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(inv.attempts-1)), ctx),
	)
}
