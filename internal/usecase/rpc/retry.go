package rpc

import (
	"context"
	"math/rand/v2"
	"time"

	"appserver-client/internal/domain"
)

// Default retry settings.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 200 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second

	maxBackoffShift = 30
)

// RetryPolicy controls CallWithRetry. Only RPC errors with the rate-limited
// code are retried.
type RetryPolicy struct {
	// MaxAttempts counts the first call.
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// DefaultRetryPolicy returns 5 attempts starting at 200ms, capped at 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

// JitterFunc returns a value in [0, n). n is always positive.
type JitterFunc func(n int64) int64

// Delay returns the wait after failed attempt number attempt (1-based):
// base*2^(attempt-1) capped at MaxDelay, plus jitter below a quarter of
// that, capped at MaxDelay again. A nil jitter uses math/rand.
func (p RetryPolicy) Delay(attempt int, jitter JitterFunc) time.Duration {
	if jitter == nil {
		jitter = rand.Int64N
	}
	shift := min(max(attempt-1, 0), maxBackoffShift)
	multiplier := int64(1) << shift

	base, ceiling := int64(p.BaseDelay), int64(p.MaxDelay)
	exponential := ceiling
	if base <= ceiling/multiplier {
		exponential = min(base*multiplier, ceiling)
	}

	jitterCap := max(exponential/4, 1)
	return time.Duration(min(exponential+jitter(jitterCap), ceiling))
}

// retryObserver is told about each retry before the wait starts.
type retryObserver func(attempt int, delay time.Duration, err error)

// withRetry runs call until it succeeds, fails with a non-transient error,
// or MaxAttempts is reached. Waits honour ctx.
func withRetry[T any](ctx context.Context, p RetryPolicy, jitter JitterFunc, call func(attempt int) (T, error), observe retryObserver) (T, error) {
	p = p.withDefaults()
	for attempt := 1; ; attempt++ {
		v, err := call(attempt)
		if err == nil || !domain.IsRetryableError(err) || attempt >= p.MaxAttempts {
			return v, err
		}

		delay := p.Delay(attempt, jitter)
		if observe != nil {
			observe(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, domain.WrapOp("rpc.CallWithRetry", ctx.Err())
		case <-timer.C:
		}
	}
}
