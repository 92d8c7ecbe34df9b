package rpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appserver-client/internal/domain"
)

func noJitter(int64) int64 { return 0 }

func maxJitter(n int64) int64 { return n - 1 }

func TestRetryDelay(t *testing.T) {
	p := DefaultRetryPolicy()

	tests := []struct {
		attempt int
		jitter  JitterFunc
		want    time.Duration
	}{
		{1, noJitter, 200 * time.Millisecond},
		{2, noJitter, 400 * time.Millisecond},
		{3, noJitter, 800 * time.Millisecond},
		{3, maxJitter, 800*time.Millisecond + 200*time.Millisecond - 1},
		{0, noJitter, 200 * time.Millisecond},
		{-3, noJitter, 200 * time.Millisecond},
		{5, noJitter, 3200 * time.Millisecond},
		{5, maxJitter, 4*time.Second - 1},
		{6, noJitter, 5 * time.Second},
		{6, maxJitter, 5 * time.Second},
		{64, maxJitter, 5 * time.Second},
		{1 << 20, maxJitter, 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.attempt, tt.jitter), "attempt %d", tt.attempt)
	}
}

func TestRetryDelayRandomJitterBounds(t *testing.T) {
	p := DefaultRetryPolicy()
	for range 1000 {
		d := p.Delay(3, nil)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.Less(t, d, time.Second)
	}
	for attempt := 1; attempt < 100; attempt++ {
		assert.LessOrEqual(t, p.Delay(attempt, nil), p.MaxDelay)
	}
}

func TestRetryDelayTinyBase(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: 1, MaxDelay: 10}
	// quarter of 1ns rounds down; jitter still gets a range of one
	assert.Equal(t, time.Duration(1), p.Delay(1, maxJitter))
}

func TestRetryPolicyWithDefaults(t *testing.T) {
	assert.Equal(t, DefaultRetryPolicy(), RetryPolicy{}.withDefaults())
	custom := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Second}
	assert.Equal(t, custom, custom.withDefaults())
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func rateLimited() error {
	return &domain.RPCError{Code: domain.RPCCodeRateLimited, Message: "rate limited"}
}

func TestWithRetryRecovers(t *testing.T) {
	var attempts []int
	var observed []int
	v, err := withRetry(context.Background(), fastPolicy(5), noJitter,
		func(attempt int) (string, error) {
			attempts = append(attempts, attempt)
			if attempt < 3 {
				return "", rateLimited()
			}
			return "ok", nil
		},
		func(attempt int, delay time.Duration, err error) {
			observed = append(observed, attempt)
			assert.True(t, domain.IsRetryableError(err))
			assert.Positive(t, delay)
		},
	)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, []int{1, 2, 3}, attempts)
	assert.Equal(t, []int{1, 2}, observed)
}

func TestWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), fastPolicy(3), noJitter,
		func(int) (struct{}, error) {
			calls++
			return struct{}{}, rateLimited()
		}, nil)
	assert.Equal(t, 3, calls)
	assert.True(t, domain.IsRetryableError(err))
}

func TestWithRetryOnlyTransientErrors(t *testing.T) {
	errs := []error{
		&domain.RPCError{Code: domain.RPCCodeInvalidParams, Message: "bad params"},
		&domain.RPCError{Code: domain.RPCCodeInternalError, Message: "boom"},
		domain.NewClientError("rpc.Call", domain.ErrNotConnected, ""),
		domain.NewTerminatedError(nil),
		errors.New("plain"),
	}
	for _, want := range errs {
		calls := 0
		_, err := withRetry(context.Background(), fastPolicy(5), noJitter,
			func(int) (int, error) {
				calls++
				return 0, want
			}, nil)
		assert.Equal(t, 1, calls, "error %v", want)
		assert.Equal(t, want, err)
	}
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	calls := 0
	_, err := withRetry(ctx, slow, noJitter,
		func(int) (int, error) {
			calls++
			return 0, rateLimited()
		},
		func(int, time.Duration, error) { cancel() },
	)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}
