package rpc

import (
	"context"

	"golang.org/x/time/rate"

	"appserver-client/internal/domain"
)

// RateLimitConfig bounds how fast outbound calls are issued.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// newLimiter returns nil, meaning unlimited, for a non-positive rate.
func newLimiter(cfg RateLimitConfig) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

// waitTurn blocks until the limiter admits one call. A nil limiter admits
// everything.
func waitTurn(ctx context.Context, op string, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.WrapOp(op, ctxErr)
		}
		return domain.NewClientError(op, domain.ErrRateLimit, err.Error())
	}
	return nil
}
