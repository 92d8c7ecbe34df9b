package appserver

import (
	"fmt"

	"appserver-client/internal/infra/config"
)

// NewFromConfig builds a client from a loaded configuration. opts are
// applied after the ones derived from cfg.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Client, error) {
	base := []Option{
		WithRetryPolicy(RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		}),
	}
	if cfg.CircuitBreaker.Enabled {
		base = append(base, WithCircuitBreaker(BreakerConfig{
			MaxFailures: cfg.CircuitBreaker.MaxFailures,
			Timeout:     cfg.CircuitBreaker.Timeout,
			Interval:    cfg.CircuitBreaker.Interval,
		}))
	}
	if cfg.RateLimit.Enabled {
		base = append(base, WithRateLimit(RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}
	opts = append(base, opts...)

	conn := cfg.Connection
	switch conn.Transport {
	case config.TransportWebSocket:
		opts = append([]Option{WithConnectTimeout(conn.ConnectTimeout)}, opts...)
		return NewWebSocketClient(conn.URL, opts...), nil
	case config.TransportPipe:
		return NewProcessClient(LaunchConfig{
			Executable: conn.Executable,
			Args:       conn.Args,
			WorkDir:    conn.WorkDir,
			Env:        conn.Env,
		}, opts...), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", conn.Transport)
	}
}

// InitializeParamsFromConfig builds the initialize payload from the client
// section.
func InitializeParamsFromConfig(cfg config.ClientConfig) InitializeParams {
	p := InitializeParams{
		ClientInfo: ClientInfo{Name: cfg.Name, Title: cfg.Title, Version: cfg.Version},
	}
	if cfg.ExperimentalAPI || len(cfg.OptOutMethods) > 0 {
		p.Capabilities = &Capabilities{
			ExperimentalAPI:           cfg.ExperimentalAPI,
			OptOutNotificationMethods: cfg.OptOutMethods,
		}
	}
	return p
}
