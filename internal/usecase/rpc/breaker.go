package rpc

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"appserver-client/internal/domain"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// BreakerConfig configures the circuit breaker around outbound calls.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before a probe is allowed.
	Timeout time.Duration `yaml:"timeout"`
	// Interval clears failure counts while closed. 0 keeps them until the
	// circuit opens.
	Interval time.Duration `yaml:"interval"`
}

// callBreaker fails calls fast once the peer keeps rate limiting us or
// keeps dropping the connection.
type callBreaker struct {
	cb *gobreaker.CircuitBreaker[domain.JSONValue]
}

func newCallBreaker(cfg BreakerConfig, logger *slog.Logger, onChange func(from, to gobreaker.State)) *callBreaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[domain.JSONValue](gobreaker.Settings{
		Name:        "app-server",
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			if onChange != nil {
				onChange(from, to)
			}
		},
		IsSuccessful: countsAsSuccess,
	})
	return &callBreaker{cb: cb}
}

// countsAsSuccess treats answers from a healthy peer as success, including
// ordinary RPC errors and caller cancellation. Rate limiting and lost
// connections count against the circuit.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	if domain.IsRetryableError(err) {
		return false
	}
	var rpcErr *domain.RPCError
	if errors.As(err, &rpcErr) || errors.Is(err, errLocalDisconnect) {
		return true
	}
	return !errors.Is(err, domain.ErrTerminated)
}

func (b *callBreaker) execute(op string, fn func() (domain.JSONValue, error)) (domain.JSONValue, error) {
	v, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.JSONValue{}, domain.NewClientError(op, domain.ErrCircuitOpen, err.Error())
	}
	return v, err
}

func (b *callBreaker) state() gobreaker.State {
	return b.cb.State()
}
