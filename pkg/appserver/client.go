// Package appserver is the public client for a Codex-style app-server.
//
// A Client owns one connection at a time over either a WebSocket or the
// stdio of a child process. Calls are correlated by id; notifications, peer
// requests, diagnostics and disconnects arrive on Inbound in wire order.
//
//	c := appserver.NewProcessClient(appserver.DefaultLaunchConfig())
//	if err := c.Connect(ctx); err != nil { ... }
//	defer c.Close()
//	res, err := c.Handshake(ctx, appserver.InitializeParams{ClientInfo: info})
package appserver

import (
	"context"
	"crypto/tls"
	"log/slog"
	"time"

	"appserver-client/internal/adapter/transport/pipe"
	"appserver-client/internal/adapter/transport/websocket"
	"appserver-client/internal/domain"
	"appserver-client/internal/usecase/rpc"
)

// Re-exported domain types.
type (
	JSONValue        = domain.JSONValue
	RequestID        = domain.RequestID
	RPCError         = domain.RPCError
	ClientError      = domain.ClientError
	TerminatedError  = domain.TerminatedError
	InboundMessage   = domain.InboundMessage
	InboundKind      = domain.InboundKind
	Notification     = domain.Notification
	PeerRequest      = domain.PeerRequest
	ConnectionState  = domain.ConnectionState
	ConnectionStatus = domain.ConnectionStatus
	Event            = domain.Event
	EventBus         = domain.EventBus
	LaunchConfig     = pipe.LaunchConfig
	RetryPolicy      = rpc.RetryPolicy
	BreakerConfig    = rpc.BreakerConfig
	RateLimitConfig  = rpc.RateLimitConfig
)

// Inbound message kinds.
const (
	InboundNotification = domain.InboundNotification
	InboundRequest      = domain.InboundRequest
	InboundDiagnostic   = domain.InboundDiagnostic
	InboundDisconnected = domain.InboundDisconnected
)

// Re-exported sentinel errors for errors.Is.
var (
	ErrNotConnected         = domain.ErrNotConnected
	ErrAlreadyConnected     = domain.ErrAlreadyConnected
	ErrUnsupportedTransport = domain.ErrUnsupportedTransport
	ErrInvalidURL           = domain.ErrInvalidURL
	ErrHandshakeFailed      = domain.ErrHandshakeFailed
	ErrProtocolViolation    = domain.ErrProtocolViolation
	ErrEncodeFailure        = domain.ErrEncodeFailure
	ErrTerminated           = domain.ErrTerminated
	ErrCircuitOpen          = domain.ErrCircuitOpen
	ErrRateLimit            = domain.ErrRateLimit
)

// DefaultLaunchConfig runs `/usr/bin/env codex app-server`.
func DefaultLaunchConfig() LaunchConfig { return pipe.DefaultLaunchConfig() }

// DefaultRetryPolicy is 5 attempts from 200ms, capped at 5s.
func DefaultRetryPolicy() RetryPolicy { return rpc.DefaultRetryPolicy() }

// IsRetryableError reports whether err carries the rate-limited code.
func IsRetryableError(err error) bool { return domain.IsRetryableError(err) }

type options struct {
	logger         *slog.Logger
	bus            domain.EventBus
	retry          *RetryPolicy
	breaker        *BreakerConfig
	rateLimit      *RateLimitConfig
	jitter         rpc.JitterFunc
	tlsConfig      *tls.Config
	connectTimeout time.Duration
}

// Option configures a Client.
type Option func(*options)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithEventBus publishes lifecycle events (connection, calls, inbound traffic).
func WithEventBus(bus EventBus) Option {
	return func(o *options) { o.bus = bus }
}

// WithRetryPolicy sets the policy used by CallWithRetry.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) { o.retry = &p }
}

// WithCircuitBreaker fails calls fast after repeated rate limiting or lost
// connections.
func WithCircuitBreaker(cfg BreakerConfig) Option {
	return func(o *options) { o.breaker = &cfg }
}

// WithRateLimit throttles outbound calls.
func WithRateLimit(cfg RateLimitConfig) Option {
	return func(o *options) { o.rateLimit = &cfg }
}

// WithJitter replaces the random retry jitter; fn returns a value in [0, n).
func WithJitter(fn func(n int64) int64) Option {
	return func(o *options) { o.jitter = fn }
}

// WithTLSConfig is used for wss:// URLs.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *options) { o.tlsConfig = cfg }
}

// WithConnectTimeout bounds the WebSocket dial and handshake.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) { o.connectTimeout = d }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Client is safe for concurrent use.
type Client struct {
	session *rpc.Session
}

// NewWebSocketClient connects to a ws:// or wss:// endpoint on Connect.
func NewWebSocketClient(url string, opts ...Option) *Client {
	o := buildOptions(opts)
	wsOpts := []websocket.Option{websocket.WithLogger(o.logger)}
	if o.tlsConfig != nil {
		wsOpts = append(wsOpts, websocket.WithTLSConfig(o.tlsConfig))
	}
	if o.connectTimeout > 0 {
		wsOpts = append(wsOpts, websocket.WithConnectTimeout(o.connectTimeout))
	}
	return newClient(func() (domain.Transport, error) {
		return websocket.New(url, wsOpts...), nil
	}, o)
}

// NewProcessClient launches the app-server as a child process on Connect
// and talks to it over newline-delimited stdio.
func NewProcessClient(launch LaunchConfig, opts ...Option) *Client {
	o := buildOptions(opts)
	return newClient(func() (domain.Transport, error) {
		return pipe.New(launch, pipe.WithLogger(o.logger)), nil
	}, o)
}

// NewClient uses a caller-supplied transport factory.
func NewClient(factory domain.TransportFactory, opts ...Option) *Client {
	return newClient(factory, buildOptions(opts))
}

func newClient(factory domain.TransportFactory, o options) *Client {
	sessOpts := []rpc.Option{rpc.WithLogger(o.logger)}
	if o.bus != nil {
		sessOpts = append(sessOpts, rpc.WithEventBus(o.bus))
	}
	if o.retry != nil {
		sessOpts = append(sessOpts, rpc.WithRetryPolicy(*o.retry))
	}
	if o.breaker != nil {
		sessOpts = append(sessOpts, rpc.WithCircuitBreaker(*o.breaker))
	}
	if o.rateLimit != nil {
		sessOpts = append(sessOpts, rpc.WithRateLimit(*o.rateLimit))
	}
	if o.jitter != nil {
		sessOpts = append(sessOpts, rpc.WithJitter(o.jitter))
	}
	return &Client{session: rpc.New(factory, sessOpts...)}
}

// Connect opens the connection. Clients may reconnect after a disconnect.
func (c *Client) Connect(ctx context.Context) error { return c.session.Connect(ctx) }

// Disconnect closes the connection; pending calls fail with ErrTerminated.
func (c *Client) Disconnect() error { return c.session.Disconnect() }

// Close disconnects for good and closes Inbound.
func (c *Client) Close() error { return c.session.Close() }

// State returns the connection state.
func (c *Client) State() ConnectionState { return c.session.State() }

// ConnectionID identifies the live connection; empty when disconnected.
func (c *Client) ConnectionID() string { return c.session.ConnectionID() }

// Pending reports how many calls await a response.
func (c *Client) Pending() int { return c.session.Pending() }

// CircuitState is "closed", "half-open", "open" or "disabled".
func (c *Client) CircuitState() string { return c.session.CircuitState() }

// Inbound delivers everything the peer sends that is not a call result.
func (c *Client) Inbound() <-chan InboundMessage { return c.session.Inbound() }

// Call sends method with params (nil omits them) and waits for the result.
func (c *Client) Call(ctx context.Context, method string, params *JSONValue) (JSONValue, error) {
	return c.session.Call(ctx, method, params)
}

// CallWithRetry is Call retried on rate-limit errors with exponential backoff.
func (c *Client) CallWithRetry(ctx context.Context, method string, params *JSONValue) (JSONValue, error) {
	return c.session.CallWithRetry(ctx, method, params)
}

// CallWithPolicy is CallWithRetry with an explicit policy.
func (c *Client) CallWithPolicy(ctx context.Context, policy RetryPolicy, method string, params *JSONValue) (JSONValue, error) {
	return c.session.CallWithPolicy(ctx, policy, method, params)
}

// Notify sends a notification.
func (c *Client) Notify(ctx context.Context, method string, params *JSONValue) error {
	return c.session.Notify(ctx, method, params)
}

// Respond answers a peer request.
func (c *Client) Respond(ctx context.Context, id RequestID, result JSONValue) error {
	return c.session.Respond(ctx, id, result)
}

// RespondError answers a peer request with an error.
func (c *Client) RespondError(ctx context.Context, id RequestID, rpcErr RPCError) error {
	return c.session.RespondError(ctx, id, rpcErr)
}
