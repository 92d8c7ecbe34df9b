// Package rpc is the JSON-RPC engine that sits on top of a transport: it
// issues calls and correlates their responses, answers peer requests,
// surfaces notifications and tears everything down when the peer goes away.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"appserver-client/internal/domain"
	"appserver-client/internal/infra/tracer"
	"appserver-client/internal/usecase/mailbox"
)

// errLocalDisconnect marks calls failed by an explicit Disconnect.
var errLocalDisconnect = errors.New("disconnected by client")

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithEventBus publishes lifecycle events to bus.
func WithEventBus(bus domain.EventBus) Option {
	return func(s *Session) { s.bus = bus }
}

// WithRetryPolicy sets the policy used by CallWithRetry.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Session) { s.retry = p }
}

// WithJitter replaces the random source of retry jitter.
func WithJitter(j JitterFunc) Option {
	return func(s *Session) { s.jitter = j }
}

// WithCircuitBreaker routes every call attempt through a circuit breaker.
func WithCircuitBreaker(cfg BreakerConfig) Option {
	return func(s *Session) { s.breakerCfg = &cfg }
}

// WithRateLimit throttles outbound calls.
func WithRateLimit(cfg RateLimitConfig) Option {
	return func(s *Session) { s.limiter = newLimiter(cfg) }
}

// connection is the state of one successful Connect.
type connection struct {
	id        string
	transport domain.Transport
	pending   *pendingTable
	done      chan struct{}
}

// Session owns at most one live connection at a time. All methods are safe
// for concurrent use.
type Session struct {
	factory    domain.TransportFactory
	logger     *slog.Logger
	bus        domain.EventBus
	retry      RetryPolicy
	jitter     JitterFunc
	breakerCfg *BreakerConfig
	breaker    *callBreaker
	limiter    *rate.Limiter

	mu     sync.Mutex
	conn   *connection
	state  domain.ConnectionState
	closed bool

	inbound *mailbox.Mailbox[domain.InboundMessage]
}

// New returns a disconnected session. factory is invoked on every Connect.
func New(factory domain.TransportFactory, opts ...Option) *Session {
	s := &Session{
		factory: factory,
		logger:  slog.Default(),
		retry:   DefaultRetryPolicy(),
		state:   domain.Disconnected(),
		inbound: mailbox.New[domain.InboundMessage](),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breakerCfg != nil {
		s.breaker = newCallBreaker(*s.breakerCfg, s.logger, func(from, to gobreaker.State) {
			s.publish(context.Background(), domain.EventCircuitStateChanged, s.ConnectionID(),
				map[string]string{"from": from.String(), "to": to.String()})
		})
	}
	return s
}

// Inbound delivers notifications, peer requests, diagnostics and disconnects
// in arrival order. Delivery never blocks the engine; unread messages queue
// in memory. The channel is closed by Close.
func (s *Session) Inbound() <-chan domain.InboundMessage { return s.inbound.Out() }

// State returns the current connection state.
func (s *Session) State() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConnectionID identifies the live connection in logs, spans and events.
// It is empty while disconnected.
func (s *Session) ConnectionID() string {
	if c := s.current(); c != nil {
		return c.id
	}
	return ""
}

// Pending reports how many calls are awaiting a response.
func (s *Session) Pending() int {
	if c := s.current(); c != nil {
		return c.pending.len()
	}
	return 0
}

// CircuitState reports the breaker state, or "disabled" without one.
func (s *Session) CircuitState() string {
	if s.breaker == nil {
		return "disabled"
	}
	return s.breaker.state().String()
}

func (s *Session) current() *connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Session) setStateLocked(st domain.ConnectionState, connID string) {
	s.state = st
	s.publish(context.Background(), domain.EventConnectionState, connID, map[string]string{"state": st.String()})
}

// Connect builds a transport and connects it. It fails with
// ErrAlreadyConnected while a connection is live or being established.
func (s *Session) Connect(ctx context.Context) error {
	const op = "rpc.Connect"

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.NewClientError(op, domain.ErrNotConnected, "session closed")
	}
	if s.conn != nil || s.state.Status == domain.StatusConnecting {
		s.mu.Unlock()
		return domain.NewClientError(op, domain.ErrAlreadyConnected, "")
	}
	connID := ulid.Make().String()
	s.setStateLocked(domain.Connecting(), connID)
	s.mu.Unlock()

	ctx, span := tracer.StartSpan(ctx, "rpc.connect", tracer.StringAttr("rpc.connection_id", connID))

	tr, err := s.factory()
	if err != nil {
		err = domain.WrapOp(op, err)
	} else {
		span.SetAttributes(tracer.StringAttr("rpc.transport", tr.Name()))
		err = tr.Connect(ctx)
	}
	if err != nil {
		s.mu.Lock()
		s.setStateLocked(domain.Failed(err.Error()), connID)
		s.mu.Unlock()
		s.logger.Warn("connect failed", "connection_id", connID, "error", err, "error_code", domain.ErrorCodeOf(err))
		tracer.Finish(span, err)
		return err
	}

	c := &connection{
		id:        connID,
		transport: tr,
		pending:   newPendingTable(),
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.setStateLocked(domain.Disconnected(), connID)
		s.mu.Unlock()
		_ = tr.Close()
		err := domain.NewClientError(op, domain.ErrNotConnected, "session closed")
		tracer.Finish(span, err)
		return err
	}
	s.conn = c
	s.setStateLocked(domain.Connected(), connID)
	s.mu.Unlock()

	go s.readLoop(c)

	s.logger.Info("connected to app-server", "connection_id", connID, "transport", tr.Name())
	tracer.Finish(span, nil)
	return nil
}

// Disconnect closes the live connection. Pending calls fail with a
// TerminatedError (code -1) and a disconnected message without exit code is
// queued.
// Disconnect without a connection is a no-op.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	c := s.conn
	if c == nil {
		s.mu.Unlock()
		return nil
	}
	s.conn = nil
	s.setStateLocked(domain.Disconnected(), c.id)
	s.mu.Unlock()

	failed := c.pending.failAll(domain.WrapOp("rpc.Disconnect", fmt.Errorf("%w: %w", errLocalDisconnect, domain.NewTerminatedError(nil))))
	err := c.transport.Close()
	<-c.done

	s.publish(context.Background(), domain.EventDisconnected, c.id, domain.DisconnectedEventPayload{
		Reason:  "client disconnect",
		Pending: failed,
	})
	s.inbound.Put(domain.NewDisconnectedMessage(nil))
	s.logger.Info("disconnected from app-server", "connection_id", c.id, "failed_calls", failed)
	return err
}

// Close disconnects and closes the inbound channel once it drains.
// The session cannot be reconnected afterwards.
func (s *Session) Close() error {
	err := s.Disconnect()
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()
	if !already {
		s.inbound.Close()
	}
	return err
}

func (s *Session) readLoop(c *connection) {
	defer close(c.done)
	for ev := range c.transport.Events() {
		switch ev.Kind {
		case domain.TransportMessage:
			s.dispatch(c, ev.Text)
		case domain.TransportDiagnostic:
			s.deliver(c, domain.NewDiagnosticMessage(ev.Text))
		case domain.TransportClosed:
			s.teardown(c, ev.ExitCode, ev.Err)
			return
		}
	}
}

func (s *Session) dispatch(c *connection, text string) {
	m := classify(text)
	switch m.kind {
	case messageIgnored:
	case messageMalformed:
		s.deliver(c, domain.NewDiagnosticMessage(m.diagnostic))
	case messageRequest, messageNotification:
		s.deliver(c, m.inbound())
	case messageResponse:
		env := m.envelope
		var r callResult
		switch {
		case env.Error != nil:
			rpcErr := *env.Error
			r.err = &rpcErr
		case env.Result != nil:
			r.value = *env.Result
		default:
			r.value = domain.EmptyObject()
		}
		if !c.pending.resolve(*env.ID, r) {
			s.logger.Debug("dropping response for unknown request", "connection_id", c.id, "id", env.ID.String())
		}
	}
}

// deliver publishes the matching event, then queues msg for the consumer.
func (s *Session) deliver(c *connection, msg domain.InboundMessage) {
	ctx := context.Background()
	switch msg.Kind {
	case domain.InboundNotification:
		s.publish(ctx, domain.EventNotificationReceived, c.id, map[string]string{"method": msg.Notification.Method})
	case domain.InboundRequest:
		s.publish(ctx, domain.EventPeerRequestReceived, c.id, map[string]string{
			"method": msg.Request.Method,
			"id":     msg.Request.ID.String(),
		})
	case domain.InboundDiagnostic:
		s.publish(ctx, domain.EventDiagnostic, c.id, map[string]string{"line": msg.Diagnostic})
	}
	s.inbound.Put(msg)
}

// teardown handles the peer ending the connection. It is a no-op if c was
// already replaced or disconnected.
func (s *Session) teardown(c *connection, exitCode *int, cause error) {
	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	reason := "peer closed the connection"
	if cause != nil {
		reason = cause.Error()
		s.setStateLocked(domain.Failed(reason), c.id)
	} else {
		s.setStateLocked(domain.Disconnected(), c.id)
	}
	s.mu.Unlock()

	failed := c.pending.failAll(domain.NewTerminatedError(exitCode))
	_ = c.transport.Close()

	s.publish(context.Background(), domain.EventDisconnected, c.id, domain.DisconnectedEventPayload{
		ExitCode: exitCode,
		Reason:   reason,
		Pending:  failed,
	})
	s.inbound.Put(domain.NewDisconnectedMessage(exitCode))
	s.logger.Warn("app-server connection ended",
		"connection_id", c.id,
		"reason", reason,
		"exit_code", exitCode,
		"failed_calls", failed,
	)
}

// Call sends a request and waits for its response. The result defaults to
// {} when the peer omits it; a peer error is returned as *domain.RPCError.
// Cancelling ctx abandons the call.
func (s *Session) Call(ctx context.Context, method string, params *domain.JSONValue) (domain.JSONValue, error) {
	return s.attempt(ctx, method, params, 1)
}

// CallWithRetry is Call retried with the session's RetryPolicy while the
// peer answers with the rate-limited error code.
func (s *Session) CallWithRetry(ctx context.Context, method string, params *domain.JSONValue) (domain.JSONValue, error) {
	return s.CallWithPolicy(ctx, s.retry, method, params)
}

// CallWithPolicy is CallWithRetry with an explicit policy.
func (s *Session) CallWithPolicy(ctx context.Context, policy RetryPolicy, method string, params *domain.JSONValue) (domain.JSONValue, error) {
	return withRetry(ctx, policy, s.jitter,
		func(attempt int) (domain.JSONValue, error) {
			return s.attempt(ctx, method, params, attempt)
		},
		func(attempt int, delay time.Duration, err error) {
			s.logger.Info("rate limited, retrying call",
				"method", method,
				"attempt", attempt,
				"delay", delay,
			)
			s.publish(ctx, domain.EventCallRetrying, s.ConnectionID(), domain.CallEventPayload{
				Method:     method,
				Attempt:    attempt,
				DurationMs: delay.Milliseconds(),
				Error:      err.Error(),
				ErrorCode:  string(domain.ErrorCodeOf(err)),
			})
		},
	)
}

func (s *Session) attempt(ctx context.Context, method string, params *domain.JSONValue, attempt int) (domain.JSONValue, error) {
	const op = "rpc.Call"
	if err := waitTurn(ctx, op, s.limiter); err != nil {
		return domain.JSONValue{}, err
	}
	if s.breaker == nil {
		return s.call(ctx, method, params, attempt)
	}
	return s.breaker.execute(op, func() (domain.JSONValue, error) {
		return s.call(ctx, method, params, attempt)
	})
}

func (s *Session) call(ctx context.Context, method string, params *domain.JSONValue, attempt int) (domain.JSONValue, error) {
	const op = "rpc.Call"
	c := s.current()
	if c == nil {
		return domain.JSONValue{}, domain.NewClientError(op, domain.ErrNotConnected, method)
	}

	id, slot, err := c.pending.register()
	if err != nil {
		return domain.JSONValue{}, err
	}
	data, err := domain.NewCallEnvelope(id, method, params).Encode()
	if err != nil {
		c.pending.remove(id)
		return domain.JSONValue{}, err
	}

	ctx, span := tracer.StartSpan(ctx, "rpc.call",
		tracer.StringAttr("rpc.method", method),
		tracer.StringAttr("rpc.id", id.String()),
		tracer.IntAttr("rpc.attempt", attempt),
		tracer.StringAttr("rpc.connection_id", c.id),
	)
	start := time.Now()
	s.publish(ctx, domain.EventCallStarted, c.id, domain.CallEventPayload{Method: method, ID: id.String(), Attempt: attempt})

	result, err := s.await(ctx, c, id, slot, data)

	s.finishCall(ctx, span, c.id, domain.CallEventPayload{
		Method:     method,
		ID:         id.String(),
		Attempt:    attempt,
		DurationMs: time.Since(start).Milliseconds(),
	}, err)
	return result, err
}

func (s *Session) await(ctx context.Context, c *connection, id domain.RequestID, slot <-chan callResult, data []byte) (domain.JSONValue, error) {
	if err := c.transport.Send(ctx, data); err != nil {
		c.pending.remove(id)
		return domain.JSONValue{}, err
	}

	select {
	case r := <-slot:
		return r.value, r.err
	case <-ctx.Done():
		if !c.pending.remove(id) {
			// resolved while we were giving up
			r := <-slot
			return r.value, r.err
		}
		return domain.JSONValue{}, domain.WrapOp("rpc.Call", ctx.Err())
	}
}

func (s *Session) finishCall(ctx context.Context, span trace.Span, connID string, payload domain.CallEventPayload, err error) {
	if err == nil {
		s.publish(ctx, domain.EventCallCompleted, connID, payload)
		s.logger.Debug("call completed", "method", payload.Method, "id", payload.ID, "duration_ms", payload.DurationMs)
		tracer.Finish(span, nil)
		return
	}

	payload.Error = err.Error()
	payload.ErrorCode = string(domain.ErrorCodeOf(err))
	var rpcErr *domain.RPCError
	if errors.As(err, &rpcErr) {
		span.SetAttributes(tracer.IntAttr("rpc.error_code", rpcErr.Code))
	}
	s.publish(ctx, domain.EventCallFailed, connID, payload)
	s.logger.Debug("call failed",
		"method", payload.Method,
		"id", payload.ID,
		"error", err,
		"error_code", payload.ErrorCode,
	)
	tracer.Finish(span, err)
}

// Notify sends a notification (no id, no response).
func (s *Session) Notify(ctx context.Context, method string, params *domain.JSONValue) error {
	return s.send(ctx, "rpc.Notify", domain.NewNotificationEnvelope(method, params))
}

// Respond answers a peer request with result.
func (s *Session) Respond(ctx context.Context, id domain.RequestID, result domain.JSONValue) error {
	return s.send(ctx, "rpc.Respond", domain.NewResultEnvelope(id, result))
}

// RespondError answers a peer request with an error.
func (s *Session) RespondError(ctx context.Context, id domain.RequestID, rpcErr domain.RPCError) error {
	return s.send(ctx, "rpc.RespondError", domain.NewErrorEnvelope(id, rpcErr))
}

func (s *Session) send(ctx context.Context, op string, env domain.OutgoingEnvelope) error {
	c := s.current()
	if c == nil {
		return domain.NewClientError(op, domain.ErrNotConnected, "")
	}
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return c.transport.Send(ctx, data)
}

func (s *Session) publish(ctx context.Context, t domain.EventType, connID string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, domain.NewEvent(t, connID, payload))
}
