package websocket

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
	"unicode/utf8"

	"appserver-client/internal/domain"
)

const (
	// DefaultConnectTimeout bounds the TCP/TLS dial and the handshake.
	DefaultConnectTimeout = 5 * time.Second

	readChunkSize   = 32 * 1024
	eventBufferSize = 64
	closeWriteWait  = time.Second
)

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// WithTLSConfig sets the TLS configuration used for wss:// URLs.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(t *Transport) { t.tlsConfig = cfg }
}

// WithConnectTimeout overrides DefaultConnectTimeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(t *Transport) { t.connectTimeout = d }
}

// Transport is a client WebSocket connection carrying JSON text messages.
// A Transport is single-use: create a new one for every connection.
type Transport struct {
	rawURL         string
	logger         *slog.Logger
	tlsConfig      *tls.Config
	connectTimeout time.Duration

	writeMu sync.Mutex
	conn    net.Conn

	frames     FrameBuffer
	fragment   []byte
	inFragment bool

	events    chan domain.TransportEvent
	stop      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
	stateMu   sync.Mutex
	started   bool
	closing   bool
	finished  bool
	sendErr   error
}

// New returns an unconnected transport for rawURL.
func New(rawURL string, opts ...Option) *Transport {
	t := &Transport{
		rawURL:         rawURL,
		logger:         slog.Default(),
		connectTimeout: DefaultConnectTimeout,
		events:         make(chan domain.TransportEvent, eventBufferSize),
		stop:           make(chan struct{}),
		loopDone:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements domain.Transport.
func (t *Transport) Name() string { return "websocket" }

// Events implements domain.Transport.
func (t *Transport) Events() <-chan domain.TransportEvent { return t.events }

// Connect dials the endpoint, performs the opening handshake and starts the
// read loop.
func (t *Transport) Connect(ctx context.Context) error {
	const op = "websocket.Connect"

	t.stateMu.Lock()
	if t.started {
		t.stateMu.Unlock()
		return domain.NewClientError(op, domain.ErrAlreadyConnected, "")
	}
	t.started = true
	t.stateMu.Unlock()

	ep, err := ParseURL(t.rawURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, t.connectTimeout)
	defer cancel()

	conn, err := t.dial(ctx, ep)
	if err != nil {
		return domain.NewClientError(op, err, ep.Address())
	}

	deadline, _ := ctx.Deadline()
	_ = conn.SetDeadline(deadline)
	key := newHandshakeKey()
	leftover, err := handshake(conn, ep, key)
	if err != nil {
		conn.Close()
		return err
	}
	_ = conn.SetDeadline(time.Time{})

	t.conn = conn
	t.frames.Write(leftover)
	t.logger.Debug("websocket connected", "host", ep.HostHeader(), "path", ep.RequestURI)

	go t.readLoop()
	return nil
}

func (t *Transport) dial(ctx context.Context, ep Endpoint) (net.Conn, error) {
	netDialer := &net.Dialer{Timeout: t.connectTimeout}
	if !ep.Secure {
		return netDialer.DialContext(ctx, "tcp", ep.Address())
	}

	cfg := &tls.Config{}
	if t.tlsConfig != nil {
		cfg = t.tlsConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = ep.Host
	}
	tlsDialer := &tls.Dialer{NetDialer: netDialer, Config: cfg}
	return tlsDialer.DialContext(ctx, "tcp", ep.Address())
}

// Send writes text as a single masked text frame. A write failure is
// reported as a diagnostic and tears the connection down.
func (t *Transport) Send(ctx context.Context, text []byte) error {
	const op = "websocket.Send"
	if !utf8.Valid(text) {
		return domain.NewClientError(op, domain.ErrEncodeFailure, "payload is not valid UTF-8")
	}
	if err := t.writeFrame(ctx, OpcodeText, text); err != nil {
		if errors.Is(err, domain.ErrNotConnected) {
			return domain.NewClientError(op, err, "")
		}
		t.abort(err)
		return domain.NewClientError(op, domain.ErrNotConnected, err.Error())
	}
	return nil
}

func (t *Transport) writeFrame(ctx context.Context, op Opcode, payload []byte) error {
	frame := EncodeFrame(op, payload, true)

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.conn == nil || !t.usable() {
		return domain.ErrNotConnected
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
		defer t.conn.SetWriteDeadline(time.Time{})
	}
	_, err := t.conn.Write(frame)
	return err
}

func (t *Transport) readLoop() {
	defer close(t.loopDone)
	defer close(t.events)

	chunk := make([]byte, readChunkSize)
	for {
		frames, perr := t.frames.Drain()
		for _, f := range frames {
			if done := t.handleFrame(f); done {
				t.finish(nil)
				return
			}
		}
		if perr != nil {
			t.finish(perr)
			return
		}

		n, err := t.conn.Read(chunk)
		if n > 0 {
			t.frames.Write(chunk[:n])
		}
		if err != nil {
			if n > 0 {
				// flush whatever arrived with the error first
				frames, _ := t.frames.Drain()
				for _, f := range frames {
					if done := t.handleFrame(f); done {
						break
					}
				}
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || t.isClosing() {
				err = nil
			}
			t.finish(err)
			return
		}
	}
}

// handleFrame processes one inbound frame and reports whether the
// connection is finished.
func (t *Transport) handleFrame(f Frame) bool {
	switch f.Opcode {
	case OpcodeText:
		if f.Fin {
			t.deliver(f.Payload)
			return false
		}
		t.fragment = append(t.fragment[:0], f.Payload...)
		t.inFragment = true
	case OpcodeContinuation:
		if !t.inFragment {
			return false
		}
		t.fragment = append(t.fragment, f.Payload...)
		if f.Fin {
			msg := t.fragment
			t.fragment = nil
			t.inFragment = false
			t.deliver(msg)
		}
	case OpcodeClose:
		// Echo the peer's status code; the reason text is not repeated.
		var echo []byte
		if len(f.Payload) >= 2 {
			echo = f.Payload[:2]
		}
		_ = t.writeFrame(context.Background(), OpcodeClose, echo)
		return true
	case OpcodePing:
		if err := t.writeFrame(context.Background(), OpcodePong, f.Payload); err != nil {
			t.logger.Debug("websocket pong failed", "error", err)
		}
	case OpcodePong, OpcodeBinary:
	default:
		t.logger.Debug("websocket frame ignored", "opcode", f.Opcode.String())
	}
	return false
}

func (t *Transport) deliver(payload []byte) {
	if !utf8.Valid(payload) {
		t.emit(domain.TransportEvent{Kind: domain.TransportDiagnostic, Text: "received non-UTF-8 websocket text message"})
		return
	}
	t.emit(domain.TransportEvent{Kind: domain.TransportMessage, Text: string(payload)})
}

// emit delivers ev unless the transport has been closed locally.
func (t *Transport) emit(ev domain.TransportEvent) {
	select {
	case t.events <- ev:
	case <-t.stop:
	}
}

// finish runs on the read loop goroutine, which is the only sender on
// t.events.
func (t *Transport) finish(err error) {
	t.stateMu.Lock()
	t.finished = true
	sendErr := t.sendErr
	t.stateMu.Unlock()

	t.conn.Close()
	if sendErr != nil {
		t.emit(domain.TransportEvent{
			Kind: domain.TransportDiagnostic,
			Text: "websocket send failed: " + sendErr.Error(),
		})
		if err == nil {
			err = sendErr
		}
	}
	if err != nil {
		t.logger.Debug("websocket read loop ended", "error", err)
	}
	t.emit(domain.TransportEvent{Kind: domain.TransportClosed, Err: err})
}

func (t *Transport) usable() bool {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return !t.closing && !t.finished
}

func (t *Transport) isClosing() bool {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.closing
}

// abort records a write failure and drops the connection without a closing
// handshake; the read loop then reports it and emits TransportClosed.
func (t *Transport) abort(cause error) {
	t.stateMu.Lock()
	if t.sendErr == nil {
		t.sendErr = cause
	}
	t.stateMu.Unlock()
	t.conn.Close()
}

// Close sends a best-effort close frame, drops the connection and waits for
// the read loop to exit. Undelivered events are discarded.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		if t.conn == nil {
			close(t.stop)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), closeWriteWait)
		_ = t.writeFrame(ctx, OpcodeClose, closePayload(1000))
		cancel()

		t.stateMu.Lock()
		t.closing = true
		t.stateMu.Unlock()
		close(t.stop)
		t.conn.Close()
		<-t.loopDone
	})
	return nil
}

func closePayload(code uint16) []byte {
	return []byte{byte(code >> 8), byte(code)}
}

var _ domain.Transport = (*Transport)(nil)

