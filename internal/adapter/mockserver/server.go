// Package mockserver is a scriptable app-server peer speaking the same
// envelope over WebSocket. It backs end-to-end tests and the mock-server
// command.
package mockserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"appserver-client/internal/domain"
)

// DefaultUserAgent is reported by the built-in initialize handler.
const DefaultUserAgent = "mock-app-server/0.1.0"

const (
	sendQueueSize = 64
	writeTimeout  = 5 * time.Second
	readLimit     = 10 << 20
)

// Handler answers one client call or notification. A returned
// *domain.RPCError is sent back as-is; any other error becomes an internal
// error. Results of notification handlers are discarded.
type Handler func(ctx context.Context, peer *Peer, params *domain.JSONValue) (domain.JSONValue, error)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithUserAgent sets the userAgent returned from initialize.
func WithUserAgent(ua string) Option {
	return func(s *Server) { s.userAgent = ua }
}

// WithOnConnect runs fn in its own goroutine for every accepted client.
func WithOnConnect(fn func(ctx context.Context, peer *Peer)) Option {
	return func(s *Server) { s.onConnect = fn }
}

// Server accepts app-server clients on any path.
type Server struct {
	addr      string
	userAgent string
	logger    *slog.Logger
	onConnect func(ctx context.Context, peer *Peer)

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	peers  sync.Map // uint64 -> *Peer
	nextID atomic.Uint64
	stats  stats

	httpSrv   *http.Server
	boundAddr string
	ready     chan struct{}
	stopOnce  sync.Once
}

// NewServer creates a server that will listen on addr ("127.0.0.1:0" picks
// a free port).
func NewServer(addr string, opts ...Option) *Server {
	s := &Server{
		addr:      addr,
		userAgent: DefaultUserAgent,
		logger:    slog.Default(),
		handlers:  make(map[string]Handler),
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.RegisterHandler(domain.MethodInitialize, s.handleInitialize)
	s.RegisterHandler(domain.MethodInitialized, func(context.Context, *Peer, *domain.JSONValue) (domain.JSONValue, error) {
		return domain.JSONValue{}, nil
	})
	return s
}

// RegisterHandler adds or replaces the handler for method.
// Safe to call concurrently with active connections.
func (s *Server) RegisterHandler(method string, h Handler) {
	s.handlersMu.Lock()
	s.handlers[method] = h
	s.handlersMu.Unlock()
}

func (s *Server) handler(method string) (Handler, bool) {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	h, ok := s.handlers[method]
	return h, ok
}

func (s *Server) handleInitialize(_ context.Context, peer *Peer, params *domain.JSONValue) (domain.JSONValue, error) {
	if params != nil {
		if info, ok := params.Field("clientInfo"); ok {
			if name, ok := info.Field("name"); ok {
				n, _ := name.StringValue()
				peer.setClientName(n)
			}
		}
	}
	return domain.Object(map[string]domain.JSONValue{
		"userAgent": domain.String(s.userAgent),
	}), nil
}

// Start listens and serves until ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.stats.handler(s.peerCount))
	mux.HandleFunc("/", s.handleUpgrade)

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("mock server listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()
	s.httpSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	close(s.ready)

	s.logger.Info("mock app-server started", "addr", s.boundAddr, "user_agent", s.userAgent)

	go func() {
		<-ctx.Done()
		_ = s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("mock server serve: %w", err)
	}
	return nil
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// BoundAddr returns the listening address. Only valid after Ready.
func (s *Server) BoundAddr() string { return s.boundAddr }

// URL returns the WebSocket URL clients should dial. Only valid after Ready.
func (s *Server) URL() string { return "ws://" + s.boundAddr + "/" }

// Stop closes every client and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.peers.Range(func(key, value any) bool {
			p := value.(*Peer)
			p.shutdown()
			_ = p.ws.Close(websocket.StatusGoingAway, "server shutting down")
			s.peers.Delete(key)
			return true
		})
		if s.httpSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			err = s.httpSrv.Shutdown(shutdownCtx)
		}
	})
	return err
}

// Peers returns the currently connected clients.
func (s *Server) Peers() []*Peer {
	var out []*Peer
	s.peers.Range(func(_, value any) bool {
		out = append(out, value.(*Peer))
		return true
	})
	return out
}

// Stats returns the counters served on /healthz.
func (s *Server) Stats() StatusResponse { return s.stats.snapshot(s.peerCount()) }

func (s *Server) peerCount() int {
	n := 0
	s.peers.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Broadcast sends a notification to every connected client.
func (s *Server) Broadcast(method string, params *domain.JSONValue) int {
	sent := 0
	for _, p := range s.Peers() {
		if p.Notify(method, params) == nil {
			sent++
		}
	}
	return sent
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	ws.SetReadLimit(readLimit)

	p := newPeer(s.nextID.Add(1), ws, s.logger)
	s.peers.Store(p.id, p)
	s.stats.connections.Add(1)
	s.logger.Info("mock client connected", "peer_id", p.id, "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go p.writeLoop()
	if s.onConnect != nil {
		go s.onConnect(ctx, p)
	}

	s.readLoop(ctx, p)

	p.shutdown()
	s.peers.Delete(p.id)
	_ = ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("mock client disconnected", "peer_id", p.id)
}

func (s *Server) readLoop(ctx context.Context, p *Peer) {
	for {
		typ, data, err := p.ws.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		env, err := domain.DecodeIncoming(data)
		if err != nil {
			s.logger.Warn("mock server: undecodable message", "peer_id", p.id, "error", err)
			continue
		}

		switch {
		case env.Method != nil && env.ID != nil:
			s.stats.calls.Add(1)
			go s.dispatchCall(ctx, p, *env.ID, *env.Method, env.Params)
		case env.Method != nil:
			s.stats.notifications.Add(1)
			p.recordNotification(*env.Method)
			go s.dispatchNotification(ctx, p, *env.Method, env.Params)
		case env.ID != nil:
			p.resolve(*env.ID, env)
		}
	}
}

func (s *Server) dispatchCall(ctx context.Context, p *Peer, id domain.RequestID, method string, params *domain.JSONValue) {
	h, ok := s.handler(method)
	if !ok {
		s.stats.errors.Add(1)
		_ = p.send(domain.NewErrorEnvelope(id, domain.RPCError{
			Code:    domain.RPCCodeMethodNotFound,
			Message: "method not found: " + method,
		}))
		return
	}

	result, err := h(ctx, p, params)
	if err != nil {
		s.stats.errors.Add(1)
		var rpcErr *domain.RPCError
		if !errors.As(err, &rpcErr) {
			rpcErr = &domain.RPCError{Code: domain.RPCCodeInternalError, Message: err.Error()}
		}
		_ = p.send(domain.NewErrorEnvelope(id, *rpcErr))
		return
	}
	if result.IsNull() {
		result = domain.EmptyObject()
	}
	_ = p.send(domain.NewResultEnvelope(id, result))
}

func (s *Server) dispatchNotification(ctx context.Context, p *Peer, method string, params *domain.JSONValue) {
	h, ok := s.handler(method)
	if !ok {
		s.logger.Debug("mock server: unhandled notification", "peer_id", p.id, "method", method)
		return
	}
	if _, err := h(ctx, p, params); err != nil {
		s.logger.Debug("mock server: notification handler failed", "method", method, "error", err)
	}
}
