package mockserver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"nhooyr.io/websocket"

	"appserver-client/internal/domain"
)

// Peer is one connected client as seen from the server.
type Peer struct {
	id     uint64
	ws     *websocket.Conn
	logger *slog.Logger

	sendCh    chan []byte // buffered outbound queue
	done      chan struct{}
	closeOnce sync.Once

	reqSeq    atomic.Uint64
	pendingMu sync.Mutex
	pending   map[domain.RequestID]chan domain.IncomingEnvelope

	mu            sync.Mutex
	clientName    string
	notifications []string
}

func newPeer(id uint64, ws *websocket.Conn, logger *slog.Logger) *Peer {
	return &Peer{
		id:      id,
		ws:      ws,
		logger:  logger,
		sendCh:  make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
		pending: make(map[domain.RequestID]chan domain.IncomingEnvelope),
	}
}

// ID is unique per server.
func (p *Peer) ID() uint64 { return p.id }

// ClientName is the clientInfo.name sent with initialize, if any.
func (p *Peer) ClientName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientName
}

func (p *Peer) setClientName(name string) {
	p.mu.Lock()
	p.clientName = name
	p.mu.Unlock()
}

// Notifications lists the notification methods received so far, in order.
func (p *Peer) Notifications() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.notifications...)
}

func (p *Peer) recordNotification(method string) {
	p.mu.Lock()
	p.notifications = append(p.notifications, method)
	p.mu.Unlock()
}

// Done is closed when the client goes away or the server stops.
func (p *Peer) Done() <-chan struct{} { return p.done }

// Notify sends a notification to the client.
func (p *Peer) Notify(method string, params *domain.JSONValue) error {
	return p.send(domain.NewNotificationEnvelope(method, params))
}

// Request sends a server-to-client request and waits for the answer. Ids
// are strings ("srv-1", "srv-2", ...) to exercise string correlation.
func (p *Peer) Request(ctx context.Context, method string, params *domain.JSONValue) (domain.JSONValue, error) {
	id := domain.StringID(fmt.Sprintf("srv-%d", p.reqSeq.Add(1)))
	reply := make(chan domain.IncomingEnvelope, 1)

	p.pendingMu.Lock()
	p.pending[id] = reply
	p.pendingMu.Unlock()
	defer func() {
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
	}()

	if err := p.send(domain.NewCallEnvelope(id, method, params)); err != nil {
		return domain.JSONValue{}, err
	}

	select {
	case env := <-reply:
		if env.Error != nil {
			rpcErr := *env.Error
			return domain.JSONValue{}, &rpcErr
		}
		if env.Result == nil {
			return domain.EmptyObject(), nil
		}
		return *env.Result, nil
	case <-p.done:
		return domain.JSONValue{}, domain.NewClientError("mockserver.Request", domain.ErrNotConnected, method)
	case <-ctx.Done():
		return domain.JSONValue{}, domain.WrapOp("mockserver.Request", ctx.Err())
	}
}

func (p *Peer) resolve(id domain.RequestID, env domain.IncomingEnvelope) {
	p.pendingMu.Lock()
	reply, ok := p.pending[id]
	delete(p.pending, id)
	p.pendingMu.Unlock()
	if !ok {
		p.logger.Debug("mock server: response for unknown request", "peer_id", p.id, "id", id.String())
		return
	}
	reply <- env
}

// SendRaw queues text verbatim, for feeding the client malformed input.
func (p *Peer) SendRaw(text string) error {
	return p.enqueue([]byte(text))
}

// Close ends the connection with a normal closure.
func (p *Peer) Close() error {
	p.shutdown()
	return p.ws.Close(websocket.StatusNormalClosure, "closed by mock server")
}

func (p *Peer) send(env domain.OutgoingEnvelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return p.enqueue(data)
}

func (p *Peer) enqueue(data []byte) error {
	select {
	case <-p.done:
		return domain.NewClientError("mockserver.send", domain.ErrNotConnected, "")
	default:
	}
	select {
	case p.sendCh <- data:
		return nil
	case <-p.done:
		return domain.NewClientError("mockserver.send", domain.ErrNotConnected, "")
	default:
		p.logger.Warn("mock server: dropped message for slow client", "peer_id", p.id)
		return fmt.Errorf("mock server: send queue full for peer %d", p.id)
	}
}

func (p *Peer) writeLoop() {
	for {
		select {
		case <-p.done:
			return
		case data := <-p.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := p.ws.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (p *Peer) shutdown() {
	p.closeOnce.Do(func() { close(p.done) })
}
