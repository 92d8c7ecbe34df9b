package domain

import "context"

// TransportEventKind identifies which variant a TransportEvent holds.
type TransportEventKind int

const (
	// TransportMessage carries one complete text message.
	TransportMessage TransportEventKind = iota
	// TransportDiagnostic carries a human-readable line (stderr output,
	// undecodable frames, write failures).
	TransportDiagnostic
	// TransportClosed is always the last event of a connection.
	TransportClosed
)

// TransportEvent is one item read from a transport.
type TransportEvent struct {
	Kind TransportEventKind
	Text string
	// ExitCode is set on TransportClosed by transports backed by a process.
	ExitCode *int
	// Err is the read-side failure that ended the connection, if any.
	Err error
}

// Transport is a single-use, message-oriented connection to the app-server.
// After a successful Connect, Events delivers messages in wire order. When
// the peer ends the connection, exactly one TransportClosed event is sent
// before the channel is closed. Close may be called at any time and is
// idempotent; events not yet delivered when Close is called may be dropped.
type Transport interface {
	Name() string
	Connect(ctx context.Context) error
	Send(ctx context.Context, text []byte) error
	Events() <-chan TransportEvent
	Close() error
}

// TransportFactory builds a fresh transport for each connection attempt.
type TransportFactory func() (Transport, error)
