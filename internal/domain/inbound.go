package domain

// InboundKind identifies which variant an InboundMessage holds.
type InboundKind int

const (
	InboundNotification InboundKind = iota
	InboundRequest
	InboundDiagnostic
	InboundDisconnected
)

func (k InboundKind) String() string {
	switch k {
	case InboundNotification:
		return "notification"
	case InboundRequest:
		return "request"
	case InboundDiagnostic:
		return "diagnostic"
	case InboundDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Notification is a peer message that expects no reply.
type Notification struct {
	Method string
	Params *JSONValue
}

// DecodeParams decodes the params into target. Absent params decode as {}.
func (n Notification) DecodeParams(target any) error {
	return paramsOrEmpty(n.Params).Decode(target)
}

// PeerRequest is a peer message that must be answered with Respond or
// RespondError using the same ID.
type PeerRequest struct {
	ID     RequestID
	Method string
	Params *JSONValue
}

// DecodeParams decodes the params into target. Absent params decode as {}.
func (r PeerRequest) DecodeParams(target any) error {
	return paramsOrEmpty(r.Params).Decode(target)
}

// InboundMessage is everything the client surfaces to its consumer other
// than call results, in wire order.
type InboundMessage struct {
	Kind         InboundKind
	Notification *Notification
	Request      *PeerRequest
	// Diagnostic holds a stderr line or a description of a message that
	// could not be classified.
	Diagnostic string
	// ExitCode is set on InboundDisconnected when the peer process exited.
	ExitCode *int
}

// NewNotificationMessage wraps a notification.
func NewNotificationMessage(method string, params *JSONValue) InboundMessage {
	return InboundMessage{Kind: InboundNotification, Notification: &Notification{Method: method, Params: params}}
}

// NewRequestMessage wraps a peer request.
func NewRequestMessage(id RequestID, method string, params *JSONValue) InboundMessage {
	return InboundMessage{Kind: InboundRequest, Request: &PeerRequest{ID: id, Method: method, Params: params}}
}

// NewDiagnosticMessage wraps a diagnostic line.
func NewDiagnosticMessage(line string) InboundMessage {
	return InboundMessage{Kind: InboundDiagnostic, Diagnostic: line}
}

// NewDisconnectedMessage signals the end of a connection.
func NewDisconnectedMessage(exitCode *int) InboundMessage {
	return InboundMessage{Kind: InboundDisconnected, ExitCode: exitCode}
}

func paramsOrEmpty(p *JSONValue) JSONValue {
	if p == nil || p.IsNull() {
		return EmptyObject()
	}
	return *p
}
