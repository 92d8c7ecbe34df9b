package domain

// ConnectionStatus is the coarse connection lifecycle.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusFailed
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ConnectionState is the observable connection state. Reason is only set
// when Status is StatusFailed.
type ConnectionState struct {
	Status ConnectionStatus `json:"status"`
	Reason string           `json:"reason,omitempty"`
}

func (s ConnectionState) String() string {
	if s.Status == StatusFailed && s.Reason != "" {
		return "failed: " + s.Reason
	}
	return s.Status.String()
}

// Disconnected returns the disconnected state.
func Disconnected() ConnectionState { return ConnectionState{Status: StatusDisconnected} }

// Connecting returns the connecting state.
func Connecting() ConnectionState { return ConnectionState{Status: StatusConnecting} }

// Connected returns the connected state.
func Connected() ConnectionState { return ConnectionState{Status: StatusConnected} }

// Failed returns a failed state carrying reason.
func Failed(reason string) ConnectionState {
	return ConnectionState{Status: StatusFailed, Reason: reason}
}
