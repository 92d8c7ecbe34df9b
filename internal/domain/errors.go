package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the client engine.
var (
	ErrNotConnected         = fmt.Errorf("not connected")
	ErrAlreadyConnected     = fmt.Errorf("already connected")
	ErrUnsupportedTransport = fmt.Errorf("transport not supported on this platform")
	ErrInvalidURL           = fmt.Errorf("invalid websocket url")
	ErrHandshakeFailed      = fmt.Errorf("websocket handshake failed")
	ErrProtocolViolation    = fmt.Errorf("websocket protocol violation")
	ErrEncodeFailure        = fmt.Errorf("failed to encode message")
	ErrTerminated           = fmt.Errorf("app-server terminated")

	// Resilience errors.
	ErrCircuitOpen = fmt.Errorf("circuit open")
	ErrRateLimit   = fmt.Errorf("rate limit exceeded")
)

// TerminatedError reports that the peer went away while calls were pending.
// ExitCode is the process exit status, or -1 when none is known.
type TerminatedError struct {
	ExitCode int
}

func (e *TerminatedError) Error() string {
	return fmt.Sprintf("app-server terminated (code %d)", e.ExitCode)
}

func (e *TerminatedError) Unwrap() error { return ErrTerminated }

// NewTerminatedError builds a TerminatedError from an optional exit code.
func NewTerminatedError(exitCode *int) *TerminatedError {
	if exitCode == nil {
		return &TerminatedError{ExitCode: -1}
	}
	return &TerminatedError{ExitCode: *exitCode}
}

// ClientError wraps a sentinel error with context.
type ClientError struct {
	Op     string // operation name (e.g., "websocket.Connect")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *ClientError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }

// NewClientError creates a new ClientError.
func NewClientError(op string, err error, detail string) *ClientError {
	return &ClientError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == RPCCodeRateLimited
	}
	return false
}

// ErrorCode is a machine-parseable error category for logs.
type ErrorCode string

const (
	CodeUnknown              ErrorCode = "UNKNOWN"
	CodeNotConnected         ErrorCode = "NOT_CONNECTED"
	CodeAlreadyConnected     ErrorCode = "ALREADY_CONNECTED"
	CodeUnsupportedTransport ErrorCode = "UNSUPPORTED_TRANSPORT"
	CodeInvalidURL           ErrorCode = "INVALID_URL"
	CodeHandshakeFailed      ErrorCode = "HANDSHAKE_FAILED"
	CodeProtocolViolation    ErrorCode = "PROTOCOL_VIOLATION"
	CodeEncodeFailure        ErrorCode = "ENCODE_FAILURE"
	CodeTerminated           ErrorCode = "TERMINATED"
	CodeCircuitOpen          ErrorCode = "CIRCUIT_OPEN"
	CodeRateLimit            ErrorCode = "RATE_LIMIT"
	CodeRPC                  ErrorCode = "RPC_ERROR"
	CodeCanceled             ErrorCode = "CANCELED"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotConnected:         CodeNotConnected,
	ErrAlreadyConnected:     CodeAlreadyConnected,
	ErrUnsupportedTransport: CodeUnsupportedTransport,
	ErrInvalidURL:           CodeInvalidURL,
	ErrHandshakeFailed:      CodeHandshakeFailed,
	ErrProtocolViolation:    CodeProtocolViolation,
	ErrEncodeFailure:        CodeEncodeFailure,
	ErrTerminated:           CodeTerminated,
	ErrCircuitOpen:          CodeCircuitOpen,
	ErrRateLimit:            CodeRateLimit,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Peer RPC errors map to CodeRPC; context cancellation maps to CodeCanceled.
// Returns CodeUnknown if nothing matches.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var ce *ClientError
	if errors.As(err, &ce) {
		if code, ok := errorCodeMap[ce.Err]; ok {
			return code
		}
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return CodeRPC
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	if isContextError(err) {
		return CodeCanceled
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this ClientError's underlying error.
func (e *ClientError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
