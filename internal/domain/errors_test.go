package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientErrorFormat(t *testing.T) {
	err := NewClientError("websocket.Connect", ErrInvalidURL, "http://x")
	want := "websocket.Connect: http://x: invalid websocket url"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestClientErrorFormatNoDetail(t *testing.T) {
	err := NewClientError("Session.Call", ErrNotConnected, "")
	want := "Session.Call: not connected"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestClientErrorUnwrap(t *testing.T) {
	err := NewClientError("websocket.handshake", ErrHandshakeFailed, "bad accept")
	if !errors.Is(err, ErrHandshakeFailed) {
		t.Error("errors.Is should match ErrHandshakeFailed")
	}
	var ce *ClientError
	if !errors.As(err, &ce) {
		t.Fatal("errors.As should match *ClientError")
	}
	if ce.Op != "websocket.handshake" {
		t.Errorf("Op = %q, want %q", ce.Op, "websocket.handshake")
	}
}

func TestTerminatedError(t *testing.T) {
	code := 3
	err := NewTerminatedError(&code)
	assert.True(t, errors.Is(err, ErrTerminated))
	assert.Equal(t, 3, err.ExitCode)
	assert.Equal(t, -1, NewTerminatedError(nil).ExitCode)
}

func TestWrapOp(t *testing.T) {
	assert.NoError(t, WrapOp("op", nil))
	err := WrapOp("pipe.Send", ErrNotConnected)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConnected))
	assert.Equal(t, "pipe.Send: not connected", err.Error())
}

func TestErrorCodeOf(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
	assert.Equal(t, CodeNotConnected, ErrorCodeOf(ErrNotConnected))
	assert.Equal(t, CodeHandshakeFailed, ErrorCodeOf(NewClientError("op", ErrHandshakeFailed, "")))
	assert.Equal(t, CodeProtocolViolation, ErrorCodeOf(fmt.Errorf("read: %w", ErrProtocolViolation)))
	assert.Equal(t, CodeTerminated, ErrorCodeOf(NewTerminatedError(nil)))
	assert.Equal(t, CodeRPC, ErrorCodeOf(&RPCError{Code: -1, Message: "x"}))
	assert.Equal(t, CodeCanceled, ErrorCodeOf(fmt.Errorf("wait: %w", context.Canceled)))
	assert.Equal(t, CodeUnknown, ErrorCodeOf(errors.New("other")))
}

func TestClientErrorCode(t *testing.T) {
	err := NewClientError("op", fmt.Errorf("inner: %w", ErrEncodeFailure), "")
	assert.Equal(t, CodeEncodeFailure, err.Code())
}
