package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// JSON-RPC error codes seen on the wire.
const (
	RPCCodeParseError     = -32700
	RPCCodeInvalidRequest = -32600
	RPCCodeMethodNotFound = -32601
	RPCCodeInvalidParams  = -32602
	RPCCodeInternalError  = -32603

	// RPCCodeRateLimited marks a transient server-side condition; calls
	// failing with it are eligible for retry.
	RPCCodeRateLimited = -32001
)

// RequestID is a JSON-RPC id: either an integer or a string. It is
// comparable and usable as a map key.
type RequestID struct {
	num      int64
	str      string
	isString bool
}

// IntID returns an integer request id.
func IntID(n int64) RequestID { return RequestID{num: n} }

// StringID returns a string request id.
func StringID(s string) RequestID { return RequestID{str: s, isString: true} }

// IsString reports whether the id is the string variant.
func (id RequestID) IsString() bool { return id.isString }

// Int returns the integer variant.
func (id RequestID) Int() (int64, bool) { return id.num, !id.isString }

// Str returns the string variant.
func (id RequestID) Str() (string, bool) { return id.str, id.isString }

func (id RequestID) String() string {
	if id.isString {
		return id.str
	}
	return strconv.FormatInt(id.num, 10)
}

// MarshalJSON encodes the id as a JSON number or string.
func (id RequestID) MarshalJSON() ([]byte, error) {
	if id.isString {
		return appendString(nil, id.str)
	}
	return strconv.AppendInt(nil, id.num, 10), nil
}

// UnmarshalJSON accepts a JSON integer or string. Fractional numbers and
// other kinds are rejected.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	if n, err := strconv.ParseInt(string(data), 10, 64); err == nil {
		*id = IntID(n)
		return nil
	}
	// 1e0 and 1.0 are the same integer id.
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return fmt.Errorf("request id %s is neither an integer nor a string", data)
	}
	*id = IntID(int64(f))
	return nil
}

// RPCError is an error object returned by the peer.
type RPCError struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *JSONValue `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (data: %s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsTransient reports whether the error carries the rate-limited code.
func (e *RPCError) IsTransient() bool { return e.Code == RPCCodeRateLimited }

// OutgoingEnvelope is a message written to the peer. Only the fields that are
// set are emitted; there is no protocol version tag.
type OutgoingEnvelope struct {
	ID     *RequestID `json:"id,omitempty"`
	Method string     `json:"method,omitempty"`
	Params *JSONValue `json:"params,omitempty"`
	Result *JSONValue `json:"result,omitempty"`
	Error  *RPCError  `json:"error,omitempty"`
}

// NewCallEnvelope builds a request envelope.
func NewCallEnvelope(id RequestID, method string, params *JSONValue) OutgoingEnvelope {
	return OutgoingEnvelope{ID: &id, Method: method, Params: params}
}

// NewNotificationEnvelope builds a notification envelope.
func NewNotificationEnvelope(method string, params *JSONValue) OutgoingEnvelope {
	return OutgoingEnvelope{Method: method, Params: params}
}

// NewResultEnvelope answers a peer request with a result.
func NewResultEnvelope(id RequestID, result JSONValue) OutgoingEnvelope {
	return OutgoingEnvelope{ID: &id, Result: &result}
}

// NewErrorEnvelope answers a peer request with an error.
func NewErrorEnvelope(id RequestID, rpcErr RPCError) OutgoingEnvelope {
	return OutgoingEnvelope{ID: &id, Error: &rpcErr}
}

// Encode serialises the envelope to UTF-8 JSON text.
func (e OutgoingEnvelope) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, NewClientError("envelope.Encode", ErrEncodeFailure, err.Error())
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// IncomingEnvelope is a decoded message from the peer. Every field is
// optional; classification depends on which are present.
type IncomingEnvelope struct {
	ID     *RequestID `json:"id,omitempty"`
	Method *string    `json:"method,omitempty"`
	Params *JSONValue `json:"params,omitempty"`
	Result *JSONValue `json:"result,omitempty"`
	Error  *RPCError  `json:"error,omitempty"`
}

// DecodeIncoming parses one message of text.
func DecodeIncoming(data []byte) (IncomingEnvelope, error) {
	var env IncomingEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return IncomingEnvelope{}, err
	}
	return env, nil
}
