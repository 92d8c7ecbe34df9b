package websocket

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"

	"appserver-client/internal/domain"
)

const (
	acceptGUID       = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	maxHandshakeSize = 64 * 1024
	handshakeReadLen = 4096
)

var headerTerminator = []byte("\r\n\r\n")

// Endpoint is a validated ws:// or wss:// target.
type Endpoint struct {
	Secure bool
	Host   string
	Port   int
	// RequestURI is the path plus query sent on the request line.
	RequestURI string
}

// Address returns host:port for dialing.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// HostHeader returns the Host header value; the port is omitted when it is
// the scheme default.
func (e Endpoint) HostHeader() string {
	if e.Port == defaultPort(e.Secure) {
		if strings.Contains(e.Host, ":") {
			return "[" + e.Host + "]"
		}
		return e.Host
	}
	return e.Address()
}

func defaultPort(secure bool) int {
	if secure {
		return 443
	}
	return 80
}

// ParseURL validates raw as a WebSocket URL.
func ParseURL(raw string) (Endpoint, error) {
	const op = "websocket.ParseURL"
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, domain.NewClientError(op, domain.ErrInvalidURL, err.Error())
	}

	var ep Endpoint
	switch strings.ToLower(u.Scheme) {
	case "ws":
	case "wss":
		ep.Secure = true
	default:
		return Endpoint{}, domain.NewClientError(op, domain.ErrInvalidURL, fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}

	ep.Host = u.Hostname()
	if ep.Host == "" {
		return Endpoint{}, domain.NewClientError(op, domain.ErrInvalidURL, "missing host")
	}

	ep.Port = defaultPort(ep.Secure)
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return Endpoint{}, domain.NewClientError(op, domain.ErrInvalidURL, fmt.Sprintf("invalid port %q", p))
		}
		ep.Port = port
	}

	ep.RequestURI = u.EscapedPath()
	if ep.RequestURI == "" {
		ep.RequestURI = "/"
	}
	if u.RawQuery != "" {
		ep.RequestURI += "?" + u.RawQuery
	}
	return ep, nil
}

// AcceptKey computes the Sec-WebSocket-Accept value expected for key.
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(acceptGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func newHandshakeKey() string {
	var b [16]byte
	fillRandom(b[:])
	return base64.StdEncoding.EncodeToString(b[:])
}

func buildHandshakeRequest(ep Endpoint, key string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", ep.RequestURI)
	fmt.Fprintf(&b, "Host: %s\r\n", ep.HostHeader())
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Version: 13\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Key: %s\r\n", key)
	b.WriteString("\r\n")
	return b.Bytes()
}

// handshake performs the opening handshake on rw and returns any bytes the
// server sent after the response headers. Deadlines are the caller's job.
func handshake(rw io.ReadWriter, ep Endpoint, key string) ([]byte, error) {
	const op = "websocket.handshake"
	if _, err := rw.Write(buildHandshakeRequest(ep, key)); err != nil {
		return nil, domain.NewClientError(op, domain.ErrHandshakeFailed, "write request: "+err.Error())
	}

	var resp []byte
	chunk := make([]byte, handshakeReadLen)
	for {
		if idx := bytes.Index(resp, headerTerminator); idx >= 0 {
			if idx+len(headerTerminator) > maxHandshakeSize {
				return nil, domain.NewClientError(op, domain.ErrHandshakeFailed, "response headers too large")
			}
			head := resp[:idx]
			leftover := append([]byte(nil), resp[idx+len(headerTerminator):]...)
			if err := validateHandshakeResponse(head, key); err != nil {
				return nil, err
			}
			return leftover, nil
		}
		if len(resp) > maxHandshakeSize {
			return nil, domain.NewClientError(op, domain.ErrHandshakeFailed, "response headers too large")
		}

		n, err := rw.Read(chunk)
		resp = append(resp, chunk[:n]...)
		if err != nil {
			if n > 0 && bytes.Contains(resp, headerTerminator) {
				continue
			}
			if err == io.EOF {
				return nil, domain.NewClientError(op, domain.ErrHandshakeFailed, "incomplete response")
			}
			return nil, domain.NewClientError(op, domain.ErrHandshakeFailed, "read response: "+err.Error())
		}
	}
}

func validateHandshakeResponse(head []byte, key string) error {
	const op = "websocket.handshake"
	lines := strings.Split(string(head), "\r\n")
	if !strings.Contains(lines[0], "101") {
		return domain.NewClientError(op, domain.ErrHandshakeFailed, fmt.Sprintf("unexpected status %q", lines[0]))
	}

	headers := make(map[string]string, len(lines)-1)
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}

	if got, want := headers["sec-websocket-accept"], AcceptKey(key); got != want {
		return domain.NewClientError(op, domain.ErrHandshakeFailed, "Sec-WebSocket-Accept mismatch")
	}
	return nil
}
