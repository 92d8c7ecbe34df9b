// Package websocket implements the client side of RFC 6455 on top of a raw
// TCP or TLS connection: the opening handshake, the frame codec and a
// message-oriented domain.Transport.
package websocket

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	mrand "math/rand/v2"

	"appserver-client/internal/domain"
)

// Opcode represents WebSocket frame opcodes per RFC 6455.
type Opcode uint8

// Frame opcodes as defined in RFC 6455 Section 5.2.
const (
	OpcodeContinuation Opcode = 0x0
	OpcodeText         Opcode = 0x1
	OpcodeBinary       Opcode = 0x2
	OpcodeClose        Opcode = 0x8
	OpcodePing         Opcode = 0x9
	OpcodePong         Opcode = 0xA
)

// IsControl reports whether the opcode is a control frame opcode.
func (o Opcode) IsControl() bool {
	return o&0x8 != 0
}

func (o Opcode) String() string {
	switch o {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	default:
		return fmt.Sprintf("opcode(0x%X)", uint8(o))
	}
}

// Frame is one decoded WebSocket frame. Payload is already unmasked.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Payload []byte
}

const (
	maxHeaderLen = 14
	len16Marker  = 126
	len64Marker  = 127
	maxPayload7  = 125
	maxPayload16 = math.MaxUint16
	finBit       = 0x80
	maskBit      = 0x80
	opcodeMask   = 0x0F
	lenMask      = 0x7F
)

// ParseFrame decodes the frame at the front of buf. It returns the frame and
// the number of bytes it occupied. When buf does not yet hold a complete
// frame, n is 0 and err is nil. The reserved bits are ignored.
func ParseFrame(buf []byte) (f Frame, n int, err error) {
	if len(buf) < 2 {
		return Frame{}, 0, nil
	}
	b0, b1 := buf[0], buf[1]
	masked := b1&maskBit != 0
	length := uint64(b1 & lenMask)
	offset := 2

	switch length {
	case len16Marker:
		if len(buf) < offset+2 {
			return Frame{}, 0, nil
		}
		length = uint64(binary.BigEndian.Uint16(buf[offset:]))
		offset += 2
	case len64Marker:
		if len(buf) < offset+8 {
			return Frame{}, 0, nil
		}
		length = binary.BigEndian.Uint64(buf[offset:])
		offset += 8
		if length > uint64(math.MaxInt-maxHeaderLen) {
			return Frame{}, 0, domain.NewClientError("websocket.ParseFrame", domain.ErrProtocolViolation,
				fmt.Sprintf("payload length %d exceeds addressable size", length))
		}
	}

	var key [4]byte
	if masked {
		if len(buf) < offset+4 {
			return Frame{}, 0, nil
		}
		copy(key[:], buf[offset:offset+4])
		offset += 4
	}

	end := offset + int(length)
	if len(buf) < end {
		return Frame{}, 0, nil
	}

	payload := make([]byte, int(length))
	copy(payload, buf[offset:end])
	if masked {
		applyMask(payload, key)
	}

	return Frame{
		Fin:     b0&finBit != 0,
		Opcode:  Opcode(b0 & opcodeMask),
		Payload: payload,
	}, end, nil
}

// EncodeFrame builds a single final frame. Masked frames get a fresh random
// key, as required for every client-to-server frame.
func EncodeFrame(op Opcode, payload []byte, masked bool) []byte {
	if !masked {
		return encodeFrame(op, payload, nil)
	}
	key := newMaskKey()
	return encodeFrame(op, payload, &key)
}

func encodeFrame(op Opcode, payload []byte, key *[4]byte) []byte {
	out := make([]byte, 0, maxHeaderLen+len(payload))
	out = append(out, finBit|byte(op)&opcodeMask)

	var mask byte
	if key != nil {
		mask = maskBit
	}
	switch n := len(payload); {
	case n <= maxPayload7:
		out = append(out, mask|byte(n))
	case n <= maxPayload16:
		out = append(out, mask|len16Marker)
		out = binary.BigEndian.AppendUint16(out, uint16(n))
	default:
		out = append(out, mask|len64Marker)
		out = binary.BigEndian.AppendUint64(out, uint64(n))
	}

	if key == nil {
		return append(out, payload...)
	}
	out = append(out, key[:]...)
	start := len(out)
	out = append(out, payload...)
	applyMask(out[start:], *key)
	return out
}

func applyMask(b []byte, key [4]byte) {
	for i := range b {
		b[i] ^= key[i%4]
	}
}

// randomFill is swapped in tests to exercise the fallback path.
var randomFill = func(b []byte) error {
	_, err := rand.Read(b)
	return err
}

// fillRandom uses the system CSPRNG and falls back to a non-cryptographic
// source only if that fails.
func fillRandom(b []byte) {
	if err := randomFill(b); err == nil {
		return
	}
	for i := range b {
		b[i] = byte(mrand.Uint32())
	}
}

func newMaskKey() [4]byte {
	var key [4]byte
	fillRandom(key[:])
	return key
}

// FrameBuffer accumulates raw bytes and yields complete frames, keeping any
// trailing partial frame for the next read.
type FrameBuffer struct {
	buf []byte
}

// Write appends raw bytes read from the connection.
func (b *FrameBuffer) Write(p []byte) {
	b.buf = append(b.buf, p...)
}

// Len reports the number of buffered bytes not yet consumed.
func (b *FrameBuffer) Len() int { return len(b.buf) }

// Drain parses and removes every complete frame currently buffered.
func (b *FrameBuffer) Drain() ([]Frame, error) {
	var frames []Frame
	off := 0
	for {
		f, n, err := ParseFrame(b.buf[off:])
		if err != nil {
			return frames, err
		}
		if n == 0 {
			break
		}
		frames = append(frames, f)
		off += n
	}
	if off > 0 {
		b.buf = append(b.buf[:0], b.buf[off:]...)
	}
	return frames, nil
}

// Reset drops all buffered bytes.
func (b *FrameBuffer) Reset() { b.buf = b.buf[:0] }
