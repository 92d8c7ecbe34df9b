package pipe

import (
	"bytes"
	"sync"
)

// tailBuffer keeps the most recent stderr output of the process, dropping
// the oldest bytes once max is exceeded.
type tailBuffer struct {
	mu      sync.Mutex
	data    []byte
	max     int
	written int64
	// aligned is set when the last drop ended on a line boundary.
	aligned bool
}

func newTailBuffer(maxBytes int) *tailBuffer {
	return &tailBuffer{
		data: make([]byte, 0, min(maxBytes, 4096)),
		max:  maxBytes,
	}
}

// Write implements io.Writer.
func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, p...)
	b.written += int64(len(p))
	if len(b.data) > b.max {
		cut := len(b.data) - b.max
		b.aligned = b.data[cut-1] == '\n'
		b.data = b.data[cut:]
	}
	return len(p), nil
}

// String returns the buffered output. Once bytes have been dropped, the
// partial first line is cut off.
func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.data
	if b.written > int64(len(b.data)) && !b.aligned {
		if i := bytes.IndexByte(out, '\n'); i >= 0 {
			out = out[i+1:]
		}
	}
	return string(bytes.TrimRight(out, "\n"))
}

// Dropped returns how many bytes fell off the front.
func (b *tailBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.written - int64(len(b.data))
}
