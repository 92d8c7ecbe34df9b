// Package mailbox provides an unbounded FIFO whose producer side never blocks.
package mailbox

import "sync"

// Mailbox queues values in memory and hands them to a single consumer
// through Out, preserving Put order.
type Mailbox[T any] struct {
	mu      sync.Mutex
	items   []T
	closed  bool
	signal  chan struct{}
	out     chan T
	quit    chan struct{}
	quitted sync.Once
}

// New starts the delivery goroutine. Call Close or Abort to stop it.
func New[T any]() *Mailbox[T] {
	m := &Mailbox[T]{
		signal: make(chan struct{}, 1),
		out:    make(chan T),
		quit:   make(chan struct{}),
	}
	go m.pump()
	return m
}

// Put enqueues v. It reports false once the mailbox is closed.
func (m *Mailbox[T]) Put(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, v)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// Out delivers queued values. It is closed after Close once every queued
// value has been received, or right away after Abort.
func (m *Mailbox[T]) Out() <-chan T { return m.out }

// Len reports how many values are waiting.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close stops accepting values. Values already queued are still delivered.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// Abort stops accepting values and discards whatever is still queued.
func (m *Mailbox[T]) Abort() {
	m.Close()
	m.quitted.Do(func() { close(m.quit) })
}

func (m *Mailbox[T]) pump() {
	defer close(m.out)
	var zero T
	for {
		m.mu.Lock()
		if len(m.items) == 0 {
			closed := m.closed
			m.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-m.signal:
			case <-m.quit:
				return
			}
			continue
		}
		v := m.items[0]
		m.items[0] = zero
		m.items = m.items[1:]
		m.mu.Unlock()

		select {
		case m.out <- v:
		case <-m.quit:
			m.mu.Lock()
			m.items = nil
			m.mu.Unlock()
			return
		}
	}
}
