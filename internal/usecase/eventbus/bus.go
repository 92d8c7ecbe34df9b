package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"appserver-client/internal/domain"
	"appserver-client/internal/usecase/mailbox"
)

type delivery struct {
	ctx   context.Context
	event domain.Event
}

type subscription struct {
	id      uint64
	handler domain.EventHandler
	queue   *mailbox.Mailbox[delivery]
}

// Bus is an in-process, goroutine-safe event bus. Every subscriber has its
// own queue and worker, so a subscriber sees events in publish order and a
// slow handler never delays the publisher or other subscribers.
type Bus struct {
	mu      sync.RWMutex
	typed   map[domain.EventType][]*subscription
	allSubs []*subscription
	nextID  atomic.Uint64
	logger  *slog.Logger
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		typed:  make(map[domain.EventType][]*subscription),
		logger: logger,
	}
}

// Publish enqueues an event for matching typed subscribers and all-event
// subscribers. It never blocks on handlers.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.typed[event.Type] {
		sub.queue.Put(delivery{ctx: ctx, event: event})
	}
	for _, sub := range b.allSubs {
		sub.queue.Put(delivery{ctx: ctx, event: event})
	}
}

func (b *Bus) start(handler domain.EventHandler) *subscription {
	sub := &subscription{
		id:      b.nextID.Add(1),
		handler: handler,
		queue:   mailbox.New[delivery](),
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for d := range sub.queue.Out() {
			b.invoke(sub, d)
		}
	}()
	return sub
}

func (b *Bus) invoke(sub *subscription, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(d.event.Type),
				"panic", r,
			)
		}
	}()
	sub.handler(d.ctx, d.event)
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function; queued events are dropped on unsubscribe.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	sub := b.start(handler)

	b.mu.Lock()
	b.typed[eventType] = append(b.typed[eventType], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		subs := b.typed[eventType]
		for i, s := range subs {
			if s.id == sub.id {
				b.typed[eventType] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		sub.queue.Abort()
	}
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	sub := b.start(handler)

	b.mu.Lock()
	b.allSubs = append(b.allSubs, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		for i, s := range b.allSubs {
			if s.id == sub.id {
				b.allSubs = append(b.allSubs[:i:i], b.allSubs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		sub.queue.Abort()
	}
}

// Close prevents new publishes, lets every subscriber finish its queue and
// waits for the workers to exit. Close is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}

	b.mu.Lock()
	for _, subs := range b.typed {
		for _, s := range subs {
			s.queue.Close()
		}
	}
	for _, s := range b.allSubs {
		s.queue.Close()
	}
	b.mu.Unlock()

	b.wg.Wait()
}

var _ domain.EventBus = (*Bus)(nil)
