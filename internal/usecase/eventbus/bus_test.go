package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appserver-client/internal/domain"
)

func newTestBus() *Bus {
	return New(slog.Default())
}

func newEvent(t domain.EventType) domain.Event {
	return domain.NewEvent(t, "conn-test", nil)
}

func TestPublishSubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventCallStarted, func(_ context.Context, e domain.Event) {
		if e.Type == domain.EventCallStarted {
			got.Add(1)
		}
	})

	bus.Publish(context.Background(), newEvent(domain.EventCallStarted))
	bus.Publish(context.Background(), newEvent(domain.EventCallCompleted))
	bus.Close()
	assert.Equal(t, int32(1), got.Load())
}

func TestSubscribeAll(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventCallStarted))
	bus.Publish(context.Background(), newEvent(domain.EventDiagnostic))
	bus.Close()
	assert.Equal(t, int32(2), got.Load())
}

func TestDeliveryOrderPerSubscriber(t *testing.T) {
	bus := newTestBus()

	var mu sync.Mutex
	var seen []string
	bus.SubscribeAll(func(_ context.Context, e domain.Event) {
		mu.Lock()
		seen = append(seen, string(e.Payload))
		mu.Unlock()
	})

	var want []string
	for i := range 200 {
		ev := domain.NewEvent(domain.EventNotificationReceived, "c", i)
		want = append(want, string(ev.Payload))
		bus.Publish(context.Background(), ev)
	}
	bus.Close()

	assert.Equal(t, want, seen)
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	bus := newTestBus()
	release := make(chan struct{})
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {
		<-release
	})

	done := make(chan struct{})
	go func() {
		for range 1000 {
			bus.Publish(context.Background(), newEvent(domain.EventDiagnostic))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked on a slow handler")
	}
	close(release)
	bus.Close()
}

func TestBlockedSubscriberLosesNothing(t *testing.T) {
	bus := newTestBus()
	release := make(chan struct{})
	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {
		<-release
		got.Add(1)
	})

	const n = 5000
	for range n {
		bus.Publish(context.Background(), newEvent(domain.EventDiagnostic))
	}
	close(release)
	bus.Close()
	assert.Equal(t, int32(n), got.Load())
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	unsub := bus.Subscribe(domain.EventCallFailed, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})
	unsub()
	unsub()

	bus.Publish(context.Background(), newEvent(domain.EventCallFailed))
	bus.Close()
	assert.Equal(t, int32(0), got.Load())
}

func TestUnsubscribeAll(t *testing.T) {
	bus := newTestBus()

	var first, second atomic.Int32
	unsub := bus.SubscribeAll(func(_ context.Context, _ domain.Event) { first.Add(1) })
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) { second.Add(1) })
	unsub()

	bus.Publish(context.Background(), newEvent(domain.EventCallFailed))
	bus.Close()
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestConcurrentPublish(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventNotificationReceived, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), newEvent(domain.EventNotificationReceived))
		}()
	}
	wg.Wait()
	bus.Close()

	assert.Equal(t, int32(100), got.Load())
}

func TestPanicRecovery(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventDiagnostic, func(_ context.Context, _ domain.Event) {
		panic("boom")
	})
	bus.Subscribe(domain.EventDiagnostic, func(_ context.Context, _ domain.Event) {
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventDiagnostic))
	bus.Publish(context.Background(), newEvent(domain.EventDiagnostic))
	bus.Close()

	assert.Equal(t, int32(2), got.Load())
}

func TestCloseDrainsAndRejectsNew(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe(domain.EventCallCompleted, func(_ context.Context, _ domain.Event) {
		time.Sleep(50 * time.Millisecond)
		got.Add(1)
	})

	bus.Publish(context.Background(), newEvent(domain.EventCallCompleted))
	bus.Publish(context.Background(), newEvent(domain.EventCallCompleted))
	bus.Close()
	require.Equal(t, int32(2), got.Load())

	bus.Publish(context.Background(), newEvent(domain.EventCallCompleted))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), got.Load())
	bus.Close()
}
