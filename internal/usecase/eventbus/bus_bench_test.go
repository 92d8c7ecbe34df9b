package eventbus

import (
	"context"
	"log/slog"
	"testing"

	"appserver-client/internal/domain"
)

// BenchmarkEventBusPublish measures the publisher path with one subscriber.
func BenchmarkEventBusPublish(b *testing.B) {
	bus := New(slog.Default())
	ctx := context.Background()
	event := domain.NewEvent(domain.EventCallCompleted, "bench-conn", domain.CallEventPayload{Method: "thread/start", ID: "1"})

	bus.Subscribe(domain.EventCallCompleted, func(_ context.Context, _ domain.Event) {})

	b.ReportAllocs()
	for b.Loop() {
		bus.Publish(ctx, event)
	}
	bus.Close()
}

// BenchmarkEventBusPublishParallel measures concurrent publishers.
func BenchmarkEventBusPublishParallel(b *testing.B) {
	bus := New(slog.Default())
	event := domain.NewEvent(domain.EventNotificationReceived, "bench-conn", nil)

	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {})

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			bus.Publish(ctx, event)
		}
	})
	bus.Close()
}

// BenchmarkEventBusPublishNoSubscribers measures Publish overhead alone.
func BenchmarkEventBusPublishNoSubscribers(b *testing.B) {
	bus := New(slog.Default())
	ctx := context.Background()
	event := domain.NewEvent(domain.EventDiagnostic, "", nil)

	b.ReportAllocs()
	for b.Loop() {
		bus.Publish(ctx, event)
	}
	bus.Close()
}
