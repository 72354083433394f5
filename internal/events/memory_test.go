package events

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBus_FanOut(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	ch1, cancel1, err := bus.SubscribeStats(ctx)
	if err != nil {
		t.Fatalf("SubscribeStats: %v", err)
	}
	defer cancel1()
	ch2, cancel2, err := bus.SubscribeStats(ctx)
	if err != nil {
		t.Fatalf("SubscribeStats: %v", err)
	}
	defer cancel2()

	ev := StatsUpdate{ProjectID: "p1", TotalProcessed: 3, IndexedCount: 2, ErrorCount: 1}
	if err := bus.PublishStats(ctx, ev); err != nil {
		t.Fatalf("PublishStats: %v", err)
	}

	for i, ch := range []<-chan StatsUpdate{ch1, ch2} {
		select {
		case got := <-ch:
			if got != ev {
				t.Fatalf("subscriber %d got %+v, want %+v", i, got, ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestMemoryBus_CancelClosesAndStopsDelivery(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	ch, cancel, err := bus.SubscribeStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	cancel() // idempotent

	if _, open := <-ch; open {
		t.Fatal("channel should be closed after cancel")
	}

	// Publishing after cancel must not panic or block.
	if err := bus.PublishStats(ctx, StatsUpdate{TotalProcessed: 1}); err != nil {
		t.Fatalf("PublishStats after cancel: %v", err)
	}
}

func TestMemoryBus_DropsWhenSubscriberFull(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	ch, cancel, err := bus.SubscribeStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	// Overfill: the publisher must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			_ = bus.PublishStats(ctx, StatsUpdate{TotalProcessed: i})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			if received != subscriberBuffer {
				t.Fatalf("received = %d, want buffer size %d", received, subscriberBuffer)
			}
			return
		}
	}
}

func TestMemoryBus_URLProcessedIsAccepted(t *testing.T) {
	bus := NewMemoryBus()
	err := bus.PublishURLProcessed(context.Background(), URLProcessed{URLID: "u1"})
	if err != nil {
		t.Fatalf("PublishURLProcessed: %v", err)
	}
}
