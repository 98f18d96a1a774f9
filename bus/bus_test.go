// ABOUTME: Tests for Bus: fan-out to multiple subscribers, non-blocking drop-on-full, unsubscribe idempotence.
package bus_test

import (
	"testing"
	"time"

	"github.com/Bullish-Design/remora/bus"
	"github.com/Bullish-Design/remora/core"
)

func TestBus_PublishFansOutToAllSubscribers(t *testing.T) {
	b := bus.New()
	ch1 := b.Subscribe("sub-1")
	ch2 := b.Subscribe("sub-2")
	defer b.Unsubscribe(ch1)
	defer b.Unsubscribe(ch2)

	b.Publish(core.Event{Payload: core.ManualTriggerEvent{}})

	for _, ch := range []chan core.Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for published event")
		}
	}
}

func TestBus_SubscriberCount(t *testing.T) {
	b := bus.New()
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers initially, got %d", b.SubscriberCount())
	}

	ch := b.Subscribe("sub-1")
	if b.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", b.SubscriberCount())
	}

	b.Unsubscribe(ch)
	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", b.SubscriberCount())
	}
}

func TestBus_UnsubscribeIsIdempotent(t *testing.T) {
	b := bus.New()
	ch := b.Subscribe("sub-1")
	b.Unsubscribe(ch)
	b.Unsubscribe(ch) // must not panic on double-close
}

func TestBus_PublishDropsOnFullBuffer(t *testing.T) {
	b := bus.New()
	ch := b.Subscribe("slow-sub")
	defer b.Unsubscribe(ch)

	// Flood well past the buffer without ever draining; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5000; i++ {
			b.Publish(core.Event{Payload: core.ManualTriggerEvent{}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked instead of dropping on a full subscriber buffer")
	}
}

func TestBus_PublishWithNoSubscribersDoesNotPanic(t *testing.T) {
	b := bus.New()
	b.Publish(core.Event{Payload: core.ManualTriggerEvent{}})
}
