// ABOUTME: In-memory fan-out of events to UI/diagnostic subscribers, independent of the Event Store's durable log.
// ABOUTME: Each subscriber gets its own buffered channel; Publish is non-blocking and drops on a full buffer.
package bus

import (
	"log"
	"sync"

	"github.com/Bullish-Design/remora/core"
)

const subscriberBuffer = 4096

// Bus is a broadcaster from Event Store appends to any number of
// subscribers (typically SSE handlers serving the UI streaming
// endpoint). It never blocks a Publish call on a slow subscriber: a
// subscriber whose buffer is full simply misses that event, and the
// drop is logged so operators can see it happening.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan core.Event]string
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[chan core.Event]string)}
}

// Subscribe registers a new buffered channel under label (used only for
// logging dropped events) and returns it.
func (b *Bus) Subscribe(label string) chan core.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan core.Event, subscriberBuffer)
	b.subscribers[ch] = label
	return ch
}

// Unsubscribe removes and closes ch. Safe to call more than once.
func (b *Bus) Unsubscribe(ch chan core.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Publish fans e out to every subscriber without blocking.
func (b *Bus) Publish(e core.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, label := range b.subscribers {
		select {
		case ch <- e:
		default:
			log.Printf("component=bus action=drop subscriber=%s event_type=%s", label, core.EventTypeName(e.Payload))
		}
	}
}

// SubscriberCount reports the current number of subscribers, for
// diagnostics endpoints.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
