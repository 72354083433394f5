package events

import (
	"context"
	"sync"
)

// subscriberBuffer bounds each subscriber channel; publishers never block on
// a slow consumer, they drop.
const subscriberBuffer = 16

// MemoryBus is an in-process Bus for single-process deployments and tests.
// It fans StatsUpdate messages out to every subscriber; URLProcessed events
// are accepted and discarded (no in-process consumer exists for them).
type MemoryBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan StatsUpdate
}

// NewMemoryBus returns an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]chan StatsUpdate)}
}

// PublishStats delivers ev to all current subscribers, dropping it for any
// subscriber whose buffer is full.
func (b *MemoryBus) PublishStats(_ context.Context, ev StatsUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// PublishURLProcessed is a no-op on the in-process bus.
func (b *MemoryBus) PublishURLProcessed(context.Context, URLProcessed) error {
	return nil
}

// SubscribeStats registers a new subscriber. The returned cancel is
// idempotent and closes the channel once the subscriber is removed.
func (b *MemoryBus) SubscribeStats(context.Context) (<-chan StatsUpdate, func(), error) {
	ch := make(chan StatsUpdate, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}
