package events

import (
	"sync"

	"landescrow/core/types"
)

// DefaultSubscriberBuffer is the per-subscriber channel capacity used when the
// caller does not provide one.
const DefaultSubscriberBuffer = 64

// Broadcaster is an Emitter that relays canonical payloads to live subscribers.
// Slow subscribers are dropped instead of blocking the ledger.
type Broadcaster struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan *types.Event
	buffer int
}

// NewBroadcaster constructs a broadcaster with the supplied per-subscriber
// buffer size.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Broadcaster{subs: make(map[uint64]chan *types.Event), buffer: buffer}
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called to release the subscription; it closes the channel.
func (b *Broadcaster) Subscribe() (<-chan *types.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	ch := make(chan *types.Event, b.buffer)
	b.subs[id] = ch
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if existing, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(existing)
			}
		})
	}
	return ch, cancel
}

// Subscribers reports the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Emit implements the Emitter interface.
func (b *Broadcaster) Emit(evt Event) {
	payload, ok := Payload(evt)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- payload.Clone():
		default:
			delete(b.subs, id)
			close(ch)
		}
	}
}
