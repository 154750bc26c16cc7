package bus

import (
	"sync"
	"sync/atomic"

	"autohedge/internal/models"
	"autohedge/pkg/logger"
)

// dropLogEvery: after the first dropped event, a slow subscriber is logged
// once per this many further drops.
const dropLogEvery = 1000

// Subscription is one reader of the fabric. Events arrives on C; a
// subscriber that falls behind misses events rather than stalling
// producers.
type Subscription struct {
	name    string
	ch      chan models.Event
	dropped atomic.Uint64
}

// C is the receive side of the subscription.
func (s *Subscription) C() <-chan models.Event { return s.ch }

// Dropped reports how many events this subscriber has missed so far.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Bus is the in-process broadcast fabric. Publish never blocks; ordering is
// guaranteed per publisher only.
type Bus struct {
	mu   sync.RWMutex
	subs []*Subscription
}

func New() *Bus {
	return &Bus{}
}

// Subscribe registers a named subscriber with its own bounded buffer.
func (b *Bus) Subscribe(name string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 256
	}
	sub := &Subscription{
		name: name,
		ch:   make(chan models.Event, buffer),
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub
}

// Unsubscribe detaches the subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(s.ch)
			break
		}
	}
	b.mu.Unlock()
}

// Publish fans the event out to every subscriber. Full buffers drop.
// Sends happen under the read lock; they are non-blocking, and the lock
// keeps Unsubscribe from closing a channel mid-send.
func (b *Bus) Publish(ev models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			n := sub.dropped.Add(1)
			if n == 1 || n%dropLogEvery == 0 {
				logger.Warn("[BUS] subscriber %q lagging, dropped %d events", sub.name, n)
			}
		}
	}
}
