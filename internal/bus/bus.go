// Package bus is the in-process event bus the engine announces
// reconciliation lifecycle on, and accepts sync requests from.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"github.com/lanehq/possync/internal/entity"
)

// Topic names an event class.
type Topic string

const (
	TopicSyncStart       Topic = "sync:start"
	TopicSyncEnd         Topic = "sync:end"
	TopicSyncFailed      Topic = "sync:failed"
	TopicSyncEnqueue     Topic = "sync:enqueue"
	TopicCacheInvalidate Topic = "cache:invalidate"
)

// Event is one bus message. Err is set only for TopicSyncFailed.
type Event struct {
	Topic  Topic
	Entity entity.ID
	Err    error
	At     time.Time
}

const subscriberBuffer = 16

// Bus fans events out to subscribers and resolves per-entity completion
// futures. Publish never blocks: a subscriber that falls behind drops
// events (logged at debug).
type Bus struct {
	mu      sync.Mutex
	subs    map[Topic][]chan Event
	waiters map[entity.ID][]chan error
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs:    make(map[Topic][]chan Event),
		waiters: make(map[entity.ID][]chan error),
	}
}

// Subscribe returns a channel receiving events for topic and a cancel func.
func (b *Bus) Subscribe(topic Topic) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		chans := b.subs[topic]
		for i, c := range chans {
			if c == ch {
				b.subs[topic] = append(chans[:i], chans[i+1:]...)
				close(c)
				return
			}
		}
	}
	return ch, cancel
}

// Publish delivers ev to all subscribers of its topic. A sync:end or
// sync:failed event additionally resolves any pending Await futures for the
// entity.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.Lock()
	// Delivery happens under the lock: a concurrent cancel cannot close a
	// channel mid-send. Sends never block, so the lock is held briefly.
	for _, ch := range b.subs[ev.Topic] {
		select {
		case ch <- ev:
		default:
			slog.Debug("bus: dropping event for slow subscriber", "topic", ev.Topic, "entity", ev.Entity)
		}
	}

	var waiters []chan error
	if ev.Topic == TopicSyncEnd || ev.Topic == TopicSyncFailed {
		waiters = b.waiters[ev.Entity]
		delete(b.waiters, ev.Entity)
	}
	b.mu.Unlock()

	for _, w := range waiters {
		w <- ev.Err
		close(w)
	}
}

// Await returns a future resolved by the next completed reconciliation of
// the entity: nil on sync:end, the failure on sync:failed.
func (b *Bus) Await(id entity.ID) <-chan error {
	ch := make(chan error, 1)
	b.mu.Lock()
	b.waiters[id] = append(b.waiters[id], ch)
	b.mu.Unlock()
	return ch
}
