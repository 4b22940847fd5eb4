// Package queue is the durable, deduplicated FIFO of pending sync requests
// and the interval processor that drains it.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lanehq/possync/internal/entity"
	"github.com/lanehq/possync/internal/kv"
)

// ErrQueueEmpty signals a dequeue on an empty queue.
var ErrQueueEmpty = errors.New("queue empty")

// StateKey is the kv key the serialized queue lives under.
const StateKey = "queue:pending"

// Queue is a FIFO of entity sync requests. One entry per entity: a burst of
// identical requests collapses to a single pending job. The whole queue is
// persisted on every mutation so it survives restarts; the in-memory copy
// stays authoritative when persistence fails.
type Queue struct {
	kv *kv.Store

	mu    sync.Mutex
	items []entity.ID
}

// Load creates a queue, restoring any persisted state.
func Load(store *kv.Store) (*Queue, error) {
	q := &Queue{kv: store}

	raw, ok, err := store.Get(StateKey)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &q.items); err != nil {
			// Corrupt state is dropped, not fatal: the pollers will
			// re-sync everything anyway.
			slog.Warn("queue: discarding unreadable persisted state", "err", err)
			q.items = nil
		}
	}
	return q, nil
}

// Enqueue appends a request unless the entity is already pending. It never
// fails the caller: persistence errors are logged and the in-memory queue
// remains authoritative for this process.
func (q *Queue) Enqueue(id entity.ID) {
	q.mu.Lock()
	for _, existing := range q.items {
		if existing == id {
			q.mu.Unlock()
			slog.Debug("queue: dedup, entity already pending", "entity", id)
			return
		}
	}
	q.items = append(q.items, id)
	snapshot := q.snapshotLocked()
	q.mu.Unlock()

	q.persist(snapshot)
}

// Dequeue pops the head of the FIFO and persists the remainder.
func (q *Queue) Dequeue() (entity.ID, error) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return "", ErrQueueEmpty
	}
	head := q.items[0]
	q.items = q.items[1:]
	snapshot := q.snapshotLocked()
	q.mu.Unlock()

	q.persist(snapshot)
	return head, nil
}

// Len returns the number of pending requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of the pending requests in order.
func (q *Queue) Snapshot() []entity.ID {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *Queue) snapshotLocked() []entity.ID {
	out := make([]entity.ID, len(q.items))
	copy(out, q.items)
	return out
}

func (q *Queue) persist(items []entity.ID) {
	data, err := json.Marshal(items)
	if err != nil {
		slog.Warn("queue: marshal state", "err", err)
		return
	}
	if err := q.kv.Set(StateKey, string(data)); err != nil {
		slog.Warn("queue: persist failed, in-memory state remains authoritative", "err", err)
	}
}
