// Package watermark tracks the "last synchronized at" timestamp per entity.
// Watermarks only ever move forward and are owned exclusively by the pull
// reconciler.
package watermark

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lanehq/possync/internal/entity"
	"github.com/lanehq/possync/internal/kv"
)

// Store reads and advances per-entity watermarks over the persisted kv store.
// When persistence fails the in-memory value stays authoritative for the
// current process; the failure is logged, not surfaced.
type Store struct {
	kv  *kv.Store
	now func() time.Time

	mu    sync.Mutex
	cache map[string]time.Time
}

// New creates a watermark store. now is injectable for tests; pass nil for
// time.Now.
func New(store *kv.Store, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		kv:    store,
		now:   now,
		cache: make(map[string]time.Time),
	}
}

// Get returns the current watermark for the entity. On first pull there is
// no persisted value: high-volume transactional entities default to
// now−InitialLookback to bound initial sync cost, everything else to epoch.
func (s *Store) Get(desc entity.Descriptor) (time.Time, error) {
	s.mu.Lock()
	if t, ok := s.cache[desc.WatermarkKey]; ok {
		s.mu.Unlock()
		return t, nil
	}
	s.mu.Unlock()

	raw, ok, err := s.kv.Get(desc.WatermarkKey)
	if err != nil {
		return time.Time{}, fmt.Errorf("read watermark %s: %w", desc.Name, err)
	}
	if !ok {
		return s.initial(desc), nil
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		// A corrupt watermark is recoverable: fall back to the initial
		// value and re-pull. Duplicate upserts are idempotent.
		slog.Warn("watermark: unparseable value, resetting", "entity", desc.Name, "raw", raw, "err", err)
		return s.initial(desc), nil
	}

	s.mu.Lock()
	s.cache[desc.WatermarkKey] = t
	s.mu.Unlock()
	return t, nil
}

// Set advances the watermark to t. Values behind the current watermark are
// ignored: monotonicity is enforced here, not only by callers.
func (s *Store) Set(desc entity.Descriptor, t time.Time) {
	s.mu.Lock()
	if cur, ok := s.cache[desc.WatermarkKey]; ok && !t.After(cur) {
		s.mu.Unlock()
		return
	}
	s.cache[desc.WatermarkKey] = t
	s.mu.Unlock()

	if err := s.kv.Set(desc.WatermarkKey, t.UTC().Format(time.RFC3339Nano)); err != nil {
		slog.Warn("watermark: persist failed, in-memory value remains authoritative",
			"entity", desc.Name, "err", err)
	}
}

func (s *Store) initial(desc entity.Descriptor) time.Time {
	if desc.InitialLookback > 0 {
		return s.now().Add(-desc.InitialLookback)
	}
	return time.Time{}
}
