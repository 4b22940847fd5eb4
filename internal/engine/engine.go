// Package engine wires the sync core together: the durable retry queue, the
// tiered pollers, the pull/push reconcilers, and the connectivity
// coordinator. A SyncEngine is an explicitly constructed value owning its
// own timers and state; nothing here is a process-wide singleton.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lanehq/possync/internal/bus"
	"github.com/lanehq/possync/internal/entity"
	"github.com/lanehq/possync/internal/kv"
	"github.com/lanehq/possync/internal/localstore"
	"github.com/lanehq/possync/internal/netwatch"
	"github.com/lanehq/possync/internal/queue"
	"github.com/lanehq/possync/internal/remote"
	"github.com/lanehq/possync/internal/watermark"
)

// ErrOffline signals that an operation needs connectivity.
var ErrOffline = errors.New("device is offline")

// RemoteAPI is the slice of the remote client the reconcilers consume.
// Satisfied by *remote.Client and by test fakes.
type RemoteAPI interface {
	Pull(ctx context.Context, req remote.PullRequest) (*remote.PullResponse, error)
	Push(ctx context.Context, endpoint string, records []remote.Record) (*remote.PushResponse, error)
}

// Scope carries the device context every pull is filtered by.
type Scope struct {
	CompanyID  string
	LocationID string
}

// Config assembles a SyncEngine. Zero intervals select defaults.
type Config struct {
	Registry   *entity.Registry
	Remote     RemoteAPI
	Store      *localstore.Store
	KV         *kv.Store
	Bus        *bus.Bus
	Watcher    netwatch.Watcher
	Scope      Scope

	QueueInterval  time.Duration
	TierIntervals  map[entity.Tier]time.Duration
	StartupStagger time.Duration

	// Now is injectable for tests; nil means time.Now.
	Now func() time.Time
}

// SyncEngine coordinates all reconciliation for one device.
type SyncEngine struct {
	registry *entity.Registry
	remote   RemoteAPI
	store    *localstore.Store
	kv       *kv.Store
	marks    *watermark.Store
	bus      *bus.Bus
	watcher  netwatch.Watcher
	scope    Scope
	now      func() time.Time

	queue  *queue.Queue
	proc   *queue.Processor
	poller *poller

	hooksMu sync.Mutex
	hooks   map[entity.ID][]Hook

	unsubWatch  func()
	enqueueStop func()
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// New builds an engine, restoring the persisted queue. It does not start
// any timers; call Start.
func New(cfg Config) (*SyncEngine, error) {
	if cfg.Registry == nil {
		cfg.Registry = entity.DefaultRegistry()
	}
	if cfg.Bus == nil {
		cfg.Bus = bus.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	q, err := queue.Load(cfg.KV)
	if err != nil {
		return nil, fmt.Errorf("restore queue: %w", err)
	}

	e := &SyncEngine{
		registry: cfg.Registry,
		remote:   cfg.Remote,
		store:    cfg.Store,
		kv:       cfg.KV,
		marks:    watermark.New(cfg.KV, cfg.Now),
		bus:      cfg.Bus,
		watcher:  cfg.Watcher,
		scope:    cfg.Scope,
		now:      cfg.Now,
		queue:    q,
		hooks:    make(map[entity.ID][]Hook),
	}

	e.proc = queue.NewProcessor(q, e.reconcile, e.online, cfg.QueueInterval)
	e.poller = newPoller(e, cfg.TierIntervals, cfg.StartupStagger)

	e.RegisterHook(entity.BusinessDetails, businessDetailsHook(cfg.KV, cfg.Store))
	return e, nil
}

// Bus exposes the engine's event bus for external producers and consumers.
func (e *SyncEngine) Bus() *bus.Bus {
	return e.bus
}

// Queue exposes the pending request snapshot for status reporting.
func (e *SyncEngine) Queue() *queue.Queue {
	return e.queue
}

// Watermarks exposes the watermark store for status reporting.
func (e *SyncEngine) Watermarks() *watermark.Store {
	return e.marks
}

// Start launches the queue processor and the tier pollers, subscribes to
// connectivity transitions, and begins accepting sync:enqueue events.
func (e *SyncEngine) Start() {
	e.proc.Start()
	e.poller.start()

	if e.watcher != nil {
		e.unsubWatch = e.watcher.Subscribe(func(online bool) {
			if !online {
				return // going offline only suppresses future work
			}
			slog.Info("engine: reconnected, scheduling catch-up sweeps")
			e.poller.kickAll()
		})
	}

	ch, cancel := e.bus.Subscribe(bus.TopicSyncEnqueue)
	e.enqueueStop = cancel
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for ev := range ch {
			e.Enqueue(ev.Entity)
		}
	}()
}

// Enqueue requests an ad-hoc reconciliation of one entity. Duplicate
// requests collapse while pending.
func (e *SyncEngine) Enqueue(id entity.ID) {
	e.queue.Enqueue(id)
}

// Await returns a future resolved by the next completed reconciliation of
// the entity.
func (e *SyncEngine) Await(id entity.ID) <-chan error {
	return e.bus.Await(id)
}

// Sync reconciles one entity immediately, bypassing the queue.
func (e *SyncEngine) Sync(ctx context.Context, id entity.ID) error {
	if !e.online() {
		return ErrOffline
	}
	return e.reconcile(ctx, id)
}

// ForceSync runs one sweep of every tier immediately and waits for them to
// finish. Tiers already mid-sweep are skipped by the per-tier guard.
func (e *SyncEngine) ForceSync(ctx context.Context) error {
	if !e.online() {
		return ErrOffline
	}

	var wg sync.WaitGroup
	for _, tier := range []entity.Tier{entity.TierHigh, entity.TierMedium, entity.TierLow} {
		wg.Add(1)
		go func(t entity.Tier) {
			defer wg.Done()
			e.poller.sweep(ctx, t)
		}(tier)
	}
	wg.Wait()
	return nil
}

// StopPolling halts the connectivity subscription and the tier timers.
// The subscription goes first so a reconnect callback cannot schedule new
// sweeps while the poller is draining.
func (e *SyncEngine) StopPolling() {
	if e.unsubWatch != nil {
		e.unsubWatch()
		e.unsubWatch = nil
	}
	e.poller.shutdown()
}

// StopQueue halts the queue processor, letting any in-flight job finish.
func (e *SyncEngine) StopQueue() {
	e.proc.Stop()
}

// Stop shuts the whole engine down.
func (e *SyncEngine) Stop() {
	e.stopOnce.Do(func() {
		e.StopPolling()
		e.StopQueue()
		if e.enqueueStop != nil {
			e.enqueueStop()
		}
		e.wg.Wait()
	})
}

func (e *SyncEngine) online() bool {
	if e.watcher == nil {
		return true
	}
	return e.watcher.Online()
}

// reconcile is the single dispatch point for every sync attempt, whether it
// came from the queue, a poller sweep, or a forced sync. It resolves the
// entity, emits lifecycle events, and never lets a failure escape to the
// caller's timer loop unlogged.
func (e *SyncEngine) reconcile(ctx context.Context, id entity.ID) error {
	desc, err := e.registry.Describe(id)
	if err != nil {
		// Configuration error: the producer that requested this entity is
		// at fault. Dropped, never retried.
		slog.Error("engine: dropping request for unregistered entity", "entity", id, "err", err)
		e.bus.Publish(bus.Event{Topic: bus.TopicSyncFailed, Entity: id, Err: err})
		return err
	}

	e.bus.Publish(bus.Event{Topic: bus.TopicSyncStart, Entity: id})

	if desc.Pushable {
		if err := e.push(ctx, desc); err != nil {
			slog.Warn("engine: push failed", "entity", id, "err", err)
			e.bus.Publish(bus.Event{Topic: bus.TopicSyncFailed, Entity: id, Err: err})
			return err
		}
	}

	if err := e.pull(ctx, desc); err != nil {
		slog.Warn("engine: pull failed", "entity", id, "err", err)
		e.bus.Publish(bus.Event{Topic: bus.TopicSyncFailed, Entity: id, Err: err})
		return err
	}

	e.bus.Publish(bus.Event{Topic: bus.TopicSyncEnd, Entity: id})
	return nil
}
