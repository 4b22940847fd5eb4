package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lanehq/possync/internal/entity"
)

// Default tier intervals.
const (
	DefaultHighInterval   = 2 * time.Minute
	DefaultMediumInterval = 5 * time.Minute
	DefaultLowInterval    = 15 * time.Minute
	DefaultStagger        = 3 * time.Second
)

// poller runs three independent repeating timers, one per priority tier.
// A tier's sweep never overlaps with itself; different tiers may run
// concurrently with each other and with the queue processor.
type poller struct {
	engine    *SyncEngine
	intervals map[entity.Tier]time.Duration
	stagger   time.Duration

	running [3]atomic.Bool

	mu      sync.Mutex // orders kickAll against shutdown
	stopped bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

func newPoller(e *SyncEngine, intervals map[entity.Tier]time.Duration, stagger time.Duration) *poller {
	merged := map[entity.Tier]time.Duration{
		entity.TierHigh:   DefaultHighInterval,
		entity.TierMedium: DefaultMediumInterval,
		entity.TierLow:    DefaultLowInterval,
	}
	for t, d := range intervals {
		if d > 0 {
			merged[t] = d
		}
	}
	if stagger <= 0 {
		stagger = DefaultStagger
	}
	return &poller{
		engine:    e,
		intervals: merged,
		stagger:   stagger,
		stop:      make(chan struct{}),
	}
}

// start launches one loop per tier. Each tier is kicked once at startup,
// staggered, so a cold process performs an immediate best-effort full sync.
func (p *poller) start() {
	for i, tier := range []entity.Tier{entity.TierHigh, entity.TierMedium, entity.TierLow} {
		p.wg.Add(1)
		go p.loop(tier, time.Duration(i)*p.stagger)
	}
}

func (p *poller) shutdown() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stop)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// kickAll schedules one immediate staggered sweep per tier, used on
// reconnect so a long-offline device catches up without waiting for the
// next scheduled tick. The lock guarantees every sweep goroutine is
// registered before shutdown's Wait can return, or not started at all.
func (p *poller) kickAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	for i, tier := range []entity.Tier{entity.TierHigh, entity.TierMedium, entity.TierLow} {
		p.wg.Add(1)
		go func(t entity.Tier, delay time.Duration) {
			defer p.wg.Done()
			select {
			case <-time.After(delay):
				p.sweep(context.Background(), t)
			case <-p.stop:
			}
		}(tier, time.Duration(i)*p.stagger)
	}
}

func (p *poller) loop(tier entity.Tier, initialDelay time.Duration) {
	defer p.wg.Done()

	select {
	case <-time.After(initialDelay):
		p.sweep(context.Background(), tier)
	case <-p.stop:
		return
	}

	ticker := time.NewTicker(p.intervals[tier])
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sweep(context.Background(), tier)
		case <-p.stop:
			return
		}
	}
}

// sweep reconciles the tier's entity list sequentially, awaiting each one,
// to bound peak load on the device and the backend. Skipped entirely when
// offline or when a previous sweep of the same tier is still running.
func (p *poller) sweep(ctx context.Context, tier entity.Tier) {
	if !p.engine.online() {
		slog.Debug("poller: offline, skipping sweep", "tier", tier)
		return
	}
	if !p.running[tier].CompareAndSwap(false, true) {
		slog.Debug("poller: sweep already running", "tier", tier)
		return
	}
	defer p.running[tier].Store(false)

	for _, id := range p.engine.registry.Tier(tier) {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		default:
		}
		// Failures are already logged and published by reconcile; a sweep
		// carries on with the remaining entities.
		_ = p.engine.reconcile(ctx, id)
	}
}
