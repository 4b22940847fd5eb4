package queue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lanehq/possync/internal/entity"
)

// Runner executes one reconciliation for an entity. The engine's dispatcher
// is the only implementation: it resolves the entity through the registry,
// runs pull (and push when applicable), and emits lifecycle events.
type Runner func(ctx context.Context, id entity.ID) error

// Processor drains the queue on a fixed interval. At most one job is in
// flight per process; ticks while offline or while a job runs are skipped.
type Processor struct {
	queue    *Queue
	run      Runner
	online   func() bool
	interval time.Duration

	inFlight atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// DefaultInterval is how often the processor checks for pending work.
const DefaultInterval = 2 * time.Second

// NewProcessor wires a processor. interval <= 0 selects DefaultInterval.
func NewProcessor(q *Queue, run Runner, online func() bool, interval time.Duration) *Processor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Processor{
		queue:    q,
		run:      run,
		online:   online,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start launches the tick loop.
func (p *Processor) Start() {
	p.wg.Add(1)
	go p.loop()
}

// Stop halts the tick loop and waits for it and any in-flight job to
// finish.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

// Busy reports whether a job is currently in flight.
func (p *Processor) Busy() bool {
	return p.inFlight.Load()
}

func (p *Processor) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.tick()
		case <-p.stop:
			return
		}
	}
}

func (p *Processor) tick() {
	if !p.online() {
		return
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		slog.Debug("queue: job still in flight, skipping tick")
		return
	}

	id, err := p.queue.Dequeue()
	if err != nil {
		p.inFlight.Store(false)
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Store(false)

		if err := p.run(context.Background(), id); err != nil {
			slog.Warn("queue: reconciliation failed", "entity", id, "err", err)
		}
	}()
}
