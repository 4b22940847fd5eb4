// Package netwatch observes network reachability and notifies subscribers
// on connectivity transitions.
package netwatch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Watcher reports connectivity and emits edge transitions. The engine
// subscribes once at startup.
type Watcher interface {
	Online() bool
	Subscribe(fn func(online bool)) (cancel func())
}

// ProbeWatcher derives connectivity from a periodic probe (typically the
// sync server's health endpoint). Only transitions are delivered to
// subscribers, not every probe result.
type ProbeWatcher struct {
	probe    func(ctx context.Context) error
	interval time.Duration

	mu     sync.Mutex
	online bool
	subs   map[int]func(online bool)
	nextID int

	stop chan struct{}
	done chan struct{}
}

// NewProbeWatcher creates a watcher that runs probe every interval. The
// watcher starts offline until the first successful probe.
func NewProbeWatcher(probe func(ctx context.Context) error, interval time.Duration) *ProbeWatcher {
	return &ProbeWatcher{
		probe:    probe,
		interval: interval,
		subs:     make(map[int]func(online bool)),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Online reports the last observed connectivity state.
func (w *ProbeWatcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// Subscribe registers fn for connectivity transitions.
func (w *ProbeWatcher) Subscribe(fn func(online bool)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.subs[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.subs, id)
		w.mu.Unlock()
	}
}

// Start begins probing. Call Stop to shut the loop down.
func (w *ProbeWatcher) Start() {
	go w.loop()
}

// Stop halts probing and waits for the loop to exit.
func (w *ProbeWatcher) Stop() {
	close(w.stop)
	<-w.done
}

func (w *ProbeWatcher) loop() {
	defer close(w.done)

	w.check()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.check()
		case <-w.stop:
			return
		}
	}
}

func (w *ProbeWatcher) check() {
	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()

	err := w.probe(ctx)
	online := err == nil

	w.mu.Lock()
	changed := online != w.online
	w.online = online
	var fns []func(bool)
	if changed {
		for _, fn := range w.subs {
			fns = append(fns, fn)
		}
	}
	w.mu.Unlock()

	if !changed {
		return
	}
	slog.Info("netwatch: connectivity changed", "online", online)
	for _, fn := range fns {
		fn(online)
	}
}
