package netwatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// flipProbe is a probe whose result can be switched at runtime.
type flipProbe struct {
	mu   sync.Mutex
	fail bool
}

func (p *flipProbe) set(fail bool) {
	p.mu.Lock()
	p.fail = fail
	p.mu.Unlock()
}

func (p *flipProbe) probe(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("unreachable")
	}
	return nil
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestProbeWatcher_StartsOfflineUntilFirstProbe(t *testing.T) {
	p := &flipProbe{fail: true}
	w := NewProbeWatcher(p.probe, 10*time.Millisecond)
	if w.Online() {
		t.Fatal("watcher should start offline")
	}
	w.Start()
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	if w.Online() {
		t.Fatal("failing probe should keep watcher offline")
	}
}

func TestProbeWatcher_TransitionNotifiesSubscribers(t *testing.T) {
	p := &flipProbe{fail: true}
	w := NewProbeWatcher(p.probe, 10*time.Millisecond)

	var mu sync.Mutex
	var transitions []bool
	cancel := w.Subscribe(func(online bool) {
		mu.Lock()
		transitions = append(transitions, online)
		mu.Unlock()
	})
	defer cancel()

	w.Start()
	defer w.Stop()

	p.set(false)
	waitFor(t, w.Online, "watcher never came online")

	p.set(true)
	waitFor(t, func() bool { return !w.Online() }, "watcher never went offline")

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) < 2 {
		t.Fatalf("transitions: got %v, want at least [true false]", transitions)
	}
	if transitions[0] != true || transitions[1] != false {
		t.Fatalf("transitions: got %v", transitions)
	}
}

func TestProbeWatcher_NoEventWithoutTransition(t *testing.T) {
	p := &flipProbe{} // always online
	w := NewProbeWatcher(p.probe, 5*time.Millisecond)

	var mu sync.Mutex
	count := 0
	cancel := w.Subscribe(func(bool) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	defer cancel()

	w.Start()
	defer w.Stop()

	waitFor(t, w.Online, "watcher never came online")
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("steady state must not re-notify: got %d events", count)
	}
}

func TestProbeWatcher_Unsubscribe(t *testing.T) {
	p := &flipProbe{fail: true}
	w := NewProbeWatcher(p.probe, 5*time.Millisecond)

	notified := false
	cancel := w.Subscribe(func(bool) { notified = true })
	cancel()

	w.Start()
	defer w.Stop()

	p.set(false)
	waitFor(t, w.Online, "watcher never came online")
	if notified {
		t.Fatal("cancelled subscriber was notified")
	}
}
