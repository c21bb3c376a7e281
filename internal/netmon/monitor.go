// Package netmon tracks upstream connectivity. The Monitor is the single
// source of truth for online/offline state; everything else reads it, only
// probe results and explicit signals change it. In particular a failed sync
// attempt never flips the state back to offline.
package netmon

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Monitor holds the process-wide connectivity state and fans out transition
// events. State changes are deduplicated: repeated identical signals emit
// nothing.
type Monitor struct {
	probe    Probe
	interval time.Duration
	online   atomic.Bool

	mu        sync.Mutex
	subs      []chan bool
	onOnline  []func()
	onChanged []func(bool)
}

// NewMonitor creates a monitor that derives state from the given probe every
// interval. The initial state is offline until the first probe.
func NewMonitor(probe Probe, interval time.Duration) *Monitor {
	return &Monitor{
		probe:    probe,
		interval: interval,
	}
}

// Online returns the current connectivity state synchronously.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Subscribe returns a channel receiving the new state once per actual
// transition. Sends are non-blocking; a slow subscriber misses intermediate
// flips but always converges on the latest state via Online().
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// OnOnline registers a callback fired on each offline-to-online transition.
// Callbacks run in their own goroutine so the transition notification never
// blocks on them.
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	m.onOnline = append(m.onOnline, fn)
	m.mu.Unlock()
}

// OnChange registers a callback fired on every transition with the new state.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	m.onChanged = append(m.onChanged, fn)
	m.mu.Unlock()
}

// SetOnline applies an explicit connectivity signal. Duplicate signals are
// no-ops; only a real transition notifies subscribers.
func (m *Monitor) SetOnline(online bool) {
	if !m.online.CompareAndSwap(!online, online) {
		return
	}

	slog.Info("connectivity changed",
		"component", "netmon",
		"online", online,
	)

	m.mu.Lock()
	subs := make([]chan bool, len(m.subs))
	copy(subs, m.subs)
	onOnline := make([]func(), len(m.onOnline))
	copy(onOnline, m.onOnline)
	onChanged := make([]func(bool), len(m.onChanged))
	copy(onChanged, m.onChanged)
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- online:
		default:
		}
	}

	for _, fn := range onChanged {
		go fn(online)
	}
	if online {
		for _, fn := range onOnline {
			go fn()
		}
	}
}

// Run starts the probe loop. It checks immediately on start, then on each
// interval, and blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "netmon",
		"worker", "connectivity-probe",
	)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.SetOnline(m.probe.Check(ctx))

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "netmon",
				"worker", "connectivity-probe",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			m.SetOnline(m.probe.Check(ctx))
		}
	}
}
