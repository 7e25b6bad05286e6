package netstatus

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Monitor turns provider signals into online/offline edges.
//
// Admission and transitions are serialized: while the monitor flips to
// online and runs the drain hook, Admit blocks. A request admitted after
// the flip therefore always starts after every request queued before it.
type Monitor struct {
	provider Provider
	log      *slog.Logger

	online atomic.Bool
	gate   sync.RWMutex // held exclusively during a transition
	edgeMu sync.Mutex   // orders transitions with their notifications

	mu        sync.Mutex
	drain     func()
	listeners subscribers

	unsubscribe func()
}

// NewMonitor creates a monitor seeded with the provider's current state.
func NewMonitor(p Provider, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		provider: p,
		log:      logger.With("component", "netstatus"),
	}
	m.online.Store(p.Online())
	m.unsubscribe = p.Subscribe(m.handle)
	return m
}

// IsOnline returns the current connectivity.
func (m *Monitor) IsOnline() bool {
	return m.online.Load()
}

// Admit runs fn with the connectivity it observed. A transition cannot
// begin or finish while fn runs, so fn should be short.
func (m *Monitor) Admit(fn func(online bool)) {
	m.gate.RLock()
	defer m.gate.RUnlock()
	fn(m.online.Load())
}

// SetDrain installs the hook run on every offline to online edge, before
// listeners are notified and before new requests are admitted.
func (m *Monitor) SetDrain(fn func()) {
	m.mu.Lock()
	m.drain = fn
	m.mu.Unlock()
}

// OnTransition registers fn for every edge and returns its unsubscribe.
func (m *Monitor) OnTransition(fn func(online bool)) func() {
	return m.listeners.add(fn)
}

// Close detaches from the provider.
func (m *Monitor) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m *Monitor) handle(online bool) {
	m.edgeMu.Lock()
	defer m.edgeMu.Unlock()

	m.gate.Lock()
	if m.online.Load() == online {
		m.gate.Unlock()
		return
	}
	m.online.Store(online)

	if online {
		m.mu.Lock()
		drain := m.drain
		m.mu.Unlock()

		m.log.Info("network online")
		if drain != nil {
			drain()
		}
	} else {
		m.log.Warn("network offline")
	}
	m.gate.Unlock()

	m.listeners.publish(online)
}
