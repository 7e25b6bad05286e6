// Package netstatus tracks whether the backend is reachable.
//
// This package contains:
//   - Provider: source of online/offline signals
//   - Static: provider driven programmatically (tests, embedding apps)
//   - Prober: provider that actively probes over HTTP or gRPC health checks
//   - Monitor: collapses provider signals into edges and gates admission of
//     new requests while the offline queue is drained
package netstatus

import (
	"maps"
	"slices"
	"sync"
)

// Provider reports connectivity and publishes changes.
type Provider interface {
	// Online returns the last known connectivity.
	Online() bool

	// Subscribe registers fn for connectivity changes and returns a func
	// that removes it.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// subscribers is a small registry shared by the providers.
type subscribers struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(bool)
}

func (s *subscribers) add(fn func(bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fns == nil {
		s.fns = make(map[int]func(bool))
	}
	id := s.nextID
	s.nextID++
	s.fns[id] = fn

	return func() {
		s.mu.Lock()
		delete(s.fns, id)
		s.mu.Unlock()
	}
}

func (s *subscribers) snapshot() []func(bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// registration order
	ids := slices.Sorted(maps.Keys(s.fns))
	fns := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.fns[id])
	}
	return fns
}

func (s *subscribers) publish(online bool) {
	for _, fn := range s.snapshot() {
		fn(online)
	}
}

// Static is a Provider whose state is set by the caller. Subscribers are
// notified synchronously from SetOnline.
type Static struct {
	mu     sync.Mutex
	online bool
	subs   subscribers
}

// NewStatic creates a Static provider.
func NewStatic(online bool) *Static {
	return &Static{online: online}
}

// Online implements Provider.
func (s *Static) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Subscribe implements Provider.
func (s *Static) Subscribe(fn func(bool)) func() {
	return s.subs.add(fn)
}

// SetOnline changes connectivity and notifies subscribers on change.
func (s *Static) SetOnline(online bool) {
	s.mu.Lock()
	changed := s.online != online
	s.online = online
	s.mu.Unlock()

	if changed {
		s.subs.publish(online)
	}
}
