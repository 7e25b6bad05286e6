// Package breaker implements the circuit breaker that gates whether new
// attempts may reach the backend.
//
// A Breaker cycles Closed -> Open -> HalfOpen -> Closed|Open for the whole
// process lifetime. One instance is shared by every request to a backend.
package breaker

import (
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	StateClosed   State = iota // all requests permitted
	StateOpen                  // requests rejected until the cooldown elapses
	StateHalfOpen              // a limited number of probes permitted
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config holds breaker thresholds.
type Config struct {
	MaxFailures       int           `yaml:"max_failures"`
	Cooldown          time.Duration `yaml:"cooldown"`
	HalfOpenMaxProbes int           `yaml:"half_open_max_probes"`

	// IgnoreClientErrors stops non-retryable 4xx responses from counting as
	// failures. The production client counts them.
	IgnoreClientErrors bool `yaml:"ignore_client_errors"`

	// ResetOnSuccess clears the failure count on any success while Closed
	// instead of decrementing it by one.
	ResetOnSuccess bool `yaml:"reset_on_success"`
}

// DefaultConfig mirrors the production client.
var DefaultConfig = Config{
	MaxFailures:       5,
	Cooldown:          30 * time.Second,
	HalfOpenMaxProbes: 3,
}

// Snapshot is a read-only view of the breaker.
type Snapshot struct {
	State             State
	FailureCount      int
	LastFailureAt     time.Time
	HalfOpenProbes    int
	CooldownRemaining time.Duration
}

// Breaker is safe for concurrent use.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu             sync.Mutex
	state          State
	failureCount   int
	lastFailureAt  time.Time
	halfOpenProbes int

	onTransition func(from, to State)
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithTransitionHook is called after every state change, outside the lock.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(b *Breaker) { b.onTransition = fn }
}

// New creates a Closed breaker.
func New(cfg Config, opts ...Option) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultConfig.MaxFailures
	}
	if cfg.HalfOpenMaxProbes <= 0 {
		cfg.HalfOpenMaxProbes = DefaultConfig.HalfOpenMaxProbes
	}
	b := &Breaker{
		cfg:   cfg,
		now:   time.Now,
		state: StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Config returns the breaker configuration.
func (b *Breaker) Config() Config {
	return b.cfg
}

// CanAttempt reports whether a new attempt may be dispatched. A permitted
// call while HalfOpen consumes one probe.
func (b *Breaker) CanAttempt() bool {
	b.mu.Lock()
	from := b.state
	allowed := b.canAttemptLocked()
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
	return allowed
}

func (b *Breaker) canAttemptLocked() bool {
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.lastFailureAt) < b.cfg.Cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.halfOpenProbes = 1
		return true
	case StateHalfOpen:
		if b.halfOpenProbes >= b.cfg.HalfOpenMaxProbes {
			return false
		}
		b.halfOpenProbes++
		return true
	}
	return false
}

// RecordSuccess reports a successful attempt.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case StateClosed:
		if b.cfg.ResetOnSuccess {
			b.failureCount = 0
		} else if b.failureCount > 0 {
			b.failureCount--
		}
	case StateHalfOpen:
		b.state = StateClosed
		b.failureCount = 0
		b.halfOpenProbes = 0
	case StateOpen:
		// straggler admitted before the breaker opened
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

// RecordFailure reports a failed attempt.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	from := b.state
	b.failureCount++
	switch b.state {
	case StateClosed:
		if b.failureCount >= b.cfg.MaxFailures {
			b.open()
		}
	case StateHalfOpen, StateOpen:
		b.open()
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

// ReleaseProbe returns a HalfOpen probe whose attempt ended without an
// outcome, such as a caller cancellation.
func (b *Breaker) ReleaseProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.halfOpenProbes > 0 {
		b.halfOpenProbes--
	}
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.lastFailureAt = b.now()
	b.halfOpenProbes = 0
}

// RemainingCooldown estimates how long until the next probe is allowed.
func (b *Breaker) RemainingCooldown() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remainingLocked()
}

func (b *Breaker) remainingLocked() time.Duration {
	if b.state != StateOpen {
		return 0
	}
	left := b.cfg.Cooldown - b.now().Sub(b.lastFailureAt)
	if left < 0 {
		return 0
	}
	return left
}

// State returns the current state without side effects.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the current counters.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Snapshot{
		State:             b.state,
		FailureCount:      b.failureCount,
		LastFailureAt:     b.lastFailureAt,
		CooldownRemaining: b.remainingLocked(),
	}
	if b.state == StateHalfOpen {
		s.HalfOpenProbes = b.halfOpenProbes
	}
	return s
}

// Reset forces the breaker Closed with no recorded failures.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failureCount = 0
	b.halfOpenProbes = 0
	b.mu.Unlock()

	b.notify(from, StateClosed)
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.onTransition != nil {
		b.onTransition(from, to)
	}
}
