// Package client composes the resilience layers into one request pipeline
// shared by every call against a backend.
package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/infra/breaker"
	"github.com/vietddude/relay/internal/infra/netstatus"
	"github.com/vietddude/relay/internal/infra/queue"
	"github.com/vietddude/relay/internal/infra/retry"
	"github.com/vietddude/relay/internal/infra/token"
	"github.com/vietddude/relay/internal/metrics"
)

// Dispatcher performs exactly one network attempt.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *domain.Request) (*domain.Response, error)
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(ctx context.Context, req *domain.Request) (*domain.Response, error)

func (f DispatchFunc) Dispatch(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	return f(ctx, req)
}

// Config holds pipeline settings.
type Config struct {
	Name           string // metrics label
	DefaultTimeout time.Duration
	Retry          retry.Config
	Circuit        breaker.Config
	QueueMaxDepth  int
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Context) { c.log = l }
}

// WithClock replaces time.Now for the breaker.
func WithClock(now func() time.Time) Option {
	return func(c *Context) { c.now = now }
}

// WithSleep replaces the backoff wait.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Context) { c.sleep = fn }
}

// Context is the composition root: one per backend, safe for concurrent
// use by any number of callers.
type Context struct {
	name       string
	cfg        Config
	dispatcher Dispatcher
	breaker    *breaker.Breaker
	policy     *retry.Policy
	queue      *queue.Queue
	monitor    *netstatus.Monitor
	tokens     *token.Store

	log   *slog.Logger
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	unsubscribe func()
}

// New wires a pipeline and registers its drain with the monitor.
func New(cfg Config, d Dispatcher, monitor *netstatus.Monitor, tokens *token.Store, opts ...Option) *Context {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = domain.TimeoutDefault
	}
	c := &Context{
		name:       cfg.Name,
		dispatcher: d,
		monitor:    monitor,
		tokens:     tokens,
		log:        slog.Default(),
		now:        time.Now,
		sleep:      retry.Wait,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("backend", cfg.Name)

	c.breaker = breaker.New(cfg.Circuit,
		breaker.WithClock(c.now),
		breaker.WithTransitionHook(c.onBreakerTransition),
	)
	cfg.Circuit = c.breaker.Config()
	c.policy = retry.NewPolicy(cfg.Retry)
	cfg.Retry = c.policy.Config()
	c.cfg = cfg

	c.queue = queue.New(cfg.QueueMaxDepth)
	c.queue.OnChange(func(depth int) {
		metrics.QueueDepth.WithLabelValues(c.name).Set(float64(depth))
	})

	metrics.BreakerState.WithLabelValues(c.name).Set(stateValue(breaker.StateClosed))
	metrics.NetworkOnline.WithLabelValues(c.name).Set(boolValue(monitor.IsOnline()))
	monitor.SetDrain(c.Drain)
	c.unsubscribe = monitor.OnTransition(func(online bool) {
		metrics.NetworkOnline.WithLabelValues(c.name).Set(boolValue(online))
	})

	return c
}

// Config returns the effective configuration.
func (c *Context) Config() Config {
	return c.cfg
}

// Tokens returns the credential store.
func (c *Context) Tokens() *token.Store {
	return c.tokens
}

// Close detaches from the monitor. Queued requests stay queued.
func (c *Context) Close() {
	c.monitor.SetDrain(nil)
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// Status is a read-only snapshot for diagnostics.
type Status struct {
	State             string        `json:"state"`
	FailureCount      int           `json:"failure_count"`
	LastFailureAt     *time.Time    `json:"last_failure_at,omitempty"`
	HalfOpenProbes    int           `json:"half_open_probes"`
	CooldownRemaining time.Duration `json:"-"`
	CooldownSeconds   float64       `json:"cooldown_remaining_seconds"`
	IsOnline          bool          `json:"is_online"`
	QueueDepth        int           `json:"queue_depth"`
	TokenPresent      bool          `json:"token_present"`
	Token             token.Info    `json:"token"`
}

// Status reports the current pipeline state.
func (c *Context) Status() Status {
	snap := c.breaker.Snapshot()
	s := Status{
		State:             snap.State.String(),
		FailureCount:      snap.FailureCount,
		HalfOpenProbes:    snap.HalfOpenProbes,
		CooldownRemaining: snap.CooldownRemaining,
		CooldownSeconds:   snap.CooldownRemaining.Seconds(),
		IsOnline:          c.monitor.IsOnline(),
		QueueDepth:        c.queue.Len(),
		TokenPresent:      c.tokens.Present(),
		Token:             c.tokens.Info(),
	}
	if !snap.LastFailureAt.IsZero() {
		t := snap.LastFailureAt
		s.LastFailureAt = &t
	}
	return s
}

// Reset forces the breaker Closed.
func (c *Context) Reset() {
	c.breaker.Reset()
	c.log.Info("circuit breaker reset by operator")
}

func (c *Context) onBreakerTransition(from, to breaker.State) {
	metrics.BreakerState.WithLabelValues(c.name).Set(stateValue(to))
	metrics.BreakerTransitions.WithLabelValues(c.name, from.String(), to.String()).Inc()

	switch to {
	case breaker.StateOpen:
		c.log.Warn("circuit breaker opened", "from", from, "cooldown", c.breaker.Config().Cooldown)
	case breaker.StateHalfOpen:
		c.log.Info("circuit breaker half-open, probing backend")
	case breaker.StateClosed:
		c.log.Info("circuit breaker closed", "from", from)
	}
}

func stateValue(s breaker.State) float64 {
	switch s {
	case breaker.StateHalfOpen:
		return 1
	case breaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
