// Package retry decides whether a failed attempt is re-dispatched and how
// long to wait before doing so.
package retry

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
)

// Config defines retry behavior.
type Config struct {
	MaxAttempts int           `yaml:"max_attempts"` // total, including the first
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// DefaultConfig provides the production defaults.
var DefaultConfig = Config{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    2 * time.Second,
}

// Class is the outcome classification of one attempt.
type Class int

const (
	ClassSuccess      Class = iota
	ClassRetryable          // transport failure, timeout, 5xx, 429, 408
	ClassUnauthorized       // 401, handled by the token store
	ClassTerminal           // other 4xx
	ClassCanceled           // caller context ended
	ClassLocal              // outcome unrelated to backend health
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassRetryable:
		return "retryable"
	case ClassUnauthorized:
		return "unauthorized"
	case ClassTerminal:
		return "terminal"
	case ClassCanceled:
		return "canceled"
	case ClassLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Classify determines the class of an attempt outcome. parent is the
// caller's context: its cancellation is not a backend failure.
func Classify(parent context.Context, resp *domain.Response, err error) Class {
	if err != nil {
		if parent != nil && parent.Err() != nil {
			return ClassCanceled
		}
		if errors.Is(err, domain.ErrNotDispatched) || errors.Is(err, domain.ErrResponseTooLarge) {
			return ClassLocal
		}
		return ClassRetryable
	}
	if resp == nil {
		return ClassRetryable
	}
	return ClassifyStatus(resp.StatusCode)
}

// ClassifyStatus classifies a received HTTP status code.
func ClassifyStatus(code int) Class {
	switch {
	case code == 401:
		return ClassUnauthorized
	case code >= 500, code == 429, code == 408:
		return ClassRetryable
	case code >= 400:
		return ClassTerminal
	default:
		return ClassSuccess
	}
}

// AttemptError converts a failed attempt into a domain error.
func AttemptError(resp *domain.Response, err error) error {
	if err == nil {
		if resp == nil {
			return &domain.Error{Kind: domain.KindTransport, Message: "no response"}
		}
		return domain.NewStatusError(resp)
	}
	if errors.Is(err, domain.ErrNotDispatched) {
		return &domain.Error{Kind: domain.KindInvalidRequest, Cause: err}
	}
	if IsTimeout(err) {
		return &domain.Error{Kind: domain.KindTimeout, Cause: err}
	}
	return &domain.Error{Kind: domain.KindTransport, Cause: err}
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Policy computes backoff delays and enforces the attempt budget.
type Policy struct {
	cfg Config
}

// NewPolicy creates a policy, filling zero fields from DefaultConfig.
func NewPolicy(cfg Config) *Policy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}
	return &Policy{cfg: cfg}
}

// Config returns the effective configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// Backoff returns the delay before the n-th retry (1-indexed):
// min(BaseDelay * 2^(n-1), MaxDelay).
func (p *Policy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	delay := p.cfg.BaseDelay
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= p.cfg.MaxDelay {
			return p.cfg.MaxDelay
		}
	}
	return min(delay, p.cfg.MaxDelay)
}

// Budget returns the total attempts allowed for a request.
func (p *Policy) Budget(override int) int {
	if override > 0 {
		return override
	}
	return p.cfg.MaxAttempts
}

// Next decides what follows a retryable failure after attemptsMade
// dispatches. ok is false when the budget is exhausted.
func (p *Policy) Next(attemptsMade, override int) (delay time.Duration, ok bool) {
	if attemptsMade >= p.Budget(override) {
		return 0, false
	}
	return p.Backoff(attemptsMade), true
}

// Wait blocks for d or until ctx ends.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
