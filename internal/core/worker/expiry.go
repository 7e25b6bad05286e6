// Package worker holds background maintenance loops.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/relay/internal/infra/token"
)

// ExpirySweeper drops the stored credential once its exp claim passes, so
// the application re-authenticates before the backend starts answering 401.
type ExpirySweeper struct {
	interval time.Duration
	tokens   *token.Store
	log      *slog.Logger

	onExpired func()
}

// NewExpirySweeper creates a sweeper. onExpired may be nil.
func NewExpirySweeper(interval time.Duration, tokens *token.Store, onExpired func()) *ExpirySweeper {
	return &ExpirySweeper{
		interval:  interval,
		tokens:    tokens,
		log:       slog.Default().With("component", "token_sweeper"),
		onExpired: onExpired,
	}
}

// Start runs the sweep loop until ctx is done.
func (s *ExpirySweeper) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return nil // sweeping disabled
	}

	interval := max(s.interval, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep checks the credential once and reports whether it was dropped.
func (s *ExpirySweeper) Sweep(ctx context.Context) bool {
	if !s.tokens.DropExpired(ctx) {
		return false
	}
	s.log.Info("Dropped expired credential")
	if s.onExpired != nil {
		s.onExpired()
	}
	return true
}
