// Package token owns the bearer credential attached to outgoing requests.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vietddude/relay/internal/core/domain"
)

// DefaultKey is the storage key the credential lives under.
const DefaultKey = "authToken"

// ReauthFunc is invoked after a credential was rejected and cleared.
type ReauthFunc func(ctx context.Context)

// Info is what can be learned from a JWT credential without verifying it.
type Info struct {
	Present   bool       `json:"present"`
	Subject   string     `json:"subject,omitempty"`
	Issuer    string     `json:"issuer,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Expired   bool       `json:"expired"`
}

// Store holds the current credential and mirrors it to durable storage.
type Store struct {
	mu      sync.RWMutex
	token   string
	storage Storage
	key     string
	reauth  ReauthFunc
	log     *slog.Logger

	now func() time.Time
}

// NewStore creates a store and loads any persisted credential. A missing
// key means no credential.
func NewStore(ctx context.Context, storage Storage, key string, reauth ReauthFunc, logger *slog.Logger) (*Store, error) {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		storage: storage,
		key:     key,
		reauth:  reauth,
		log:     logger.With("component", "token"),
		now:     time.Now,
	}

	tok, err := storage.Get(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to load token: %w", err)
	default:
		s.token = tok
	}
	return s, nil
}

// Attach sets the Authorization header when a credential is present.
func (s *Store) Attach(req *domain.Request) {
	s.mu.RLock()
	tok := s.token
	s.mu.RUnlock()

	if tok == "" {
		return
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
}

// Set persists a credential and makes it current.
func (s *Store) Set(ctx context.Context, tok string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Set(ctx, s.key, tok); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}
	s.token = tok
	return nil
}

// Clear removes the credential from memory and storage. Memory is cleared
// even when storage fails.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	if err := s.storage.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// OnUnauthorized handles a rejected credential: clear, then ask the
// application to authenticate again.
func (s *Store) OnUnauthorized(ctx context.Context) {
	if err := s.Clear(ctx); err != nil {
		s.log.Error("failed to clear rejected token", "error", err)
	}
	s.log.Warn("credential rejected, re-authentication required")
	if s.reauth != nil {
		s.reauth(ctx)
	}
}

// DropExpired clears a credential whose exp claim has passed and asks for
// re-authentication. A credential replaced meanwhile is left alone.
func (s *Store) DropExpired(ctx context.Context) bool {
	tok := s.Token()
	if tok == "" || !s.infoFor(tok).Expired {
		return false
	}

	s.mu.Lock()
	if s.token != tok {
		s.mu.Unlock()
		return false
	}
	s.token = ""
	err := s.storage.Delete(ctx, s.key)
	s.mu.Unlock()

	if err != nil {
		s.log.Error("failed to delete expired token", "error", err)
	}
	s.log.Warn("credential expired, re-authentication required")
	if s.reauth != nil {
		s.reauth(ctx)
	}
	return true
}

// Token returns the current credential.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Present reports whether a credential is held.
func (s *Store) Present() bool {
	return s.Token() != ""
}

// Info decodes registered claims without verifying the signature. Opaque
// credentials report only presence.
func (s *Store) Info() Info {
	return s.infoFor(s.Token())
}

func (s *Store) infoFor(tok string) Info {
	if tok == "" {
		return Info{}
	}
	info := Info{Present: true}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return info
	}
	info.Subject, _ = claims.GetSubject()
	info.Issuer, _ = claims.GetIssuer()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		info.ExpiresAt = &t
		info.Expired = s.now().After(t)
	}
	return info
}
