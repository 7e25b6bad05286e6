package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/vietddude/relay/internal/core/domain"
)

// ErrNoToken is returned by Login when the backend accepted the
// credentials but sent no token.
var ErrNoToken = errors.New("login response carries no token")

// Login posts credentials to path and stores the returned token. Login is
// never queued: it fails with ErrNetworkOffline while offline.
func (c *Context) Login(ctx context.Context, path string, credentials any) error {
	req, err := domain.NewJSONRequest(http.MethodPost, path, credentials)
	if err != nil {
		return err
	}
	req.NoQueue = true

	resp, err := c.Execute(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := resp.Decode(&body); err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}
	if body.Token == "" {
		return ErrNoToken
	}
	return c.tokens.Set(ctx, body.Token)
}

// Logout notifies the backend when path is set, then clears the token
// whatever the backend answered.
func (c *Context) Logout(ctx context.Context, path string) error {
	var callErr error
	if path != "" {
		req := domain.NewRequest(http.MethodPost, path, nil)
		req.NoQueue = true
		req.Attempt.MaxAttempts = 1
		_, callErr = c.Execute(ctx, req)
	}

	if err := c.tokens.Clear(ctx); err != nil {
		return err
	}
	if callErr != nil {
		return fmt.Errorf("logout call failed, token cleared: %w", callErr)
	}
	return nil
}
