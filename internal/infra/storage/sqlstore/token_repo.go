package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/relay/internal/infra/token"
)

// TokenRepo implements token.Storage on the relay_tokens table.
type TokenRepo struct {
	db *DB
}

// NewTokenRepo creates a SQL-backed credential repository.
func NewTokenRepo(db *DB) *TokenRepo {
	return &TokenRepo{db: db}
}

// Get implements token.Storage.
func (r *TokenRepo) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.GetContext(ctx, &value,
		r.db.Rebind(`SELECT value FROM relay_tokens WHERE name = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", token.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}
	return value, nil
}

// Set implements token.Storage.
func (r *TokenRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO relay_tokens (name, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
		key, value)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Delete implements token.Storage.
func (r *TokenRepo) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM relay_tokens WHERE name = ?`), key)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

var _ token.Storage = (*TokenRepo)(nil)
