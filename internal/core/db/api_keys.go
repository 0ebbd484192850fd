package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// APIKey is a stored key's metadata. The key itself is never stored.
type APIKey struct {
	ID         string       `db:"api_key_id"`
	CustomerID string       `db:"customer_id"`
	Name       string       `db:"name"`
	CreatedAt  time.Time    `db:"created_at"`
	LastUsedAt sql.NullTime `db:"last_used_at"`
	RevokedAt  sql.NullTime `db:"revoked_at"`
}

// APIKeyStore manages API key rows.
type APIKeyStore struct {
	queries *Queries
}

// NewAPIKeyStore returns a store backed by q.
func NewAPIKeyStore(q *Queries) *APIKeyStore {
	return &APIKeyStore{queries: q}
}

// Insert records a key by its HMAC hash and returns the new key ID.
func (s *APIKeyStore) Insert(ctx context.Context, customerID, name, secretID string, keyHash []byte) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()
	now := time.Now().UTC()

	err := s.queries.InTx(ctx, func(tx *Tx) error {
		if _, err := tx.Exec(ctx, "insert-customer", customerID, customerID, now); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "insert-api-key", id, customerID, name, secretID, keyHash, now)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("database error: %w", err)
	}
	return id, nil
}

// Revoke marks a key revoked. Revoking an unknown or already revoked key
// returns sql.ErrNoRows.
func (s *APIKeyStore) Revoke(ctx context.Context, keyID string) error {
	res, err := s.queries.Exec(ctx, "revoke-api-key", time.Now().UTC(), keyID)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns the keys of customerID in creation order.
func (s *APIKeyStore) List(ctx context.Context, customerID string) ([]APIKey, error) {
	var keys []APIKey
	if err := s.queries.Select(ctx, "list-api-keys", &keys, customerID); err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return keys, nil
}
