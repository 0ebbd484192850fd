package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/solatis/varextract/internal/types"
)

// CollectionVersion describes one stored collection without its document.
type CollectionVersion struct {
	ID        types.CollectionID `db:"collection_id" json:"id"`
	Version   string             `db:"version" json:"version"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
}

type collectionRow struct {
	ID        types.CollectionID `db:"collection_id"`
	Version   string             `db:"version"`
	Document  string             `db:"document"`
	CreatedAt time.Time          `db:"created_at"`
}

// CollectionStore persists mapping collections per customer. Saves append a
// new row; the newest row is the active collection.
type CollectionStore struct {
	queries *Queries
	now     func() time.Time
}

// NewCollectionStore returns a store backed by q.
func NewCollectionStore(q *Queries) *CollectionStore {
	return &CollectionStore{queries: q, now: func() time.Time { return time.Now().UTC() }}
}

// Save stores c as the newest collection for customerID and returns it with
// its assigned ID.
func (s *CollectionStore) Save(ctx context.Context, customerID string, c *types.Collection) (*types.Collection, error) {
	stored := c.WithID(types.NewCollectionID())
	doc, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encoding collection: %w", err)
	}

	now := s.now()
	err = s.queries.InTx(ctx, func(tx *Tx) error {
		if _, err := tx.Exec(ctx, "insert-customer", customerID, customerID, now); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "insert-collection",
			string(stored.ID()), customerID, stored.Version(), string(doc), now,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return stored, nil
}

// Load returns the active collection for customerID, or
// types.ErrCollectionNotFound when none has been saved.
func (s *CollectionStore) Load(ctx context.Context, customerID string) (*types.Collection, error) {
	var row collectionRow
	err := s.queries.Get(ctx, "get-latest-collection", &row, customerID)
	return decodeRow(row, err)
}

// LoadVersion returns a specific stored collection.
func (s *CollectionStore) LoadVersion(ctx context.Context, customerID string, id types.CollectionID) (*types.Collection, error) {
	var row collectionRow
	err := s.queries.Get(ctx, "get-collection-by-id", &row, customerID, string(id))
	return decodeRow(row, err)
}

// LatestID returns the ID of the active collection without decoding it.
func (s *CollectionStore) LatestID(ctx context.Context, customerID string) (types.CollectionID, error) {
	var id types.CollectionID
	err := s.queries.Get(ctx, "get-latest-collection-id", &id, customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", types.ErrCollectionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("database error: %w", err)
	}
	return id, nil
}

// ListVersions returns the stored versions for customerID, newest first.
func (s *CollectionStore) ListVersions(ctx context.Context, customerID string) ([]CollectionVersion, error) {
	var versions []CollectionVersion
	if err := s.queries.Select(ctx, "list-collection-versions", &versions, customerID); err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return versions, nil
}

func decodeRow(row collectionRow, err error) (*types.Collection, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrCollectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	var c types.Collection
	if err := json.Unmarshal([]byte(row.Document), &c); err != nil {
		return nil, fmt.Errorf("stored collection %s: %w", row.ID, err)
	}
	return c.WithID(row.ID), nil
}
