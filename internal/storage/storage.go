// Package storage defines the persistence interface for processed items and
// its SQLite implementation.
package storage

import (
	"context"
	"time"

	"news_digest/internal/model"
)

// Storage records which items have already been processed.
type Storage interface {
	// Exists reports whether the item identified by source and externalID
	// has been stored.
	Exists(ctx context.Context, source model.Source, externalID string) (bool, error)
	// Unseen returns the ids from ids that are not stored yet, in input order.
	Unseen(ctx context.Context, source model.Source, ids []string) ([]string, error)
	// Insert stores a new item. It fails with *model.DuplicateKeyError when
	// the identity is already stored.
	Insert(ctx context.Context, item model.StoredItem) error
	// Purge deletes every item first seen more than olderThan ago and returns
	// how many were removed. It either removes all of them or none.
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
	// Count returns the number of stored items.
	Count(ctx context.Context) (int64, error)

	Close() error
}
