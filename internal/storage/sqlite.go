package storage

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"news_digest/internal/model"
	"news_digest/migrations"
)

// Fixed width so that text order in first_seen_at matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// Option configures a SQLite store.
type Option func(*SQLite)

// WithClock overrides the clock used for first-seen timestamps and purge
// cutoffs.
func WithClock(now func() time.Time) Option {
	return func(s *SQLite) {
		s.now = now
	}
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(ctx context.Context, dsn string, opts ...Option) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &model.StoreError{Op: "open", Err: err}
	}
	// One connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, &model.StoreError{Op: "set WAL mode", Err: err}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, &model.StoreError{Op: "set busy timeout", Err: err}
	}

	if err := migrations.Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, &model.StoreError{Op: "migrate", Err: err}
	}

	s := &SQLite{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Exists checks whether an item has already been processed.
func (s *SQLite) Exists(ctx context.Context, source model.Source, externalID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM seen_items WHERE source = ? AND external_id = ?`,
		source.Key(), externalID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &model.StoreError{Op: "check seen", Err: err}
	}
	return true, nil
}

// Unseen filters ids down to those not stored for source.
func (s *SQLite) Unseen(ctx context.Context, source model.Source, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT external_id FROM seen_items WHERE source = ?`, source.Key(),
	)
	if err != nil {
		return nil, &model.StoreError{Op: "query seen ids", Err: err}
	}
	defer func() { _ = rows.Close() }()

	seen := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &model.StoreError{Op: "scan seen id", Err: err}
		}
		seen[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StoreError{Op: "query seen ids", Err: err}
	}

	var unseen []string
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			unseen = append(unseen, id)
		}
	}
	return unseen, nil
}

// Insert records a new item. FirstSeenAt defaults to the store clock.
func (s *SQLite) Insert(ctx context.Context, item model.StoredItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	firstSeen := item.FirstSeenAt
	if firstSeen.IsZero() {
		firstSeen = s.now()
	}
	key := item.Source.Key()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &model.StoreError{Op: "begin tx", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM seen_items WHERE source = ? AND external_id = ?`,
		key, item.ExternalID,
	).Scan(&one)
	switch {
	case err == nil:
		return &model.DuplicateKeyError{Source: key, ExternalID: item.ExternalID}
	case !errors.Is(err, sql.ErrNoRows):
		return &model.StoreError{Op: "check seen", Err: err}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO seen_items (source, external_id, first_seen_at) VALUES (?, ?, ?)`,
		key, item.ExternalID, firstSeen.UTC().Format(timeLayout),
	); err != nil {
		return &model.StoreError{Op: "insert seen item", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &model.StoreError{Op: "commit", Err: err}
	}
	return nil
}

// Purge removes items first seen before now minus olderThan.
func (s *SQLite) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-olderThan).UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &model.StoreError{Op: "begin tx", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM seen_items WHERE first_seen_at < ?`, cutoff)
	if err != nil {
		return 0, &model.StoreError{Op: "purge", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &model.StoreError{Op: "purge rows affected", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return 0, &model.StoreError{Op: "commit", Err: err}
	}
	return n, nil
}

// Count returns the number of stored items.
func (s *SQLite) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM seen_items`).Scan(&n); err != nil {
		return 0, &model.StoreError{Op: "count", Err: err}
	}
	return n, nil
}
