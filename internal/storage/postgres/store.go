// Package postgres implements [storage.Store] on top of PostgreSQL via
// pgx/v5, selected by STATE_BACKEND=postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harmonium/harmonium/internal/storage"
)

// Compile-time interface assertion.
var _ storage.Store = (*Store)(nil)

const ddlCheckpoints = `
CREATE TABLE IF NOT EXISTS checkpoints (
	key           TEXT PRIMARY KEY,
	value         JSONB NOT NULL,
	saved_at_unix BIGINT NOT NULL
)`

// Store is a pgxpool-backed [storage.Store].
type Store struct {
	pool *pgxpool.Pool
}

// New establishes a connection pool to dsn and ensures the checkpoints table
// exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Migrate creates the checkpoints table if it does not already exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlCheckpoints); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Get implements [storage.Store].
func (s *Store) Get(ctx context.Context, key string) (storage.Checkpoint, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM checkpoints WHERE key = $1`, key).Scan(&raw)
	if err == pgx.ErrNoRows {
		return storage.Checkpoint{}, false, nil
	}
	if err != nil {
		return storage.Checkpoint{}, false, fmt.Errorf("postgres: get %q: %w", key, err)
	}
	var cp storage.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return storage.Checkpoint{}, false, fmt.Errorf("postgres: decode %q: %w", key, err)
	}
	return cp, true, nil
}

// Set implements [storage.Store], upserting by key.
func (s *Store) Set(ctx context.Context, key string, value storage.Checkpoint) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("postgres: encode %q: %w", key, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO checkpoints (key, value, saved_at_unix)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, saved_at_unix = EXCLUDED.saved_at_unix
	`, key, raw, value.SavedAtUnix)
	if err != nil {
		return fmt.Errorf("postgres: set %q: %w", key, err)
	}
	return nil
}

// Delete implements [storage.Store]. It is idempotent.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres: delete %q: %w", key, err)
	}
	return nil
}

// Scan implements [storage.Store].
func (s *Store) Scan(ctx context.Context, prefix string) ([]storage.Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM checkpoints WHERE key LIKE $1`, strings.ReplaceAll(prefix, "%", `\%`)+"%")
	if err != nil {
		return nil, fmt.Errorf("postgres: scan %q: %w", prefix, err)
	}
	defer rows.Close()

	var entries []storage.Entry
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		var cp storage.Checkpoint
		if err := json.Unmarshal(raw, &cp); err != nil {
			continue // drop corrupt records rather than fail the whole scan
		}
		entries = append(entries, storage.Entry{Key: key, Value: cp})
	}
	return entries, rows.Err()
}
