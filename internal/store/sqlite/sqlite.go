// Package sqlite provides an on-disk store.Store backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/capitalize-ai/assistant/internal/store"
	"github.com/capitalize-ai/assistant/pkg/logger"
)

// Store keeps profiles, tokens, and snapshots in a single SQLite file.
// All public methods are safe for concurrent use.
type Store struct {
	db     *sql.DB
	ttl    time.Duration
	now    func() time.Time
	logger *logger.Logger
}

// Open opens (or creates) the database at path. A zero ttl keeps
// snapshots until they are deleted explicitly.
func Open(path string, ttl time.Duration, log *logger.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and serializes writes.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, ttl: ttl, now: time.Now, logger: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS snapshots (
		id         TEXT PRIMARY KEY,
		blob       BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put upserts value under key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM kv WHERE key = ?`, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return n > 0, nil
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// PutSnapshot stores blob under id. Rewriting an existing id is rejected.
func (s *Store) PutSnapshot(ctx context.Context, id string, blob []byte) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, blob, created_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		id, blob, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("put snapshot %s: %w", id, store.ErrExists)
	}
	return nil
}

// GetSnapshot returns the blob stored under id. Expired snapshots are
// reported as missing even before the purge loop removes them.
func (s *Store) GetSnapshot(ctx context.Context, id string) ([]byte, error) {
	var (
		blob      []byte
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT blob, created_at FROM snapshots WHERE id = ?`, id,
	).Scan(&blob, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", id, err)
	}
	if s.ttl > 0 && s.now().Sub(time.Unix(0, createdAt)) > s.ttl {
		return nil, store.ErrNotFound
	}
	return blob, nil
}

// DeleteSnapshot removes id. Missing snapshots are not an error.
func (s *Store) DeleteSnapshot(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	return nil
}

// PurgeExpired deletes snapshots older than the TTL and returns how many
// were removed. It does nothing when no TTL is configured.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.ttl).UnixNano()
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge snapshots: %w", err)
	}
	return res.RowsAffected()
}

// RunJanitor purges expired snapshots every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				s.logger.Warn("snapshot purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("purged expired snapshots", zap.Int64("count", n))
			}
		}
	}
}
