package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lipvoice/voice-client/internal/errors"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get when the key is absent or has expired.
var ErrNotFound = errors.ErrNotFound

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store is a small SQLite-backed key/value file standing in for browser local storage.
// Entries may carry an expiry after which they read as absent.
type Store struct {
	db    *sql.DB
	log   zerolog.Logger
	clock func() time.Time
}

// Open initializes the store at path, creating parent directories as needed.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Store, error) {
	dsn := "file::memory:?_pragma=foreign_keys(ON)"
	if path != MemoryPath {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, errors.Wrapf(err, "create data dir")
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite")
	}
	// one connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping sqlite")
	}

	s := &Store{db: db, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    expires_at INTEGER,
    updated_at INTEGER NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrapf(err, "init schema")
	}
	return nil
}

// Close releases underlying resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value for key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value     []byte
		expiresAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM kv WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", key)
	}
	if expiresAt.Valid && !s.clock().Before(time.Unix(0, expiresAt.Int64)) {
		s.log.Debug().Str("key", key).Msg("stored value expired")
		if err := s.Delete(ctx, key); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("failed to delete expired value")
		}
		return nil, ErrNotFound
	}
	return value, nil
}

// Entry is one key written by SetBatch.
type Entry struct {
	Key       string
	Value     []byte
	ExpiresAt time.Time
}

const upsertSQL = `INSERT INTO kv(key, value, expires_at, updated_at) VALUES(?, ?, ?, ?)
	 ON CONFLICT(key) DO UPDATE SET value=excluded.value, expires_at=excluded.expires_at, updated_at=excluded.updated_at`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Set upserts key. A zero expiresAt keeps the value until it is deleted.
func (s *Store) Set(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	return s.set(ctx, s.db, Entry{Key: key, Value: value, ExpiresAt: expiresAt})
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.delete(ctx, s.db, key)
}

// SetBatch upserts entries and removes deletes in one transaction: either every
// change lands or none does.
func (s *Store) SetBatch(ctx context.Context, entries []Entry, deletes ...string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			if err := s.set(ctx, tx, e); err != nil {
				return err
			}
		}
		for _, key := range deletes {
			if err := s.delete(ctx, tx, key); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteBatch removes keys in one transaction.
func (s *Store) DeleteBatch(ctx context.Context, keys ...string) error {
	return s.SetBatch(ctx, nil, keys...)
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "begin batch")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warn().Err(rbErr).Msg("rollback batch")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit batch")
	}
	return nil
}

func (s *Store) set(ctx context.Context, db execer, e Entry) error {
	var exp sql.NullInt64
	if !e.ExpiresAt.IsZero() {
		exp = sql.NullInt64{Int64: e.ExpiresAt.UnixNano(), Valid: true}
	}
	if _, err := db.ExecContext(ctx, upsertSQL, e.Key, e.Value, exp, s.clock().UnixNano()); err != nil {
		return errors.Wrapf(err, "set %s", e.Key)
	}
	return nil
}

func (s *Store) delete(ctx context.Context, db execer, key string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return errors.Wrapf(err, "delete %s", key)
	}
	return nil
}

// SetClock overrides the time source (tests).
func (s *Store) SetClock(clock func() time.Time) {
	s.clock = clock
}
