// Package cache is a sqlite-backed TTL cache for node query results. Entries
// past their TTL are still served within a caller-supplied staleness budget.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

const (
	lockTimeout = 5 * time.Second
	// retention keeps expired entries around as stale fallbacks.
	retention = 24 * time.Hour
)

type Store struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

type Result struct {
	Hit      bool
	Value    []byte
	Age      time.Duration
	Stale    bool
	TooStale bool
}

// Key joins a namespace and its parts into a cache key. Parts are lowercased
// so that equivalent network identities share entries.
func Key(namespace string, parts ...string) string {
	b := strings.Builder{}
	b.WriteString(namespace)
	for _, p := range parts {
		b.WriteByte('|')
		b.WriteString(strings.ToLower(strings.TrimSpace(p)))
	}
	return b.String()
}

func Open(path, lockPath string) (*Store, error) {
	for _, dir := range []string{filepath.Dir(path), filepath.Dir(lockPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}

	store := &Store{db: db, lock: flock.New(lockPath), now: time.Now}
	err = store.withLock(func() error {
		if _, err := db.Exec("CREATE TABLE IF NOT EXISTS query_cache (key TEXT PRIMARY KEY, value BLOB NOT NULL, stored_at INTEGER NOT NULL, ttl_ms INTEGER NOT NULL);"); err != nil {
			return fmt.Errorf("init cache schema: %w", err)
		}
		return store.prune(retention)
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// dsn sets busy_timeout before anything else on every pooled connection, so
// a concurrent writer switching to WAL makes this one wait instead of fail.
func dsn(path string) string {
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Prune removes entries that expired more than olderThan ago.
func (s *Store) Prune(olderThan time.Duration) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.withLock(func() error { return s.prune(olderThan) })
}

func (s *Store) prune(olderThan time.Duration) error {
	cutoff := s.now().Add(-olderThan).UTC().UnixMilli()
	if _, err := s.db.Exec("DELETE FROM query_cache WHERE stored_at + ttl_ms < ?", cutoff); err != nil {
		return fmt.Errorf("prune cache: %w", err)
	}
	return nil
}

// Get looks key up. A negative maxStale never marks an entry TooStale.
func (s *Store) Get(key string, maxStale time.Duration) (Result, error) {
	var (
		value    []byte
		storedMS int64
		ttlMS    int64
	)
	err := s.db.QueryRow("SELECT value, stored_at, ttl_ms FROM query_cache WHERE key = ?", key).Scan(&value, &storedMS, &ttlMS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("cache read: %w", err)
	}

	age := s.now().Sub(time.UnixMilli(storedMS))
	if age < 0 {
		age = 0
	}
	ttl := time.Duration(ttlMS) * time.Millisecond
	stale := age > ttl
	return Result{
		Hit:      true,
		Value:    value,
		Age:      age,
		Stale:    stale,
		TooStale: stale && maxStale >= 0 && age > ttl+maxStale,
	}, nil
}

// GetJSON decodes a hit into out. It reports the lookup result either way.
func (s *Store) GetJSON(key string, maxStale time.Duration, out any) (Result, error) {
	res, err := s.Get(key, maxStale)
	if err != nil || !res.Hit {
		return res, err
	}
	if err := json.Unmarshal(res.Value, out); err != nil {
		return Result{}, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return res, nil
}

func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	return s.withLock(func() error {
		ttlMS := ttl.Milliseconds()
		if ttlMS <= 0 {
			ttlMS = 1
		}
		_, err := s.db.Exec(`
		INSERT INTO query_cache (key, value, stored_at, ttl_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value=excluded.value,
			stored_at=excluded.stored_at,
			ttl_ms=excluded.ttl_ms
	`, key, value, s.now().UTC().UnixMilli(), ttlMS)
		if err != nil {
			return fmt.Errorf("cache write: %w", err)
		}
		return nil
	})
}

func (s *Store) SetJSON(key string, v any, ttl time.Duration) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	return s.Set(key, buf, ttl)
}

func (s *Store) Delete(key string) error {
	return s.withLock(func() error {
		if _, err := s.db.Exec("DELETE FROM query_cache WHERE key = ?", key); err != nil {
			return fmt.Errorf("cache delete: %w", err)
		}
		return nil
	})
}

func (s *Store) withLock(fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock cache: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}
