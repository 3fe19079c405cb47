// Package journal persists the lifecycle of signing requests. Records never
// contain key material or signature bytes.
package journal

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
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
)

// Record is one signing request as seen by the broker.
type Record struct {
	ID         string `json:"id"`
	RequestID  int64  `json:"request_id"`
	Blockchain string `json:"blockchain"`
	Network    string `json:"network"`
	PublicKey  string `json:"public_key"`
	Origin     string `json:"origin"`
	Path       string `json:"path"`
	State      string `json:"state"`
	TxID       string `json:"tx_id,omitempty"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// NewRecord returns a record with a fresh correlation ID.
func NewRecord(requestID int64, now time.Time) Record {
	ts := now.UTC().Format(time.RFC3339)
	return Record{
		ID:        uuid.NewString(),
		RequestID: requestID,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

const lockTimeout = 5 * time.Second

type Journal struct {
	db   *sql.DB
	lock *flock.Flock
}

func Open(path, lockPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create journal lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open journal sqlite: %w", err)
	}

	j := &Journal{db: db, lock: flock.New(lockPath)}
	err = j.withLock(func() error {
		for _, q := range []string{
			`CREATE TABLE IF NOT EXISTS signing_requests (
				id TEXT PRIMARY KEY,
				request_id INTEGER NOT NULL,
				blockchain TEXT NOT NULL,
				state TEXT NOT NULL,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				payload BLOB NOT NULL
			);`,
			"CREATE INDEX IF NOT EXISTS idx_signing_requests_state_updated ON signing_requests(state, updated_at DESC);",
		} {
			if _, err := db.Exec(q); err != nil {
				return fmt.Errorf("init journal schema: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Save inserts or updates r by its correlation ID.
func (j *Journal) Save(r Record) error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("save signing request: missing id")
	}
	return j.withLock(func() error { return j.upsert(r) })
}

func (j *Journal) upsert(r Record) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal signing request: %w", err)
	}
	now := time.Now().UTC().Unix()
	createdUnix := unixOr(r.CreatedAt, now)
	updatedUnix := unixOr(r.UpdatedAt, now)

	_, err = j.db.Exec(`
		INSERT INTO signing_requests (id, request_id, blockchain, state, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state=excluded.state,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, r.ID, r.RequestID, r.Blockchain, r.State, createdUnix, updatedUnix, payload)
	if err != nil {
		return fmt.Errorf("save signing request: %w", err)
	}
	return nil
}

func (j *Journal) Get(id string) (Record, error) {
	var payload []byte
	err := j.db.QueryRow("SELECT payload FROM signing_requests WHERE id = ?", strings.TrimSpace(id)).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, clierr.New(clierr.CodeUsage, "signing request not found: "+id)
		}
		return Record{}, fmt.Errorf("read signing request: %w", err)
	}
	var r Record
	if err := json.Unmarshal(payload, &r); err != nil {
		return Record{}, fmt.Errorf("decode signing request: %w", err)
	}
	return r, nil
}

// List returns the most recently updated records, optionally filtered by state.
func (j *Journal) List(state string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(state) == "" {
		rows, err = j.db.Query("SELECT payload FROM signing_requests ORDER BY updated_at DESC, request_id DESC LIMIT ?", limit)
	} else {
		rows, err = j.db.Query("SELECT payload FROM signing_requests WHERE state = ? ORDER BY updated_at DESC, request_id DESC LIMIT ?", state, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list signing requests: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan signing request row: %w", err)
		}
		var r Record
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("decode signing request row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signing request rows: %w", err)
	}
	return records, nil
}

func unixOr(v string, fallback int64) int64 {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return fallback
	}
	return t.UTC().Unix()
}

func (j *Journal) withLock(fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := j.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock journal: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock journal: timeout acquiring lock")
	}
	defer func() { _ = j.lock.Unlock() }()
	return fn()
}
