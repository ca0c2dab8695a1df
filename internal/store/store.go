// Package store persists per-task trigger configuration and last-result
// records in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	logging "github.com/ipfs/go-log/v2"
	_ "modernc.org/sqlite"

	"github.com/aristath/taskcycle/internal/task"
	"github.com/aristath/taskcycle/internal/trigger"
)

var log = logging.Logger("taskcycle/store")

// Store holds the two durable records kept per task identity. Absence of a
// record is reported as found=false, never as an error.
type Store interface {
	LoadTriggerConfig(ctx context.Context, id task.Identity) ([]trigger.Descriptor, bool, error)
	SaveTriggerConfig(ctx context.Context, id task.Identity, ds []trigger.Descriptor) error

	LoadLastResult(ctx context.Context, id task.Identity) (task.Result, bool, error)
	SaveLastResult(ctx context.Context, id task.Identity, r task.Result) error

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the store at dbPath.
// Creates parent directories. Enables WAL mode and a busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// LoadTriggerConfig returns the persisted descriptor sequence for id.
func (s *SQLiteStore) LoadTriggerConfig(ctx context.Context, id task.Identity) ([]trigger.Descriptor, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT triggers FROM trigger_configs WHERE task_id = ?`, string(id)).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load trigger config: %w", err)
	}

	var ds []trigger.Descriptor
	if err := json.Unmarshal([]byte(raw), &ds); err != nil {
		return nil, false, fmt.Errorf("failed to decode trigger config: %w", err)
	}
	return ds, true, nil
}

// SaveTriggerConfig upserts the descriptor sequence for id.
func (s *SQLiteStore) SaveTriggerConfig(ctx context.Context, id task.Identity, ds []trigger.Descriptor) error {
	raw, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("failed to encode trigger config: %w", err)
	}
	fp := fmt.Sprintf("%016x", trigger.Fingerprint(ds))

	return s.execWithRetry(ctx, `
		INSERT INTO trigger_configs (task_id, triggers, fingerprint, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(task_id) DO UPDATE SET
			triggers = excluded.triggers,
			fingerprint = excluded.fingerprint,
			updated_at = CURRENT_TIMESTAMP
	`, string(id), string(raw), fp)
}

// LoadLastResult returns the most recent persisted run result for id.
func (s *SQLiteStore) LoadLastResult(ctx context.Context, id task.Identity) (task.Result, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM last_results WHERE task_id = ?`, string(id)).Scan(&raw)
	if err == sql.ErrNoRows {
		return task.Result{}, false, nil
	}
	if err != nil {
		return task.Result{}, false, fmt.Errorf("failed to load last result: %w", err)
	}

	var r task.Result
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return task.Result{}, false, fmt.Errorf("failed to decode last result: %w", err)
	}
	return r, true, nil
}

// SaveLastResult upserts the run result for id, superseding any prior one.
func (s *SQLiteStore) SaveLastResult(ctx context.Context, id task.Identity, r task.Result) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	return s.execWithRetry(ctx, `
		INSERT INTO last_results (task_id, result, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(task_id) DO UPDATE SET
			result = excluded.result,
			updated_at = CURRENT_TIMESTAMP
	`, string(id), string(raw))
}

// execWithRetry runs a write statement under capped exponential backoff to
// ride out transient SQLITE_BUSY contention.
func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...any) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = 2 * time.Second

	attempt := 0
	op := func() error {
		attempt++
		_, err := s.db.ExecContext(ctx, query, args...)
		if err != nil && attempt > 1 {
			log.Debugw("retrying write", "attempt", attempt, "error", err)
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("write failed after %d attempts: %w", attempt, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
