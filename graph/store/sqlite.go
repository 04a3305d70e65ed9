package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store backed by a single-file
// database. Designed for:
//   - Local runs that must survive process restarts
//   - Development and testing with zero setup (use ":memory:")
//   - Prototyping before migrating to a networked store
//
// The store uses WAL mode for concurrent reads and writes each checkpoint
// in a transaction, so a reader never observes a torn checkpoint.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore opens (creating if necessary) the database at path and
// runs schema migration. Pass ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports a single writer; keep one connection open.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS thread_checkpoints (
			thread_id TEXT NOT NULL PRIMARY KEY,
			superstep INTEGER NOT NULL,
			state TEXT NOT NULL,
			frontier TEXT NOT NULL,
			pending_interrupt TEXT,
			updated_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create thread_checkpoints table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_checkpoints_updated ON thread_checkpoints(updated_at)"); err != nil {
		return fmt.Errorf("failed to create idx_checkpoints_updated: %w", err)
	}
	return nil
}

// Save upserts the thread's checkpoint in a transaction.
func (s *SQLiteStore) Save(ctx context.Context, cp Checkpoint) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if cp.ThreadID == "" {
		return fmt.Errorf("save checkpoint: thread ID cannot be empty")
	}

	stateJSON, frontierJSON, pendingJSON, err := marshalCheckpointFields(cp)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
		INSERT INTO thread_checkpoints (thread_id, superstep, state, frontier, pending_interrupt, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			superstep = excluded.superstep,
			state = excluded.state,
			frontier = excluded.frontier,
			pending_interrupt = excluded.pending_interrupt,
			updated_at = excluded.updated_at
	`
	_, err = tx.ExecContext(ctx, query,
		cp.ThreadID, cp.Superstep, stateJSON, frontierJSON, pendingJSON,
		cp.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

// Load reads the thread's checkpoint, or returns ErrNotFound.
func (s *SQLiteStore) Load(ctx context.Context, threadID string) (Checkpoint, error) {
	if err := s.ensureOpen(); err != nil {
		return Checkpoint{}, err
	}

	query := `
		SELECT thread_id, superstep, state, frontier, pending_interrupt, updated_at
		FROM thread_checkpoints
		WHERE thread_id = ?
	`
	var (
		cp           Checkpoint
		stateJSON    string
		frontierJSON string
		pendingJSON  sql.NullString
		updatedAt    string
	)
	err := s.db.QueryRowContext(ctx, query, threadID).Scan(
		&cp.ThreadID, &cp.Superstep, &stateJSON, &frontierJSON, &pendingJSON, &updatedAt)
	if err == sql.ErrNoRows {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if err := unmarshalCheckpointFields(&cp, stateJSON, frontierJSON, pendingJSON.String); err != nil {
		return Checkpoint{}, err
	}
	cp.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return cp, nil
}

// Delete removes the thread's checkpoint row. No-op for unknown threads.
func (s *SQLiteStore) Delete(ctx context.Context, threadID string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM thread_checkpoints WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Close closes the database connection. Double-close is a no-op.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

func (s *SQLiteStore) ensureOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// marshalCheckpointFields serializes the JSON columns shared by the SQL
// backends. A nil pending interrupt maps to an empty string (NULL-ish).
func marshalCheckpointFields(cp Checkpoint) (state, frontier, pending string, err error) {
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal state: %w", err)
	}
	if cp.Frontier == nil {
		cp.Frontier = []Task{}
	}
	frontierJSON, err := json.Marshal(cp.Frontier)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to marshal frontier: %w", err)
	}
	var pendingJSON []byte
	if cp.Pending != nil {
		pendingJSON, err = json.Marshal(cp.Pending)
		if err != nil {
			return "", "", "", fmt.Errorf("failed to marshal pending interrupt: %w", err)
		}
	}
	return string(stateJSON), string(frontierJSON), string(pendingJSON), nil
}

func unmarshalCheckpointFields(cp *Checkpoint, state, frontier, pending string) error {
	if err := json.Unmarshal([]byte(state), &cp.State); err != nil {
		return fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if err := json.Unmarshal([]byte(frontier), &cp.Frontier); err != nil {
		return fmt.Errorf("failed to unmarshal frontier: %w", err)
	}
	if pending != "" {
		cp.Pending = &Interrupt{}
		if err := json.Unmarshal([]byte(pending), cp.Pending); err != nil {
			return fmt.Errorf("failed to unmarshal pending interrupt: %w", err)
		}
	}
	return nil
}
