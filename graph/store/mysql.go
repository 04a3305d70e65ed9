package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL implementation of Store for deployments where
// several services share one checkpoint database. Each checkpoint write is
// an upsert inside a transaction, so readers never observe a torn row.
//
// The DSN must include parseTime=true, e.g.
//
//	user:pass@tcp(localhost:3306)/stategraph?parseTime=true
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore connects to MySQL and runs schema migration.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS thread_checkpoints (
			thread_id VARCHAR(255) NOT NULL PRIMARY KEY,
			superstep INT NOT NULL,
			state JSON NOT NULL,
			frontier JSON NOT NULL,
			pending_interrupt JSON,
			updated_at DATETIME(6) NOT NULL
		) ENGINE=InnoDB
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create thread_checkpoints table: %w", err)
	}
	return nil
}

// Save upserts the thread's checkpoint in a transaction.
func (s *MySQLStore) Save(ctx context.Context, cp Checkpoint) error {
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
	var pending any
	if pendingJSON != "" {
		pending = pendingJSON
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
		ON DUPLICATE KEY UPDATE
			superstep = VALUES(superstep),
			state = VALUES(state),
			frontier = VALUES(frontier),
			pending_interrupt = VALUES(pending_interrupt),
			updated_at = VALUES(updated_at)
	`
	_, err = tx.ExecContext(ctx, query,
		cp.ThreadID, cp.Superstep, stateJSON, frontierJSON, pending, cp.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

// Load reads the thread's checkpoint, or returns ErrNotFound.
func (s *MySQLStore) Load(ctx context.Context, threadID string) (Checkpoint, error) {
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
	)
	err := s.db.QueryRowContext(ctx, query, threadID).Scan(
		&cp.ThreadID, &cp.Superstep, &stateJSON, &frontierJSON, &pendingJSON, &cp.UpdatedAt)
	if err == sql.ErrNoRows {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if err := unmarshalCheckpointFields(&cp, stateJSON, frontierJSON, pendingJSON.String); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

// Delete removes the thread's checkpoint row. No-op for unknown threads.
func (s *MySQLStore) Delete(ctx context.Context, threadID string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM thread_checkpoints WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Close closes the database connection. Double-close is a no-op.
func (s *MySQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *MySQLStore) Ping(ctx context.Context) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

func (s *MySQLStore) ensureOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}
