package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemStore is an in-memory implementation of Store.
//
// Checkpoints live for the process lifetime only. Designed for:
//   - Testing and development
//   - Short-lived runs where cross-process resumption isn't required
//
// MemStore is thread-safe. Saved and loaded checkpoints are deep-copied
// through JSON so callers never share mutable state with the store.
type MemStore struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint // threadID -> latest checkpoint
}

// NewMemStore creates an empty in-memory checkpoint store.
func NewMemStore() *MemStore {
	return &MemStore{
		checkpoints: make(map[string]Checkpoint),
	}
}

// Save stores a deep copy of the checkpoint, overwriting any previous
// checkpoint for the same thread. The copy makes the write atomic from the
// caller's point of view: later mutation of cp cannot tear a stored value.
func (m *MemStore) Save(_ context.Context, cp Checkpoint) error {
	if cp.ThreadID == "" {
		return fmt.Errorf("save checkpoint: thread ID cannot be empty")
	}

	copied, err := copyCheckpoint(cp)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[cp.ThreadID] = copied
	return nil
}

// Load returns a deep copy of the thread's checkpoint, or ErrNotFound.
func (m *MemStore) Load(_ context.Context, threadID string) (Checkpoint, error) {
	m.mu.RLock()
	cp, exists := m.checkpoints[threadID]
	m.mu.RUnlock()

	if !exists {
		return Checkpoint{}, ErrNotFound
	}

	copied, err := copyCheckpoint(cp)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load checkpoint: %w", err)
	}
	return copied, nil
}

// Delete removes the thread's checkpoint. No-op for unknown threads.
func (m *MemStore) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkpoints, threadID)
	return nil
}

// copyCheckpoint deep-copies a checkpoint via a JSON round trip. State and
// interrupt payloads are required to be JSON-serializable, so this also
// validates the checkpoint the same way the durable backends would.
func copyCheckpoint(cp Checkpoint) (Checkpoint, error) {
	data, err := json.Marshal(cp)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	var copied Checkpoint
	if err := json.Unmarshal(data, &copied); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return copied, nil
}
