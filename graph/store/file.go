package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore is a file-based implementation of Store, one JSON document per
// thread under a data directory. It supports cross-process resumption with
// zero setup: a suspended thread can be picked up later by a different
// process pointed at the same directory.
//
// Writes go through a temp file in the same directory followed by
// os.Rename, so a reader never observes a half-written checkpoint even if
// the process dies mid-save.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating the directory
// if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store: directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: failed to create directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Save atomically writes the thread's checkpoint.
func (f *FileStore) Save(_ context.Context, cp Checkpoint) error {
	if cp.ThreadID == "" {
		return fmt.Errorf("save checkpoint: thread ID cannot be empty")
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("save checkpoint: failed to marshal: %w", err)
	}

	final := f.path(cp.ThreadID)
	tmp, err := os.CreateTemp(f.dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("save checkpoint: failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("save checkpoint: failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("save checkpoint: failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("save checkpoint: failed to close temp file: %w", err)
	}

	// Rename within the same directory is atomic on POSIX filesystems.
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("save checkpoint: failed to replace checkpoint file: %w", err)
	}
	return nil
}

// Load reads the thread's checkpoint, or returns ErrNotFound.
func (f *FileStore) Load(_ context.Context, threadID string) (Checkpoint, error) {
	data, err := os.ReadFile(f.path(threadID))
	if os.IsNotExist(err) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("load checkpoint: failed to unmarshal: %w", err)
	}
	return cp, nil
}

// Delete removes the thread's checkpoint file. No-op if it doesn't exist.
func (f *FileStore) Delete(_ context.Context, threadID string) error {
	err := os.Remove(f.path(threadID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Dir returns the data directory. Useful for logging.
func (f *FileStore) Dir() string { return f.dir }

// path maps a thread ID to its checkpoint file, escaping path separators so
// arbitrary thread IDs can't climb out of the data directory.
func (f *FileStore) path(threadID string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", string(filepath.Separator), "_").Replace(threadID)
	return filepath.Join(f.dir, safe+".json")
}
