package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteStore_Conformance(t *testing.T) {
	runStoreConformance(t, newTestSQLiteStore(t))
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "durable.db")

	st, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	cp := testCheckpoint("persisted", 7)
	if err := st.Save(ctx, cp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopen simulates a new process picking up the same database.
	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, err := reopened.Load(ctx, "persisted")
	if err != nil {
		t.Fatalf("Load after reopen failed: %v", err)
	}
	if got.Superstep != 7 {
		t.Errorf("expected superstep 7 after reopen, got %d", got.Superstep)
	}
	if got.Pending == nil || got.Pending.ID != "clarify-1" {
		t.Errorf("pending interrupt lost across reopen: %+v", got.Pending)
	}
	if !got.UpdatedAt.Truncate(time.Millisecond).Equal(cp.UpdatedAt) {
		t.Errorf("updated_at mismatch: got %v, want %v", got.UpdatedAt, cp.UpdatedAt)
	}
}

func TestSQLiteStore_Closed(t *testing.T) {
	ctx := context.Background()
	st := newTestSQLiteStore(t)
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := st.Save(ctx, testCheckpoint("x", 1)); err == nil {
		t.Error("expected Save on closed store to fail")
	}
	if _, err := st.Load(ctx, "x"); err == nil {
		t.Error("expected Load on closed store to fail")
	}
	if err := st.Close(); err != nil {
		t.Errorf("double close should be a no-op, got %v", err)
	}
}

func TestSQLiteStore_InMemory(t *testing.T) {
	st, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore(:memory:) failed: %v", err)
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	if err := st.Save(ctx, testCheckpoint("mem", 1)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := st.Load(ctx, "mem"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := st.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
