package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// testCheckpoint builds a representative checkpoint with a fan-out frontier
// and a pending interrupt for store conformance tests.
func testCheckpoint(threadID string, superstep int) Checkpoint {
	return Checkpoint{
		ThreadID:  threadID,
		Superstep: superstep,
		State: map[string]any{
			"question": "what does pkg/scan do?",
			"findings": []any{
				map[string]any{"id": "f-1", "note": "walks the tree"},
			},
		},
		Frontier: []Task{
			{Node: "collect", Input: map[string]any{"file": "a.go"}, Index: 0},
			{Node: "collect", Input: map[string]any{"file": "b.go"}, Index: 1},
		},
		Pending: &Interrupt{
			ID:        "clarify-1",
			Node:      "clarify",
			TaskIndex: 0,
			Payload:   map[string]any{"kind": "question", "content": "which branch?"},
		},
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

// runStoreConformance exercises the Store contract shared by every backend:
// save/load round trip, overwrite, not-found, and delete.
func runStoreConformance(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("load missing thread returns ErrNotFound", func(t *testing.T) {
		if _, err := st.Load(ctx, "never-ran"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("save and load round trip", func(t *testing.T) {
		want := testCheckpoint("thread-1", 3)
		if err := st.Save(ctx, want); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		got, err := st.Load(ctx, "thread-1")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got.ThreadID != want.ThreadID || got.Superstep != want.Superstep {
			t.Errorf("identity mismatch: got %s/%d, want %s/%d",
				got.ThreadID, got.Superstep, want.ThreadID, want.Superstep)
		}
		if len(got.Frontier) != 2 {
			t.Fatalf("expected 2 frontier tasks, got %d", len(got.Frontier))
		}
		if got.Frontier[1].Node != "collect" || got.Frontier[1].Index != 1 {
			t.Errorf("frontier task mismatch: %+v", got.Frontier[1])
		}
		if got.Pending == nil {
			t.Fatal("expected pending interrupt to survive round trip")
		}
		if got.Pending.ID != "clarify-1" || got.Pending.Node != "clarify" {
			t.Errorf("pending interrupt mismatch: %+v", got.Pending)
		}
		if got.State["question"] != "what does pkg/scan do?" {
			t.Errorf("state channel mismatch: %v", got.State["question"])
		}
	})

	t.Run("save overwrites previous checkpoint", func(t *testing.T) {
		first := testCheckpoint("thread-2", 1)
		if err := st.Save(ctx, first); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		second := testCheckpoint("thread-2", 2)
		second.Pending = nil
		second.Frontier = nil
		if err := st.Save(ctx, second); err != nil {
			t.Fatalf("Save (overwrite) failed: %v", err)
		}

		got, err := st.Load(ctx, "thread-2")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got.Superstep != 2 {
			t.Errorf("expected superstep 2 after overwrite, got %d", got.Superstep)
		}
		if got.Pending != nil {
			t.Error("expected pending interrupt cleared after overwrite")
		}
		if !got.Done() {
			t.Error("expected overwritten checkpoint to report Done")
		}
	})

	t.Run("delete removes checkpoint", func(t *testing.T) {
		if err := st.Save(ctx, testCheckpoint("thread-3", 1)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := st.Delete(ctx, "thread-3"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := st.Load(ctx, "thread-3"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("delete unknown thread is a no-op", func(t *testing.T) {
		if err := st.Delete(ctx, "unknown"); err != nil {
			t.Fatalf("Delete of unknown thread failed: %v", err)
		}
	})

	t.Run("empty thread ID rejected", func(t *testing.T) {
		if err := st.Save(ctx, Checkpoint{}); err == nil {
			t.Fatal("expected error saving checkpoint with empty thread ID")
		}
	})
}
