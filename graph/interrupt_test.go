package graph

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/dshills/stategraph-go/graph/store"
)

// reviewGraph wires the human-in-the-loop shape: draft -> review (suspends
// for approval) -> publish, with a revision loop back to draft on feedback.
func reviewGraph(t *testing.T, reviewRuns *atomic.Int64) *CompiledGraph {
	t.Helper()
	return compileGraph(t,
		[]Channel{
			{Name: "draft", Reducer: Replace()},
			{Name: "feedback", Reducer: Replace()},
			{Name: "approved", Reducer: Replace()},
			{Name: "published", Reducer: Replace()},
		},
		func(b *Builder) {
			_ = b.AddNode("draft", func(_ context.Context, view StateView, _ any) NodeResult {
				text := "v1"
				if feedback := view.GetString("feedback"); feedback != "" {
					text = "v1+" + feedback
				}
				return NodeResult{Update: Update{"draft": text}}
			})
			_ = b.AddNode("review", func(ctx context.Context, view StateView, _ any) NodeResult {
				reviewRuns.Add(1)
				answer, ok := ResumeValue(ctx)
				if !ok {
					return Suspend("approve-1", view.GetString("draft"))
				}
				if answer == "approve" {
					return NodeResult{Update: Update{"approved": true}}
				}
				return NodeResult{Update: Update{"feedback": answer}}
			})
			_ = b.AddNode("publish", func(_ context.Context, _ StateView, _ any) NodeResult {
				return NodeResult{Update: Update{"published": true}}
			})
			_ = b.AddEdge("draft", "review")
			_ = b.AddConditionalEdge("review", func(view StateView) RouteDecision {
				if approved, _ := view.Get("approved"); approved == true {
					return Next("publish")
				}
				return Next("draft")
			}, "publish", "draft")
			_ = b.AddEdge("publish", End)
			_ = b.SetStart("draft")
		})
}

func TestRunner_InterruptAndApprove(t *testing.T) {
	var reviewRuns atomic.Int64
	g := reviewGraph(t, &reviewRuns)

	runner, err := NewRunner(g, store.NewMemStore(), nil, WithMaxSupersteps(20))
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	ctx := context.Background()

	result, err := runner.Invoke(ctx, "review-1", Update{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result.Status != StatusInterrupted {
		t.Fatalf("status = %v, want interrupted", result.Status)
	}
	if result.Interrupt == nil || result.Interrupt.ID != "approve-1" {
		t.Fatalf("interrupt = %+v, want ID approve-1", result.Interrupt)
	}
	if result.Interrupt.Payload != "v1" {
		t.Errorf("payload = %v, want v1", result.Interrupt.Payload)
	}
	// Suspended: draft superstep committed, review superstep did not.
	if result.Superstep != 1 {
		t.Errorf("superstep = %d, want 1", result.Superstep)
	}

	final, err := runner.Resume(ctx, "review-1", "approve")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if final.Status != StatusCompleted {
		t.Fatalf("status = %v, want completed", final.Status)
	}
	if final.State["published"] != true {
		t.Errorf("published = %v, want true", final.State["published"])
	}
	// Review executed twice: once suspending, once re-executed with the
	// resume value.
	if got := reviewRuns.Load(); got != 2 {
		t.Errorf("review ran %d times, want 2", got)
	}
}

func TestRunner_InterruptFeedbackLoop(t *testing.T) {
	var reviewRuns atomic.Int64
	g := reviewGraph(t, &reviewRuns)

	runner, err := NewRunner(g, store.NewMemStore(), nil, WithMaxSupersteps(20))
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	ctx := context.Background()

	result, err := runner.Invoke(ctx, "review-2", Update{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result.Status != StatusInterrupted {
		t.Fatalf("status = %v, want interrupted", result.Status)
	}

	// Feedback routes back to draft, which suspends review again on the
	// revised text.
	result, err = runner.Resume(ctx, "review-2", "shorter")
	if err != nil {
		t.Fatalf("Resume with feedback failed: %v", err)
	}
	if result.Status != StatusInterrupted {
		t.Fatalf("status = %v, want interrupted again", result.Status)
	}
	if result.Interrupt.Payload != "v1+shorter" {
		t.Errorf("payload = %v, want revised draft", result.Interrupt.Payload)
	}

	final, err := runner.Resume(ctx, "review-2", "approve")
	if err != nil {
		t.Fatalf("Resume with approval failed: %v", err)
	}
	if final.Status != StatusCompleted {
		t.Fatalf("status = %v, want completed", final.Status)
	}
	if final.State["draft"] != "v1+shorter" {
		t.Errorf("draft = %v, want v1+shorter", final.State["draft"])
	}
}

func TestRunner_ResumeWithoutPendingInterrupt(t *testing.T) {
	g := compileGraph(t,
		[]Channel{{Name: "value", Reducer: Replace()}},
		func(b *Builder) {
			_ = b.AddNode("a", noopNode)
			_ = b.AddEdge("a", End)
			_ = b.SetStart("a")
		})
	runner, err := NewRunner(g, store.NewMemStore(), nil)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	ctx := context.Background()

	if _, err := runner.Invoke(ctx, "done-1", Update{}); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	before, err := runner.GetState(ctx, "done-1")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}

	result, err := runner.Resume(ctx, "done-1", "anything")
	if !errors.Is(err, ErrNoPendingInterrupt) {
		t.Fatalf("err = %v, want ErrNoPendingInterrupt", err)
	}
	if result.Status != StatusFailed {
		t.Errorf("status = %v, want failed", result.Status)
	}

	// Checkpoint untouched.
	after, err := runner.GetState(ctx, "done-1")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if after.Superstep != before.Superstep || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("failed Resume must not modify the checkpoint")
	}
}

func TestRunner_InvokeNilResurfacesInterrupt(t *testing.T) {
	var reviewRuns atomic.Int64
	g := reviewGraph(t, &reviewRuns)

	runner, err := NewRunner(g, store.NewMemStore(), nil, WithMaxSupersteps(20))
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	ctx := context.Background()

	if _, err := runner.Invoke(ctx, "review-3", Update{}); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	runs := reviewRuns.Load()

	// A nil initial on a suspended thread re-surfaces the interrupt
	// without executing anything.
	result, err := runner.Invoke(ctx, "review-3", nil)
	if err != nil {
		t.Fatalf("Invoke(nil) failed: %v", err)
	}
	if result.Status != StatusInterrupted {
		t.Fatalf("status = %v, want interrupted", result.Status)
	}
	if result.Interrupt == nil || result.Interrupt.ID != "approve-1" {
		t.Errorf("interrupt = %+v", result.Interrupt)
	}
	if reviewRuns.Load() != runs {
		t.Error("Invoke(nil) on a suspended thread must not execute tasks")
	}
}

func TestRunner_ConcurrentInterruptsFail(t *testing.T) {
	g := compileGraph(t,
		[]Channel{{Name: "value", Reducer: Replace()}},
		func(b *Builder) {
			_ = b.AddNode("split", noopNode)
			_ = b.AddNode("ask", func(_ context.Context, _ StateView, input any) NodeResult {
				return Suspend("ask-"+input.(string), nil)
			})
			_ = b.AddConditionalEdge("split", func(StateView) RouteDecision {
				return FanOut(
					FanOutTarget{Node: "ask", Input: "left"},
					FanOutTarget{Node: "ask", Input: "right"},
				)
			}, "ask")
			_ = b.SetStart("split")
		})

	runner, err := NewRunner(g, store.NewMemStore(), nil)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	ctx := context.Background()

	result, err := runner.Invoke(ctx, "multi-1", Update{})
	if !errors.Is(err, ErrConcurrentInterrupts) {
		t.Fatalf("err = %v, want ErrConcurrentInterrupts", err)
	}
	if result.Status != StatusFailed {
		t.Errorf("status = %v, want failed", result.Status)
	}

	cp, err := runner.GetState(ctx, "multi-1")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if cp.Pending != nil {
		t.Error("failed superstep must not record a pending interrupt")
	}
	if cp.Superstep != 1 {
		t.Errorf("checkpoint superstep = %d, want 1", cp.Superstep)
	}
}

func TestRunner_ResumeValueReachesOnlyInterruptedTask(t *testing.T) {
	var bystanderSawResume atomic.Bool
	var bystanderRuns atomic.Int64

	g := compileGraph(t,
		[]Channel{{Name: "value", Reducer: Replace()}},
		func(b *Builder) {
			_ = b.AddNode("split", noopNode)
			_ = b.AddNode("ask", func(ctx context.Context, _ StateView, _ any) NodeResult {
				if answer, ok := ResumeValue(ctx); ok {
					return NodeResult{Update: Update{"value": answer}}
				}
				return Suspend("ask-1", "question")
			})
			_ = b.AddNode("bystander", func(ctx context.Context, _ StateView, _ any) NodeResult {
				bystanderRuns.Add(1)
				if _, ok := ResumeValue(ctx); ok {
					bystanderSawResume.Store(true)
				}
				return NodeResult{}
			})
			_ = b.AddConditionalEdge("split", func(StateView) RouteDecision {
				return FanOut(
					FanOutTarget{Node: "ask"},
					FanOutTarget{Node: "bystander"},
				)
			}, "ask", "bystander")
			_ = b.SetStart("split")
		})

	runner, err := NewRunner(g, store.NewMemStore(), nil)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	ctx := context.Background()

	result, err := runner.Invoke(ctx, "inject-1", Update{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result.Status != StatusInterrupted {
		t.Fatalf("status = %v, want interrupted", result.Status)
	}

	final, err := runner.Resume(ctx, "inject-1", "42")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if final.Status != StatusCompleted {
		t.Fatalf("status = %v, want completed", final.Status)
	}
	if final.State["value"] != "42" {
		t.Errorf("value = %v, want 42", final.State["value"])
	}
	// The whole frontier re-executes on resume, but only the interrupted
	// task sees the resume value.
	if got := bystanderRuns.Load(); got != 2 {
		t.Errorf("bystander ran %d times, want 2", got)
	}
	if bystanderSawResume.Load() {
		t.Error("resume value leaked into a task that did not interrupt")
	}
}

func TestRunner_ResumeAcrossRunnerInstances(t *testing.T) {
	var reviewRuns atomic.Int64
	g := reviewGraph(t, &reviewRuns)

	st, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	first, err := NewRunner(g, st, nil, WithMaxSupersteps(20))
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	ctx := context.Background()

	result, err := first.Invoke(ctx, "restart-1", Update{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result.Status != StatusInterrupted {
		t.Fatalf("status = %v, want interrupted", result.Status)
	}

	// A fresh runner over the same store stands in for a process restart.
	second, err := NewRunner(g, st, nil, WithMaxSupersteps(20))
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	final, err := second.Resume(ctx, "restart-1", "approve")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if final.Status != StatusCompleted {
		t.Fatalf("status = %v, want completed", final.Status)
	}
	if final.State["published"] != true {
		t.Errorf("published = %v, want true", final.State["published"])
	}
}
