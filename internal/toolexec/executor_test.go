package toolexec

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/agentcore/internal/abortsignal"
)

func echoTool(name string) *FuncTool {
	return &FuncTool{
		ToolName: name,
		Fn: func(ctx context.Context, callID string, arguments map[string]any, signal *abortsignal.Signal, onUpdate OnUpdate) Result {
			return SuccessResult("ok", arguments)
		},
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	reg := NewRegistry()
	ex := NewExecutor(reg, DefaultConfig(), nil)
	res := ex.Execute(context.Background(), abortsignal.New(), Call{ID: "c1", Name: "missing"})
	if !res.IsError() || res.Err != "Unknown tool: missing" {
		t.Fatalf("expected unknown tool error, got %+v", res)
	}
}

func TestExecuteAllPreservesOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(echoTool("a"))
	reg.Register(echoTool("b"))
	ex := NewExecutor(reg, DefaultConfig(), nil)

	calls := []Call{
		{ID: "1", Name: "a", Arguments: map[string]any{"x": 1}},
		{ID: "2", Name: "b", Arguments: map[string]any{"x": 2}},
		{ID: "3", Name: "missing"},
	}
	results := ex.ExecuteAll(context.Background(), abortsignal.New(), calls)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].IsError() || results[1].IsError() {
		t.Fatalf("expected successes, got %+v", results)
	}
	if !results[2].IsError() {
		t.Fatalf("expected error for unknown tool, got %+v", results[2])
	}
}

func TestExecutePanicIsolated(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&FuncTool{
		ToolName: "boom",
		Fn: func(ctx context.Context, callID string, arguments map[string]any, signal *abortsignal.Signal, onUpdate OnUpdate) Result {
			panic("kaboom")
		},
	})
	ex := NewExecutor(reg, DefaultConfig(), nil)
	res := ex.Execute(context.Background(), abortsignal.New(), Call{ID: "c1", Name: "boom"})
	if !res.IsError() {
		t.Fatalf("expected panic to be converted to an ErrorResult, got %+v", res)
	}
}

func TestExecuteAbortedProducesAbortedError(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&FuncTool{
		ToolName: "slow",
		Fn: func(ctx context.Context, callID string, arguments map[string]any, signal *abortsignal.Signal, onUpdate OnUpdate) Result {
			ticker := time.NewTicker(5 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-signal.Done():
					return ErrorResult("aborted")
				case <-ticker.C:
				}
			}
		},
	})
	ex := NewExecutor(reg, DefaultConfig(), nil)
	parent := abortsignal.New()
	go func() {
		time.Sleep(20 * time.Millisecond)
		parent.Abort()
	}()

	start := time.Now()
	res := ex.Execute(context.Background(), parent, Call{ID: "c1", Name: "slow"})
	if time.Since(start) > 2*time.Second {
		t.Fatalf("abort took too long to observe")
	}
	if !res.IsError() || res.Err != "aborted" {
		t.Fatalf("expected aborted error result, got %+v", res)
	}
}

func TestExecuteSchemaValidation(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&FuncTool{
		ToolName: "add",
		ToolParameters: map[string]any{
			"type":     "object",
			"required": []any{"a", "b"},
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
		},
		Fn: func(ctx context.Context, callID string, arguments map[string]any, signal *abortsignal.Signal, onUpdate OnUpdate) Result {
			return SuccessResult("ok", nil)
		},
	})
	ex := NewExecutor(reg, DefaultConfig(), nil)

	res := ex.Execute(context.Background(), abortsignal.New(), Call{ID: "c1", Name: "add", Arguments: map[string]any{"a": 1.0}})
	if !res.IsError() {
		t.Fatalf("expected schema validation failure for missing field b, got %+v", res)
	}

	res = ex.Execute(context.Background(), abortsignal.New(), Call{ID: "c2", Name: "add", Arguments: map[string]any{"a": 1.0, "b": 2.0}})
	if res.IsError() {
		t.Fatalf("expected success with valid arguments, got %+v", res)
	}
}
