// Package toolexec implements the ToolRegistry & Executor (spec §4.4): tool
// lookup, concurrent argument dispatch, result capture, panic/timeout
// isolation, and progress updates. Grounded on the teacher's
// internal/agent/tool_registry.go and internal/agent/executor.go.
package toolexec

import (
	"context"

	"github.com/haasonsaas/agentcore/internal/abortsignal"
)

// Result is the sum type a Tool's Execute returns (spec §4.4).
type Result struct {
	// Content holds the ordered content blocks of a successful result.
	// Populated only when Err == "".
	Content []ResultBlock
	// Details carries tool-specific structured data alongside Content.
	Details any

	// Err is non-empty for an ErrorResult; Content/Details are ignored.
	Err string
}

// ResultBlock is a minimal content block a tool result may contain. It
// carries text only, like session.ContentBlock's text variant, without importing the
// session package, keeping the tool contract decoupled from the journal's
// wire format.
type ResultBlock struct {
	Text string
}

// IsError reports whether r represents an ErrorResult.
func (r Result) IsError() bool { return r.Err != "" }

// ErrorResult builds a failed Result carrying message as its error text.
func ErrorResult(message string) Result {
	return Result{Err: message}
}

// SuccessResult builds a successful Result from plain text content.
func SuccessResult(text string, details any) Result {
	return Result{Content: []ResultBlock{{Text: text}}, Details: details}
}

// OnUpdate is the progress callback a long-running Tool may invoke zero or
// more times before returning its final Result (spec §4.4). Each call
// broadcasts a tool_execution_update event but never finalizes the call.
type OnUpdate func(partial Result)

// Tool is the external contract every tool implementation satisfies (spec
// §4.4). The core never implements concrete tools; it only dispatches
// against this interface.
type Tool interface {
	Name() string
	Label() string
	Description() string
	// Parameters is a JSON-Schema object describing the tool's arguments.
	Parameters() map[string]any
	// Execute runs the tool. Implementations must poll signal.Aborted()
	// periodically for cooperative cancellation (spec §5) and must never
	// let a panic escape — the Executor recovers panics defensively, but a
	// well-behaved Tool returns an error Result instead.
	Execute(ctx context.Context, callID string, arguments map[string]any, signal *abortsignal.Signal, onUpdate OnUpdate) Result
}

// FuncTool adapts a plain function into a Tool, for tests and simple
// built-ins, grounded on the teacher's closure-based tool registration.
type FuncTool struct {
	ToolName        string
	ToolLabel       string
	ToolDescription string
	ToolParameters  map[string]any
	Fn              func(ctx context.Context, callID string, arguments map[string]any, signal *abortsignal.Signal, onUpdate OnUpdate) Result
}

func (f *FuncTool) Name() string              { return f.ToolName }
func (f *FuncTool) Label() string              { return f.ToolLabel }
func (f *FuncTool) Description() string        { return f.ToolDescription }
func (f *FuncTool) Parameters() map[string]any { return f.ToolParameters }

func (f *FuncTool) Execute(ctx context.Context, callID string, arguments map[string]any, signal *abortsignal.Signal, onUpdate OnUpdate) Result {
	return f.Fn(ctx, callID, arguments, signal, onUpdate)
}
