package toolexec

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/haasonsaas/agentcore/internal/abortsignal"
	"github.com/haasonsaas/agentcore/internal/observability"
)

// Config bounds tool execution: a per-call timeout and an optional global
// concurrency cap. Spec §4.4 leaves parallelism unbounded by default
// ("tools are expected to internally bound themselves"); Config.MaxInFlight
// <= 0 means unbounded, grounded on the teacher's ExecutorConfig.
type Config struct {
	// Timeout bounds a single tool call; 0 means no executor-imposed
	// timeout (the call still observes Signal.Done()).
	Timeout time.Duration
	// MaxInFlight caps concurrent tool executions across one ExecuteAll
	// call. 0 or negative means unbounded.
	MaxInFlight int
}

// DefaultConfig mirrors the teacher's DefaultExecutorConfig shape, adapted
// to spec §4.4's unbounded-by-default parallelism.
func DefaultConfig() Config {
	return Config{Timeout: 2 * time.Minute, MaxInFlight: 0}
}

// Executor dispatches ToolCalls against a Registry with panic isolation,
// per-call abort signals, and ordered result collection (spec §4.4).
// Grounded on the teacher's internal/agent/executor.go.
type Executor struct {
	registry *Registry
	config   Config
	sem      chan struct{}

	onEvent func(Event)
	metrics *observability.Metrics
	tracer  *observability.Tracer
	logger  *slog.Logger
}

// Event is an executor lifecycle notification (spec §4.4's
// tool_execution_start/update/end), forwarded to agentloop's EventFanOut.
type Event struct {
	Kind          EventKind
	CallID        string
	ToolName      string
	Arguments     map[string]any
	PartialResult *Result
	Result        *Result
	IsError       bool
}

// EventKind discriminates Event variants.
type EventKind string

const (
	EventStart  EventKind = "tool_execution_start"
	EventUpdate EventKind = "tool_execution_update"
	EventEnd    EventKind = "tool_execution_end"
)

// NewExecutor creates an Executor bound to registry. onEvent may be nil.
func NewExecutor(registry *Registry, config Config, onEvent func(Event)) *Executor {
	var sem chan struct{}
	if config.MaxInFlight > 0 {
		sem = make(chan struct{}, config.MaxInFlight)
	}
	return &Executor{registry: registry, config: config, sem: sem, onEvent: onEvent, logger: slog.Default()}
}

// WithMetrics attaches a Metrics recorder, returning the Executor for
// chaining. A nil metrics argument is a no-op (Metrics methods are already
// nil-safe, but this keeps call sites from needing to check).
func (e *Executor) WithMetrics(m *observability.Metrics) *Executor {
	e.metrics = m
	return e
}

// WithTracer attaches a Tracer, returning the Executor for chaining. A nil
// tracer leaves Execute's span calls as no-ops (Tracer.Start is nil-safe).
func (e *Executor) WithTracer(t *observability.Tracer) *Executor {
	e.tracer = t
	return e
}

// WithLogger attaches a Logger, returning the Executor for chaining. A nil
// argument leaves the slog.Default() fallback from NewExecutor in place.
func (e *Executor) WithLogger(l *slog.Logger) *Executor {
	if l != nil {
		e.logger = l
	}
	return e
}

// Call is one dispatch request: a tool-call id/name/arguments triple. The
// parent AbortSignal the call derives its child signal from is passed to
// Execute/ExecuteAll separately.
type Call struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ExecuteAll runs every call concurrently (spec §4.4: "dispatched
// concurrently"), returning exactly one Result per call in the original
// call order (spec: "For every ToolCall in the Assistant message, exactly
// one ToolResult entry is appended, in the original call order").
func (e *Executor) ExecuteAll(ctx context.Context, parent *abortsignal.Signal, calls []Call) []Result {
	if len(calls) == 0 {
		return nil
	}
	results := make([]Result, len(calls))
	var wg sync.WaitGroup
	for i, c := range calls {
		wg.Add(1)
		go func(idx int, call Call) {
			defer wg.Done()
			results[idx] = e.Execute(ctx, parent, call)
		}(i, c)
	}
	wg.Wait()
	return results
}

// Execute runs a single tool call, isolating panics and timeouts into an
// ErrorResult (spec §4.4: "Tool execute must never propagate a crash...
// crashes/exceptions become ErrorResult{message: formatted_crash}, timeouts
// become ErrorResult{message: "aborted"}").
func (e *Executor) Execute(ctx context.Context, parent *abortsignal.Signal, call Call) Result {
	ctx, span := e.tracer.ToolExecutionSpan(ctx, call.Name, call.ID, 1)
	defer span.End()

	e.emit(Event{Kind: EventStart, CallID: call.ID, ToolName: call.Name, Arguments: call.Arguments})

	if e.sem != nil {
		select {
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
		case <-ctx.Done():
			res := ErrorResult(newToolError(ToolErrorTimeout, call.Name, call.ID, ErrAborted).Error())
			e.emit(Event{Kind: EventEnd, CallID: call.ID, ToolName: call.Name, Result: &res, IsError: true})
			return res
		}
	}

	tool, ok := e.registry.Get(call.Name)
	if !ok {
		toolErr := &ToolError{
			Type: ToolErrorUnknown, ToolName: call.Name, ToolCallID: call.ID, Attempts: 1,
			Message: fmt.Sprintf("Unknown tool: %s", call.Name),
			Cause:   fmt.Errorf("%w: %s", ErrUnknownTool, call.Name),
		}
		e.logger.Warn("unknown tool call", "tool_name", call.Name, "call_id", call.ID)
		res := ErrorResult(toolErr.Error())
		e.emit(Event{Kind: EventEnd, CallID: call.ID, ToolName: call.Name, Result: &res, IsError: true})
		return res
	}

	if err := e.registry.Validate(call.Name, call.Arguments); err != nil {
		toolErr := newToolError(ToolErrorInvalidArgs, call.Name, call.ID, fmt.Errorf("invalid arguments for %s: %w", call.Name, err))
		e.logger.Warn("invalid tool arguments", "tool_name", call.Name, "call_id", call.ID, "error", err)
		res := ErrorResult(toolErr.Error())
		e.emit(Event{Kind: EventEnd, CallID: call.ID, ToolName: call.Name, Result: &res, IsError: true})
		return res
	}

	var signal *abortsignal.Signal
	var cancel context.CancelFunc
	if e.config.Timeout > 0 {
		signal, cancel = parent.ChildWithTimeout(e.config.Timeout)
	} else {
		signal = parent.Child()
	}
	if cancel != nil {
		defer cancel()
	} else {
		defer signal.Abort()
	}

	onUpdate := func(partial Result) {
		e.emit(Event{Kind: EventUpdate, CallID: call.ID, ToolName: call.Name, PartialResult: &partial})
	}

	start := time.Now()
	res := e.runIsolated(signal.Context(), tool, call, signal, onUpdate)
	status := "success"
	if res.IsError() {
		status = "error"
		e.tracer.RecordError(span, fmt.Errorf("%s: %s", classifyToolError(res.Err), res.Err))
	}
	e.metrics.RecordToolExecution(call.Name, status, time.Since(start).Seconds())
	e.emit(Event{Kind: EventEnd, CallID: call.ID, ToolName: call.Name, Result: &res, IsError: res.IsError()})
	return res
}

// runIsolated invokes tool.Execute in a goroutine so a panic is recovered
// without corrupting the executor's own stack, and so a context deadline
// (parent abort or per-call timeout) can produce an "aborted" ErrorResult
// even if the tool itself never returns (spec §5: "the executor does not
// force-kill" — the goroutine may still be running, but Execute returns).
func (e *Executor) runIsolated(ctx context.Context, tool Tool, call Call, signal *abortsignal.Signal, onUpdate OnUpdate) (result Result) {
	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				cause := fmt.Errorf("tool %q panicked: %v\n%s", call.Name, r, debug.Stack())
				e.logger.Error("tool panicked", "tool_name", call.Name, "call_id", call.ID, "recovered", r)
				done <- ErrorResult(newToolError(ToolErrorPanic, call.Name, call.ID, cause).Error())
			}
		}()
		done <- tool.Execute(ctx, call.ID, call.Arguments, signal, onUpdate)
	}()

	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		return ErrorResult(newToolError(ToolErrorTimeout, call.Name, call.ID, ErrAborted).Error())
	}
}

func (e *Executor) emit(ev Event) {
	if e.onEvent != nil {
		e.onEvent(ev)
	}
}
