package toolexec

import (
	"errors"
	"strings"
)

// Sentinel errors for spec §7's behavioral error taxonomy, checked with
// errors.Is, grounded on the teacher's internal/agent/errors.go.
var (
	ErrUnknownTool = errors.New("toolexec: unknown tool")
	ErrAborted     = errors.New("aborted")
)

// ToolErrorType classifies a tool failure for retry/metrics purposes,
// mirroring the teacher's ToolErrorType enum.
type ToolErrorType string

const (
	ToolErrorTimeout     ToolErrorType = "timeout"
	ToolErrorPanic       ToolErrorType = "panic"
	ToolErrorUnknown     ToolErrorType = "unknown_tool"
	ToolErrorInvalidArgs ToolErrorType = "invalid_input"
	ToolErrorExecution   ToolErrorType = "execution"
)

// ToolError carries structured context about a single tool failure. Attempts
// is always 1: this Executor does not itself retry a failed tool call (spec
// §4.4 leaves retry to the caller, unlike agentloop's StreamFn retry), so the
// field exists for shape parity with the taxonomy rather than varying here.
type ToolError struct {
	Type       ToolErrorType
	ToolName   string
	ToolCallID string
	Message    string
	Cause      error
	Retryable  bool
	Attempts   int
}

func (e *ToolError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return string(e.Type)
}

func (e *ToolError) Unwrap() error { return e.Cause }

func newToolError(typ ToolErrorType, toolName, callID string, cause error) *ToolError {
	e := &ToolError{Type: typ, ToolName: toolName, ToolCallID: callID, Cause: cause, Attempts: 1}
	if cause != nil {
		e.Message = cause.Error()
	}
	e.Retryable = typ == ToolErrorTimeout
	return e
}

// classifyToolError pattern-matches a failure message into a ToolErrorType
// when the caller hasn't already determined one explicitly (panic/unknown
// tool/invalid-input are detected at their call sites instead, since those
// are known exactly rather than guessed from text). Grounded on the
// teacher's keyword-based error classification ahead of metrics/retry
// decisions; defaults to ToolErrorExecution when no keyword matches.
func classifyToolError(message string) ToolErrorType {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return ToolErrorTimeout
	case strings.Contains(lower, "invalid") || strings.Contains(lower, "schema") || strings.Contains(lower, "argument"):
		return ToolErrorInvalidArgs
	default:
		return ToolErrorExecution
	}
}
