package agentloop

import (
	"errors"
	"fmt"
)

// Sentinel errors for spec §7's behavioral error taxonomy, checked with
// errors.Is, grounded on the teacher's internal/agent/errors.go.
var (
	// ErrAlreadyStreaming is returned by prompt() when the loop is not Idle.
	ErrAlreadyStreaming = errors.New("agentloop: already streaming")
	// ErrAborted marks cooperative cancellation surfaced to a caller.
	ErrAborted = errors.New("agentloop: aborted")
	// ErrCannotCompact is surfaced when compaction is required but no cut
	// point exists; distinct from compaction.ErrCannotCompact, which
	// maybeCompact replaces with this sentinel.
	ErrCannotCompact = errors.New("agentloop: cannot compact")
	// ErrUnknownEntry is returned by reset_to for an id not present in the
	// journal.
	ErrUnknownEntry = errors.New("agentloop: unknown entry")
)

// StreamError represents a transport/protocol failure from StreamFn (spec
// §7's stream_failed{wire_kind}).
type StreamError struct {
	WireKind  string
	Retryable bool
	Cause     error
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("agentloop: stream failed (%s): %v", e.WireKind, e.Cause)
	}
	return fmt.Sprintf("agentloop: stream failed (%s)", e.WireKind)
}

func (e *StreamError) Unwrap() error { return e.Cause }

// LoopPhase identifies where in the turn algorithm an error occurred,
// mirroring the teacher's LoopPhase.
type LoopPhase string

const (
	PhaseInit         LoopPhase = "init"
	PhaseStream       LoopPhase = "stream"
	PhaseExecuteTools LoopPhase = "execute_tools"
	PhaseContinue     LoopPhase = "continue"
	PhaseComplete     LoopPhase = "complete"
)

// LoopError carries phase/iteration context about a turn-algorithm failure,
// mirroring the teacher's LoopError.
type LoopError struct {
	Phase     LoopPhase
	Iteration int
	Message   string
	Cause     error
}

func (e *LoopError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("agentloop: error at %s (iteration %d): %s", e.Phase, e.Iteration, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("agentloop: error at %s (iteration %d): %v", e.Phase, e.Iteration, e.Cause)
	}
	return fmt.Sprintf("agentloop: error at %s (iteration %d)", e.Phase, e.Iteration)
}

func (e *LoopError) Unwrap() error { return e.Cause }
