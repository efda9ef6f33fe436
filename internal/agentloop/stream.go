package agentloop

import (
	"context"

	"github.com/haasonsaas/agentcore/internal/abortsignal"
	"github.com/haasonsaas/agentcore/pkg/session"
)

// Model describes the provider/model pair a turn is sent to (spec §6's
// defaultModel/scopedModels shape).
type Model struct {
	Provider string
	ModelID  string
	BaseURL  string
}

// ThinkingLevel configures reasoning depth, grounded on the teacher's
// agent.ThinkingLevel, renamed per DESIGN.md Open Question 3: the highest
// tier is named "xhigh" (spec §6 enumerates
// {off,minimal,low,medium,high,xhigh}) rather than the teacher's "max".
type ThinkingLevel string

const (
	ThinkingOff     ThinkingLevel = "off"
	ThinkingMinimal ThinkingLevel = "minimal"
	ThinkingLow     ThinkingLevel = "low"
	ThinkingMedium  ThinkingLevel = "medium"
	ThinkingHigh    ThinkingLevel = "high"
	ThinkingXHigh   ThinkingLevel = "xhigh"
)

// RequestContext is the assembled input to a single StreamFn call: the
// system prompt, the live branch (post-compaction), and available tools
// (spec §4.1 step 3).
type RequestContext struct {
	SystemPrompt string
	Messages     []*session.Entry
	Tools        []ToolSchema
}

// ToolSchema is the wire-facing shape of a tool's name/description/schema,
// independent of toolexec.Tool so this package need not import it for
// request-building purposes.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// StreamOpts carries the per-turn collaborators StreamFn needs beyond the
// request context itself (spec §4.1 step 5).
type StreamOpts struct {
	Signal        *abortsignal.Signal
	ThinkingLevel ThinkingLevel
}

// ProducerEventKind enumerates the wire-level events a StreamFn's event
// source produces (spec §4.1 step 5).
type ProducerEventKind string

const (
	ProducerStart         ProducerEventKind = "start"
	ProducerTextStart     ProducerEventKind = "text_start"
	ProducerTextDelta     ProducerEventKind = "text_delta"
	ProducerTextEnd       ProducerEventKind = "text_end"
	ProducerThinkingStart ProducerEventKind = "thinking_start"
	ProducerThinkingDelta ProducerEventKind = "thinking_delta"
	ProducerThinkingEnd   ProducerEventKind = "thinking_end"
	ProducerToolCallStart ProducerEventKind = "tool_call_start"
	ProducerToolCallEnd   ProducerEventKind = "tool_call_end"
	ProducerUsage         ProducerEventKind = "usage"
	ProducerDone          ProducerEventKind = "done"
	ProducerError         ProducerEventKind = "error"
)

// ProducerEvent is one item from a StreamFn's event source.
type ProducerEvent struct {
	Kind ProducerEventKind

	Index          int
	Chunk          string
	PartialToolCall *session.ToolCall
	ToolCall        *session.ToolCall
	Message         *session.Message

	Usage *session.Usage

	StopReason *session.StopReason
	FinalMsg   *session.Message

	ErrorKind string
	Cause     error
}

// StreamFn is the core's sole LLM collaborator (spec §1 non-goals, §4.1 step
// 5): given a model, a prepared request context, and per-turn options, it
// returns a channel of ProducerEvents terminated by exactly one {done} or
// {error} event. Implementations MUST stop sending once opts.Signal is
// aborted.
type StreamFn func(ctx context.Context, model Model, reqCtx RequestContext, opts StreamOpts) (<-chan ProducerEvent, error)
