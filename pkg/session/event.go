package session

import "time"

// EventType is the external event-taxonomy contract from spec §6.
type EventType string

const (
	EventAgentStart        EventType = "agent_start"
	EventTurnStart         EventType = "turn_start"
	EventMessageStart      EventType = "message_start"
	EventMessageUpdate     EventType = "message_update"
	EventTextDelta         EventType = "text_delta"
	EventThinkingDelta     EventType = "thinking_delta"
	EventToolCallStart     EventType = "tool_call_start"
	EventToolCallEnd       EventType = "tool_call_end"
	EventMessageEnd        EventType = "message_end"
	EventToolExecStart     EventType = "tool_execution_start"
	EventToolExecUpdate    EventType = "tool_execution_update"
	EventToolExecEnd       EventType = "tool_execution_end"
	EventTurnEnd           EventType = "turn_end"
	EventAgentEnd          EventType = "agent_end"
	EventError             EventType = "error"
	EventCanceled          EventType = "canceled"
)

// Event is the unified fan-out event. A single Type discriminator plus
// optional payload pointers, following the teacher's AgentEvent shape
// (pkg/models/agent_event.go): only the payload fields relevant to Type are
// set, and some types set more than one (turn_end carries Message and
// Messages; text_delta carries ContentIndex and TextChunk). Sequence is monotonic per session for total ordering (spec §4.7/§8).
type Event struct {
	Type      EventType `json:"type"`
	Time      time.Time `json:"time"`
	Sequence  uint64    `json:"seq"`
	SessionID string    `json:"sessionId,omitempty"`
	TurnIndex int       `json:"turnIndex,omitempty"`

	Message       *Message          `json:"message,omitempty"`
	ContentIndex  *int              `json:"contentIndex,omitempty"`
	TextChunk     string            `json:"textChunk,omitempty"`
	PartialCall   *ToolCall         `json:"partialToolCall,omitempty"`
	ToolCall      *ToolCall         `json:"toolCall,omitempty"`
	ToolExecution *ToolExecPayload  `json:"toolExecution,omitempty"`
	Usage         *Usage            `json:"usage,omitempty"`
	Messages      []*Entry          `json:"messages,omitempty"`
	ErrorKind     string            `json:"errorKind,omitempty"`
	CancelReason  string            `json:"cancelReason,omitempty"`
}

// ToolExecPayload carries per-tool-call execution lifecycle data.
type ToolExecPayload struct {
	CallID       string `json:"callId"`
	Name         string `json:"name,omitempty"`
	Arguments    map[string]any `json:"arguments,omitempty"`
	PartialResult any    `json:"partialResult,omitempty"`
	Result        any    `json:"result,omitempty"`
	IsError       bool   `json:"isError,omitempty"`
}

// RunStats is an aggregated summary of an agent run (spec §4.1 get_stats),
// accumulated by the agent loop's owner goroutine as turns and tool calls
// complete rather than derived from the event stream; its shape is grounded
// on the teacher's RunStats/StatsCollector (internal/agent/event_emitter.go).
type RunStats struct {
	SessionID string `json:"sessionId,omitempty"`

	StartedAt  time.Time     `json:"startedAt,omitempty"`
	FinishedAt time.Time     `json:"finishedAt,omitempty"`
	WallTime   time.Duration `json:"wallTime,omitempty"`

	Turns int `json:"turns,omitempty"`

	ToolCalls    int           `json:"toolCalls,omitempty"`
	ToolWallTime time.Duration `json:"toolWallTime,omitempty"`
	ToolTimeouts int           `json:"toolTimeouts,omitempty"`

	ModelWallTime time.Duration `json:"modelWallTime,omitempty"`
	InputTokens   int           `json:"inputTokens,omitempty"`
	OutputTokens  int           `json:"outputTokens,omitempty"`

	ContextPacks  int `json:"contextPacks,omitempty"`
	DroppedEvents int `json:"droppedEvents,omitempty"`

	Cancelled bool `json:"cancelled,omitempty"`
	TimedOut  bool `json:"timedOut,omitempty"`
	Errors    int  `json:"errors,omitempty"`
}
