package agentloop

import (
	"github.com/haasonsaas/agentcore/internal/toolexec"
	"github.com/haasonsaas/agentcore/pkg/session"
)

// onToolEvent adapts a toolexec.Event into a session.Event and publishes it
// on this session's fan-out (spec §4.4 tool lifecycle events -> §4.7
// fan-out). Invoked from executor worker goroutines, never the owner
// goroutine — FanOut.Publish is safe for concurrent callers by design.
func (l *Loop) onToolEvent(ev toolexec.Event) {
	payload := &session.ToolExecPayload{
		CallID:    ev.CallID,
		Name:      ev.ToolName,
		Arguments: ev.Arguments,
		IsError:   ev.IsError,
	}
	if ev.PartialResult != nil {
		payload.PartialResult = toolResultPayload(*ev.PartialResult)
	}
	if ev.Result != nil {
		payload.Result = toolResultPayload(*ev.Result)
	}

	var typ session.EventType
	switch ev.Kind {
	case toolexec.EventStart:
		typ = session.EventToolExecStart
	case toolexec.EventUpdate:
		typ = session.EventToolExecUpdate
	case toolexec.EventEnd:
		typ = session.EventToolExecEnd
	default:
		return
	}
	l.fanout.Publish(session.Event{Type: typ, ToolExecution: payload})
}

func toolResultPayload(r toolexec.Result) any {
	if r.IsError() {
		return map[string]any{"error": r.Err}
	}
	return map[string]any{"content": r.Content, "details": r.Details}
}

// toolResultEntryContent converts a toolexec.Result into the ContentBlocks
// stored on the journal's ToolResult message (spec §3/§6).
func toolResultEntryContent(r toolexec.Result) []session.ContentBlock {
	if r.IsError() {
		return []session.ContentBlock{{Type: session.ContentToolResult, ToolResultText: &session.TextContent{Text: r.Err}}}
	}
	blocks := make([]session.ContentBlock, 0, len(r.Content))
	for _, b := range r.Content {
		blocks = append(blocks, session.ContentBlock{Type: session.ContentToolResult, ToolResultText: &session.TextContent{Text: b.Text}})
	}
	return blocks
}
