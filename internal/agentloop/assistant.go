package agentloop

import "github.com/haasonsaas/agentcore/pkg/session"

// assistantBuilder accumulates a StreamFn's producer events into a running
// Assistant session.Message snapshot (spec §4.1 step 6: "Each producer
// event is transformed into a fan-out event... the running assistant
// snapshot"). Content blocks are tracked by their producer-assigned index
// and emitted in index order, grounded on the teacher's incremental
// message-assembly pattern in internal/agent/loop.go.
type assistantBuilder struct {
	order      []int
	blocks     map[int]*session.ContentBlock
	partials   map[int]*session.ToolCall // in-progress tool_call blocks
	stopReason *session.StopReason
	usage      *session.Usage
}

func newAssistantBuilder() *assistantBuilder {
	return &assistantBuilder{
		blocks:   make(map[int]*session.ContentBlock),
		partials: make(map[int]*session.ToolCall),
	}
}

func (b *assistantBuilder) ensureOrder(idx int) {
	if _, ok := b.blocks[idx]; !ok {
		b.order = append(b.order, idx)
	}
}

func (b *assistantBuilder) TextStart(idx int) {
	b.ensureOrder(idx)
	b.blocks[idx] = &session.ContentBlock{Type: session.ContentText, Text: &session.TextContent{}}
}

func (b *assistantBuilder) TextDelta(idx int, chunk string) {
	blk, ok := b.blocks[idx]
	if !ok {
		b.TextStart(idx)
		blk = b.blocks[idx]
	}
	if blk.Text == nil {
		blk.Text = &session.TextContent{}
	}
	blk.Text.Text += chunk
}

func (b *assistantBuilder) ThinkingStart(idx int) {
	b.ensureOrder(idx)
	b.blocks[idx] = &session.ContentBlock{Type: session.ContentThinking, Thinking: &session.ThinkingContent{}}
}

func (b *assistantBuilder) ThinkingDelta(idx int, chunk string) {
	blk, ok := b.blocks[idx]
	if !ok {
		b.ThinkingStart(idx)
		blk = b.blocks[idx]
	}
	if blk.Thinking == nil {
		blk.Thinking = &session.ThinkingContent{}
	}
	blk.Thinking.Text += chunk
}

func (b *assistantBuilder) ToolCallStart(idx int, partial *session.ToolCall) {
	b.ensureOrder(idx)
	if partial == nil {
		partial = &session.ToolCall{}
	}
	b.partials[idx] = partial
	b.blocks[idx] = &session.ContentBlock{Type: session.ContentToolCall, ToolCall: partial}
}

func (b *assistantBuilder) ToolCallEnd(idx int, final *session.ToolCall) {
	b.ensureOrder(idx)
	if final == nil {
		final = b.partials[idx]
	}
	b.blocks[idx] = &session.ContentBlock{Type: session.ContentToolCall, ToolCall: final}
}

func (b *assistantBuilder) Usage(u *session.Usage) {
	if u != nil {
		b.usage = u
	}
}

func (b *assistantBuilder) StopReason(r session.StopReason) {
	b.stopReason = &r
}

// Snapshot renders the current accumulated state as an Assistant message,
// in content-block index order (spec §5: "the producer order from StreamFn
// is preserved for each content-block index").
func (b *assistantBuilder) Snapshot() session.Message {
	ordered := append([]int(nil), b.order...)
	// indices are assigned monotonically by well-behaved StreamFn
	// implementations, but sort defensively so out-of-order delivery never
	// corrupts block ordering.
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j-1] > ordered[j]; j-- {
			ordered[j-1], ordered[j] = ordered[j], ordered[j-1]
		}
	}
	content := make([]session.ContentBlock, 0, len(ordered))
	for _, idx := range ordered {
		if blk := b.blocks[idx]; blk != nil {
			content = append(content, *blk)
		}
	}
	return session.Message{
		Role:       session.RoleAssistant,
		Content:    content,
		StopReason: b.stopReason,
		Usage:      b.usage,
	}
}

// ToolCalls returns every finalized ToolCall block in index order, for
// dispatch to the executor once stop_reason == tool_use.
func (b *assistantBuilder) ToolCalls() []session.ToolCall {
	msg := b.Snapshot()
	return msg.ToolCalls()
}
