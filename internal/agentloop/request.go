package agentloop

import (
	"github.com/haasonsaas/agentcore/internal/compaction"
	"github.com/haasonsaas/agentcore/internal/toolexec"
	"github.com/haasonsaas/agentcore/pkg/session"
)

// buildRequestContext assembles the input to one StreamFn call (spec §4.1
// step 3): system prompt, live branch filtered per spec's custom_message
// rule, and available tool schemas. model_change entries are bookkeeping
// only and never reach StreamFn; summary entries are passed through so an
// adapter can render them as a preamble ahead of the kept messages that
// follow it.
func (l *Loop) buildRequestContext() RequestContext {
	branch := l.journal.CurrentBranch()
	messages := make([]*session.Entry, 0, len(branch))
	for _, e := range branch {
		switch e.Type {
		case session.EntryModelChange:
			continue
		case session.EntryCustomMessage:
			if e.CustomMessage == nil || e.CustomMessage.Content == nil {
				continue // not model-visible (spec §4.1 step 3)
			}
		}
		messages = append(messages, e)
	}

	return RequestContext{
		SystemPrompt: l.cfg.SystemPrompt(),
		Messages:     messages,
		Tools:        toolSchemas(l.registry),
	}
}

func toolSchemas(reg *toolexec.Registry) []ToolSchema {
	if reg == nil {
		return nil
	}
	tools := reg.All()
	out := make([]ToolSchema, 0, len(tools))
	for _, t := range tools {
		out = append(out, ToolSchema{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()})
	}
	return out
}

func compactionToolSchemas(schemas []ToolSchema) []compaction.ToolSchema {
	out := make([]compaction.ToolSchema, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, compaction.ToolSchema{Name: s.Name, Description: s.Description, Parameters: s.Parameters})
	}
	return out
}
