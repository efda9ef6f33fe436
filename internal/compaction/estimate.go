package compaction

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/haasonsaas/agentcore/pkg/session"
)

// EstimateTextTokens implements spec §4.3's deterministic, external-call-free
// token estimator: floor(codepoint_count(s) / 4). EstimateTextTokens("") is
// 0. Grounded on the teacher's compaction.EstimateTokens (internal/
// compaction/compaction.go), corrected from ceiling to floor division per
// spec (see DESIGN.md Open Question 1) and from byte length to codepoint
// count so multi-byte UTF-8 text is not overcounted.
func EstimateTextTokens(s string) int {
	if s == "" {
		return 0
	}
	return utf8.RuneCountInString(s) / 4
}

// EstimateEntryTokens estimates the tokens contributed by a single journal
// entry, counting only its text-extractable portion. Images, thinking
// blocks, and tool-call argument payloads are excluded from the text sum
// (spec §4.3); tool-call argument payloads are not charged here at all —
// tool *schemas* are summed separately by EstimateRequestContextTokens.
func EstimateEntryTokens(e *session.Entry) int {
	if e == nil {
		return 0
	}
	switch e.Type {
	case session.EntryMessage:
		if e.Message == nil {
			return 0
		}
		return EstimateTextTokens(session.Text(e.Message.Content))
	case session.EntryCustomMessage:
		if e.CustomMessage == nil {
			return 0
		}
		if s, ok := e.CustomMessage.Content.(string); ok {
			return EstimateTextTokens(s)
		}
		return 0
	case session.EntrySummary:
		if e.Summary == nil {
			return 0
		}
		return EstimateTextTokens(e.Summary.SummaryText)
	default: // model_change carries no text-extractable content
		return 0
	}
}

// EstimateEntriesTokens is additive over its input, satisfying spec §8:
// estimate_context_tokens(L1 ++ L2) = sum(L1) + sum(L2).
func EstimateEntriesTokens(entries []*session.Entry) int {
	total := 0
	for _, e := range entries {
		total += EstimateEntryTokens(e)
	}
	return total
}

// ToolSchema is the minimal shape compaction needs from a tool definition
// to estimate its serialized schema size; callers copy a tool's name,
// description and parameters into it.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  any
}

// EstimateRequestContextTokens computes the total estimated token cost of a
// request context: per-entry text, the system prompt, and every tool
// schema's serialized size (spec §4.3).
func EstimateRequestContextTokens(entries []*session.Entry, systemPrompt string, tools []ToolSchema) int {
	total := EstimateEntriesTokens(entries)
	total += EstimateTextTokens(systemPrompt)
	for _, t := range tools {
		b, err := json.Marshal(t)
		if err != nil {
			continue
		}
		total += EstimateTextTokens(string(b))
	}
	return total
}
