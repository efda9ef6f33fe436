package compaction

import (
	"errors"

	"github.com/haasonsaas/agentcore/pkg/session"
)

// ErrCannotCompact is returned by FindCutPoint when no valid cut point
// exists on the branch (spec §4.3/§7 cannot_compact).
var ErrCannotCompact = errors.New("compaction: cannot compact, no valid cut point")

// Options configures cut-point selection (spec §4.3's find_cut_point opts).
type Options struct {
	// Force waives the token/message-count thresholds while keeping the
	// validity rules in force.
	Force bool
	// KeepRecentMessages, if > 0, additionally requires the kept-message
	// count to reach this value before the target entry is declared.
	KeepRecentMessages int
}

// FindCutPoint scans branch tail-to-head accumulating the token cost of
// entries to be kept, then returns the nearest valid cut-point entry id at
// or before the resulting target (spec §4.3). Entries strictly after the
// returned id are kept verbatim; the returned entry and everything before
// it is summarized.
func FindCutPoint(branch []*session.Entry, keepRecentTokens int, opts Options) (string, error) {
	n := len(branch)
	if n == 0 {
		return "", ErrCannotCompact
	}

	effectiveTokens := keepRecentTokens
	effectiveMsgCount := opts.KeepRecentMessages
	if opts.Force {
		effectiveTokens = 0
		effectiveMsgCount = 0
	}

	targetIdx := -1
	accTokens := 0
	keptMsgCount := 0
	for i := n - 1; i >= 0; i-- {
		accTokens += EstimateEntryTokens(branch[i])
		if branch[i].Type == session.EntryMessage {
			keptMsgCount++
		}
		if accTokens >= effectiveTokens && keptMsgCount >= effectiveMsgCount {
			targetIdx = i - 1
			break
		}
	}

	if targetIdx < 0 {
		return "", ErrCannotCompact
	}

	for i := targetIdx; i >= 0; i-- {
		if isValidCutPoint(branch, i) {
			return branch[i].ID, nil
		}
	}
	return "", ErrCannotCompact
}

// isValidCutPoint reports whether branch[idx] may serve as a cut point:
// its type qualifies, it is not a ToolResult, and — if it is an Assistant
// message carrying a ToolCall — no matching ToolResult for that call
// appears later in the branch (which would otherwise be kept while its
// ToolCall is summarized away, violating spec §3's tool-call/tool-result
// atomicity invariant).
func isValidCutPoint(branch []*session.Entry, idx int) bool {
	e := branch[idx]
	if !e.IsValidCutCandidateType() {
		return false
	}
	if e.Type != session.EntryMessage {
		return true // custom_message: always a valid cut point
	}
	if e.Message == nil {
		return false
	}
	if e.Message.Role == session.RoleToolResult {
		return false
	}
	if e.Message.Role != session.RoleAssistant {
		return true
	}

	calls := e.Message.ToolCalls()
	if len(calls) == 0 {
		return true
	}
	ids := make(map[string]bool, len(calls))
	for _, c := range calls {
		ids[c.ID] = true
	}
	for j := idx + 1; j < len(branch); j++ {
		m := branch[j].Message
		if branch[j].Type != session.EntryMessage || m == nil || m.Role != session.RoleToolResult {
			continue
		}
		if ids[m.ResolvedToolCallID()] {
			return false
		}
	}
	return true
}
