package compaction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/haasonsaas/agentcore/internal/abortsignal"
	"github.com/haasonsaas/agentcore/pkg/session"
)

// Tool-result content is truncated to 500 characters when formatted for the
// summary prompt; raw (non-tool) message summaries use a 200-character
// limit (spec §4.3, DESIGN.md Open Question 2).
const (
	toolResultTruncateLimit = 500
	rawMessageTruncateLimit = 200
)

// SummarizeFn performs the actual LLM call that produces prose summarizing
// the formatted prefix. It is the compaction-specific analogue of the core's
// StreamFn (spec §1): an external collaborator, not part of this package's
// contract beyond this function type.
type SummarizeFn func(ctx context.Context, prompt string) (string, error)

// SummaryOptions configures one GenerateSummary call (spec §4.3's
// "opts.summary", "opts.signal").
type SummaryOptions struct {
	// Summary, if non-empty, is used verbatim, bypassing the LLM call.
	Summary string
	// Signal aborts the call before it starts if already aborted.
	Signal *abortsignal.Signal
}

// GenerateSummary assembles a synthetic prompt describing prefix (the
// entries at-or-before the chosen cut point) and invokes summarize, unless
// opts.Summary is provided (used verbatim) or opts.Signal is already
// aborted (returns an error before calling out).
func GenerateSummary(ctx context.Context, prefix []*session.Entry, summarize SummarizeFn, opts SummaryOptions) (string, error) {
	if opts.Signal.Aborted() {
		return "", ErrAborted
	}
	if opts.Summary != "" {
		return opts.Summary, nil
	}
	if summarize == nil {
		return "", errors.New("compaction: no SummarizeFn configured and no verbatim summary provided")
	}
	prompt := formatEntriesForSummary(prefix)
	return summarize(ctx, prompt)
}

// ErrAborted is returned when GenerateSummary is invoked on an
// already-aborted signal (spec §4.3: "If opts.signal is already aborted,
// return {error, aborted} before calling").
var ErrAborted = errors.New("compaction: aborted before summary generation")

// formatEntriesForSummary renders the prefix to be summarized into a
// synthetic prompt, grounded on the teacher's FormatMessagesForSummary,
// with the two truncation limits spec §4.3 distinguishes.
func formatEntriesForSummary(entries []*session.Entry) string {
	var sb strings.Builder
	sb.WriteString("Summarize the following conversation history so it can replace it in full:\n\n")

	for _, e := range entries {
		if e == nil {
			continue
		}
		switch e.Type {
		case session.EntryMessage:
			formatMessageEntry(&sb, e.Message)
		case session.EntryCustomMessage:
			if e.CustomMessage != nil {
				if s, ok := e.CustomMessage.Content.(string); ok {
					fmt.Fprintf(&sb, "[custom:%s]: %s\n\n", e.CustomMessage.CustomType, truncateString(s, rawMessageTruncateLimit))
				}
			}
		case session.EntrySummary:
			if e.Summary != nil {
				fmt.Fprintf(&sb, "[prior summary]: %s\n\n", truncateString(e.Summary.SummaryText, rawMessageTruncateLimit))
			}
		case session.EntryModelChange:
			if e.ModelChange != nil {
				fmt.Fprintf(&sb, "[model changed to %s/%s]\n\n", e.ModelChange.Provider, e.ModelChange.ModelID)
			}
		}
	}
	return sb.String()
}

func formatMessageEntry(sb *strings.Builder, m *session.Message) {
	if m == nil {
		return
	}
	switch m.Role {
	case session.RoleToolResult:
		fmt.Fprintf(sb, "[tool_result %s]: %s\n\n", m.ResolvedToolCallID(), truncateString(session.Text(m.Content), toolResultTruncateLimit))
	default:
		fmt.Fprintf(sb, "[%s]: %s", m.Role, truncateString(session.Text(m.Content), rawMessageTruncateLimit))
		for _, tc := range m.ToolCalls() {
			fmt.Fprintf(sb, "\n  [tool_call %s %s]", tc.Name, truncateString(fmt.Sprintf("%v", tc.Arguments), rawMessageTruncateLimit))
		}
		sb.WriteString("\n\n")
	}
}

// truncateString truncates s to maxLen characters (codepoints) with an
// ellipsis, grounded on the teacher's truncateString (internal/compaction/
// compaction.go).
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// Apply replaces the prefix ending at cutEntryID with a single summary
// entry (spec §4.3 "Application"). It does not mutate the journal itself —
// callers append the returned session.Entry as the new root of subsequent
// turn context building; the original entries remain in storage untouched.
func Apply(branch []*session.Entry, cutEntryID string, summaryText string) (session.Entry, []*session.Entry, error) {
	cutIdx := -1
	for i, e := range branch {
		if e.ID == cutEntryID {
			cutIdx = i
			break
		}
	}
	if cutIdx < 0 {
		return session.Entry{}, nil, fmt.Errorf("compaction: cut entry %q not found on branch", cutEntryID)
	}

	firstID := branch[0].ID
	summary := session.Entry{
		Type: session.EntrySummary,
		Summary: &session.SummaryPayload{
			SummaryText:   summaryText,
			ReplacedRange: [2]string{firstID, cutEntryID},
		},
	}
	kept := append([]*session.Entry(nil), branch[cutIdx+1:]...)
	return summary, kept, nil
}
