package compaction

import (
	"strings"
	"testing"

	"github.com/haasonsaas/agentcore/pkg/session"
)

func userMsg(text string) *session.Entry {
	return &session.Entry{Type: session.EntryMessage, Message: &session.Message{Role: session.RoleUser, Content: []session.ContentBlock{session.TextBlock(text)}}}
}

func asstMsg(text string) *session.Entry {
	return &session.Entry{Type: session.EntryMessage, Message: &session.Message{Role: session.RoleAssistant, Content: []session.ContentBlock{session.TextBlock(text)}}}
}

func asstToolCall(id, name string) *session.Entry {
	return &session.Entry{Type: session.EntryMessage, Message: &session.Message{
		Role:    session.RoleAssistant,
		Content: []session.ContentBlock{session.ToolCallBlock(session.ToolCall{ID: id, Name: name})},
	}}
}

func toolResult(id, text string) *session.Entry {
	return &session.Entry{Type: session.EntryMessage, Message: &session.Message{
		Role:       session.RoleToolResult,
		ToolCallID: id,
		Content:    []session.ContentBlock{{Type: session.ContentToolResult, ToolResultText: &session.TextContent{Text: text}}},
	}}
}

// stampIDs assigns sequential ids and is used by tests that build a branch
// by hand instead of going through the Journal.
func stampIDs(entries []*session.Entry) []*session.Entry {
	for i, e := range entries {
		e.ID = string(rune('a' + i))
	}
	return entries
}

func TestFindCutPointEmptyBranch(t *testing.T) {
	if _, err := FindCutPoint(nil, 100, Options{}); err != ErrCannotCompact {
		t.Fatalf("expected ErrCannotCompact, got %v", err)
	}
}

func TestFindCutPointSingleEntryForceStillCannotCompact(t *testing.T) {
	branch := stampIDs([]*session.Entry{userMsg("hi")})
	if _, err := FindCutPoint(branch, 0, Options{Force: true}); err != ErrCannotCompact {
		t.Fatalf("expected ErrCannotCompact for single-entry branch, got %v", err)
	}
}

func TestFindCutPointNeverReturnsToolResult(t *testing.T) {
	branch := stampIDs([]*session.Entry{
		userMsg("q"),
		asstToolCall("tc1", "add"),
		toolResult("tc1", "8"),
		asstMsg("the answer is 8"),
	})

	// A tiny keep-recent-tokens means the scan only needs the final
	// assistant message to satisfy the threshold; the target then walks
	// backward from the tool result, which is an invalid type, past the
	// tool-call (invalid: its result would be kept), landing on the user
	// message.
	id, err := FindCutPoint(branch, 1, Options{})
	if err != nil {
		t.Fatalf("expected a cut point, got error: %v", err)
	}
	if id == branch[2].ID {
		t.Fatalf("cut point must never be a ToolResult entry")
	}
}

func TestFindCutPointRespectsToolCallAtomicity(t *testing.T) {
	branch := stampIDs([]*session.Entry{
		userMsg("q"),
		asstToolCall("tc1", "add"),
		toolResult("tc1", "8"),
		asstMsg("the answer is 8"),
	})

	id, err := FindCutPoint(branch, 1, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != branch[0].ID {
		t.Fatalf("expected cut point to fall back to the user message (id %s), got %s", branch[0].ID, id)
	}
}

func TestFindCutPointForceWaivesThresholds(t *testing.T) {
	branch := stampIDs([]*session.Entry{
		userMsg(strings.Repeat("a", 4000)),
		asstMsg(strings.Repeat("b", 4000)),
		userMsg(strings.Repeat("c", 4000)),
		asstMsg(strings.Repeat("d", 4000)),
	})
	// A huge keepRecentTokens would normally never trigger; force waives it.
	id, err := FindCutPoint(branch, 1_000_000, Options{Force: true})
	if err != nil {
		t.Fatalf("expected a cut point under force, got error: %v", err)
	}
	if id != branch[2].ID {
		t.Fatalf("expected cut point at the penultimate entry (id %s), got %s", branch[2].ID, id)
	}
}

func TestFindCutPointCustomMessageAlwaysValid(t *testing.T) {
	branch := stampIDs([]*session.Entry{
		userMsg("q"),
		{Type: session.EntryCustomMessage, CustomMessage: &session.CustomMessagePayload{CustomType: "progress", Content: "working...", Display: true}},
		asstMsg("done"),
	})
	id, err := FindCutPoint(branch, 0, Options{Force: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != branch[1].ID {
		t.Fatalf("expected the custom_message entry to be a valid cut point, got %s", id)
	}
}

func TestFindCutPointFiveMessageCompactionScenario(t *testing.T) {
	// Scenario 3 from spec §8: five 4000-codepoint (1000-token) messages,
	// context_window=5000, reserve=500, keep_recent_tokens=2000. The cut
	// point must land on one of the first four entries.
	branch := stampIDs([]*session.Entry{
		userMsg(strings.Repeat("a", 4000)),
		asstMsg(strings.Repeat("b", 4000)),
		userMsg(strings.Repeat("c", 4000)),
		asstMsg(strings.Repeat("d", 4000)),
		userMsg(strings.Repeat("e", 4000)),
	})

	ctxTokens := EstimateEntriesTokens(branch)
	if !ShouldCompact(ctxTokens, 5000, Settings{Enabled: true, ReserveTokens: 500}) {
		t.Fatal("expected compaction to be triggered for this scenario")
	}

	id, err := FindCutPoint(branch, 2000, Options{})
	if err != nil {
		t.Fatalf("expected a cut point, got error: %v", err)
	}
	valid := map[string]bool{branch[0].ID: true, branch[1].ID: true, branch[2].ID: true, branch[3].ID: true}
	if !valid[id] {
		t.Fatalf("expected cut point in {e1..e4}, got %s", id)
	}
}
