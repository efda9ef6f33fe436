package compaction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/agentcore/internal/abortsignal"
	"github.com/haasonsaas/agentcore/pkg/session"
)

func TestGenerateSummaryVerbatimBypassesSummarizeFn(t *testing.T) {
	called := false
	fn := SummarizeFn(func(ctx context.Context, prompt string) (string, error) {
		called = true
		return "unused", nil
	})
	branch := stampIDs([]*session.Entry{userMsg("q"), asstMsg("a")})
	got, err := GenerateSummary(context.Background(), branch, fn, SummaryOptions{Summary: "verbatim summary"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "verbatim summary" {
		t.Fatalf("expected verbatim summary, got %q", got)
	}
	if called {
		t.Fatal("SummarizeFn must not be invoked when opts.Summary is set")
	}
}

func TestGenerateSummaryAbortedBeforeCall(t *testing.T) {
	sig := abortsignal.New()
	sig.Abort()
	fn := SummarizeFn(func(ctx context.Context, prompt string) (string, error) {
		t.Fatal("SummarizeFn must not be invoked on an already-aborted signal")
		return "", nil
	})
	_, err := GenerateSummary(context.Background(), nil, fn, SummaryOptions{Signal: sig})
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
}

func TestGenerateSummaryNoSummarizeFnConfigured(t *testing.T) {
	_, err := GenerateSummary(context.Background(), nil, nil, SummaryOptions{})
	if err == nil {
		t.Fatal("expected an error when no SummarizeFn and no verbatim summary are provided")
	}
}

func TestGenerateSummaryInvokesSummarizeFnWithFormattedPrompt(t *testing.T) {
	branch := stampIDs([]*session.Entry{userMsg("hello there")})
	var seenPrompt string
	fn := SummarizeFn(func(ctx context.Context, prompt string) (string, error) {
		seenPrompt = prompt
		return "a generated summary", nil
	})
	got, err := GenerateSummary(context.Background(), branch, fn, SummaryOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "a generated summary" {
		t.Fatalf("unexpected summary: %q", got)
	}
	if !strings.Contains(seenPrompt, "[user]") {
		t.Fatalf("expected formatted prompt to mention the user message, got %q", seenPrompt)
	}
}

func TestFormatEntriesForSummaryRespectsTruncationLimits(t *testing.T) {
	long := strings.Repeat("x", 1000)

	rawMsg := formatEntriesForSummary(stampIDs([]*session.Entry{userMsg(long)}))
	if !strings.Contains(rawMsg, strings.Repeat("x", rawMessageTruncateLimit)+"...") {
		t.Fatalf("expected raw message to be truncated at %d chars", rawMessageTruncateLimit)
	}
	if strings.Contains(rawMsg, strings.Repeat("x", rawMessageTruncateLimit+1)) {
		t.Fatal("raw message truncation limit exceeded")
	}

	trEntries := stampIDs([]*session.Entry{toolResult("tc1", long)})
	trMsg := formatEntriesForSummary(trEntries)
	if !strings.Contains(trMsg, strings.Repeat("x", toolResultTruncateLimit)+"...") {
		t.Fatalf("expected tool result to be truncated at %d chars", toolResultTruncateLimit)
	}
}

func TestApplyReplacesPrefixWithSummaryEntry(t *testing.T) {
	branch := stampIDs([]*session.Entry{
		userMsg("q1"),
		asstMsg("a1"),
		userMsg("q2"),
		asstMsg("a2"),
	})

	summaryEntry, kept, err := Apply(branch, branch[1].ID, "condensed history")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summaryEntry.Type != session.EntrySummary {
		t.Fatalf("expected a summary entry, got type %q", summaryEntry.Type)
	}
	if summaryEntry.Summary == nil || summaryEntry.Summary.SummaryText != "condensed history" {
		t.Fatal("expected the summary payload to carry the provided text")
	}
	if summaryEntry.Summary.ReplacedRange[0] != branch[0].ID || summaryEntry.Summary.ReplacedRange[1] != branch[1].ID {
		t.Fatalf("unexpected replaced range: %v", summaryEntry.Summary.ReplacedRange)
	}
	if len(kept) != 2 || kept[0].ID != branch[2].ID || kept[1].ID != branch[3].ID {
		t.Fatalf("expected kept to be the two entries after the cut point, got %v", kept)
	}
}

func TestApplyUnknownCutEntryErrors(t *testing.T) {
	branch := stampIDs([]*session.Entry{userMsg("q1")})
	if _, _, err := Apply(branch, "does-not-exist", "x"); err == nil {
		t.Fatal("expected an error for an unknown cut entry id")
	}
}
