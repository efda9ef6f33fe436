package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/agentcore/pkg/session"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	j := New(nil)
	id1, err := j.AppendToHead(session.Entry{Type: session.EntryMessage, Message: &session.Message{Role: session.RoleUser, Content: []session.ContentBlock{session.TextBlock("hi")}}})
	if err != nil {
		t.Fatal(err)
	}
	id2, err := j.AppendToHead(session.Entry{Type: session.EntryMessage, Message: &session.Message{Role: session.RoleAssistant, Content: []session.ContentBlock{session.TextBlock("hello")}}})
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "session.ndjson")
	if err := j.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	if loaded.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", loaded.Len())
	}
	branch := loaded.CurrentBranch()
	if len(branch) != 2 || branch[0].ID != id1 || branch[1].ID != id2 {
		t.Fatalf("unexpected branch after reload: %+v", branch)
	}
	if loaded.Head() == nil || *loaded.Head() != id2 {
		t.Fatalf("expected head %s, got %v", id2, loaded.Head())
	}
}

func TestLoadDropsTruncatedFinalLine(t *testing.T) {
	j := New(nil)
	if _, err := j.AppendToHead(session.Entry{Type: session.EntryMessage, Message: &session.Message{Role: session.RoleUser}}); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "session.ndjson")
	if err := j.Save(path); err != nil {
		t.Fatal(err)
	}

	// Append a truncated (non-newline-terminated, incomplete JSON) line.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"id":"e2","parentId":"e1","type":"mess`); err != nil {
		t.Fatal(err)
	}
	f.Close()

	loaded, err := Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 1 {
		t.Fatalf("expected truncated line to be discarded, got %d entries", loaded.Len())
	}
}

func TestLoadDropsEntryWithMissingParentAndDescendants(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.ndjson")

	missing := "does-not-exist"
	lines := []session.Entry{
		{ID: "e1", ParentID: nil, Type: session.EntryMessage, Message: &session.Message{Role: session.RoleUser}},
		{ID: "e2", ParentID: &missing, Type: session.EntryMessage, Message: &session.Message{Role: session.RoleAssistant}},
		{ID: "e3", ParentID: strPtr("e2"), Type: session.EntryMessage, Message: &session.Message{Role: session.RoleUser}},
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := json.NewEncoder(f)
	for _, e := range lines {
		if err := enc.Encode(e); err != nil {
			t.Fatal(err)
		}
	}
	f.Close()

	loaded, err := Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 1 {
		t.Fatalf("expected only e1 to survive, got %d entries", loaded.Len())
	}
	if _, ok := loaded.Find("e1"); !ok {
		t.Fatal("expected e1 to be present")
	}
	if _, ok := loaded.Find("e2"); ok {
		t.Fatal("expected e2 (missing parent) to be dropped")
	}
	if _, ok := loaded.Find("e3"); ok {
		t.Fatal("expected e3 (descendant of dropped e2) to be dropped")
	}
}

func strPtr(s string) *string { return &s }
