package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/haasonsaas/agentcore/pkg/session"
)

// Save persists every entry to path as newline-delimited JSON, one object
// per line in append order (spec §4.2/§6). It fsyncs before returning, so a
// successful Save guarantees durability (spec §5: "save() fsyncs before
// acknowledging").
func (j *Journal) Save(path string) error {
	entries := j.All()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("journal: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("journal: encode entry %s: %w", e.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("journal: flush %s: %w", path, err)
	}
	return f.Sync()
}

// Load reconstructs a Journal from an append-only NDJSON file. A truncated
// final line is discarded (the preceding entries are kept); an entry whose
// parent is missing is dropped with a warning, and so are its descendants
// (spec §4.2 edge cases). The reconstructed head is the last entry that
// survives filtering, in file order — "the latest head is reconstructed by
// scanning forward" (spec §4.2).
func Load(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("journal: read %s: %w", path, err)
	}

	lines := bytes.Split(raw, []byte("\n"))
	// Drop a truncated final line: if the file does not end in a newline,
	// the last element of lines is a partial/incomplete line.
	if len(lines) > 0 && len(lines[len(lines)-1]) > 0 && !bytes.HasSuffix(raw, []byte("\n")) {
		lines = lines[:len(lines)-1]
	}

	j := New(logger)

	var ordered []*session.Entry
	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var e session.Entry
		if err := json.Unmarshal(line, &e); err != nil {
			logger.Warn("journal: discarding unparseable line", "error", err)
			continue
		}
		ordered = append(ordered, &e)
	}

	present := make(map[string]bool, len(ordered))
	dropped := make(map[string]bool)
	var kept []*session.Entry
	for _, e := range ordered {
		if e.ParentID != nil {
			if dropped[*e.ParentID] {
				dropped[e.ID] = true
				logger.Warn("journal: dropping descendant of dropped entry", "id", e.ID, "parent", *e.ParentID)
				continue
			}
			if !present[*e.ParentID] {
				dropped[e.ID] = true
				logger.Warn("journal: dropping entry with missing parent", "id", e.ID, "parent", *e.ParentID)
				continue
			}
		}
		present[e.ID] = true
		kept = append(kept, e)
	}

	j.mu.Lock()
	for _, e := range kept {
		j.entries[e.ID] = e
		j.order = append(j.order, e.ID)
		if e.Timestamp >= j.clock.Load() {
			j.clock.Store(e.Timestamp + 1)
		}
		id := e.ID
		j.head = &id
	}
	j.mu.Unlock()

	return j, nil
}
