// Package journal implements the SessionJournal (spec §4.2): an append-only,
// parent-linked tree of session.Entry values with branch reconstruction and
// newline-delimited-JSON persistence. Grounded on the teacher's
// internal/sessions/branch_memory.go (tree/ancestor-walk shape) generalized
// down to the spec's single-journal-tree model (no named branch/merge
// metadata — forking is just reset_head followed by new appends).
package journal

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentcore/pkg/session"
)

var (
	// ErrUnknownEntry is returned when an operation references an entry id
	// that is not present in the journal.
	ErrUnknownEntry = errors.New("journal: unknown entry id")
	// ErrCycle names a parent-cycle failure. No operation returns it:
	// Append always assigns a fresh id, so a cycle cannot form.
	ErrCycle = errors.New("journal: parent cycle detected")
)

// Journal holds the tree of entries for a single session.
type Journal struct {
	mu sync.RWMutex

	entries map[string]*session.Entry
	order   []string // insertion order, for deterministic persistence
	head    *string

	clock  atomic.Int64 // monotonic per-journal timestamp counter
	logger *slog.Logger
}

// New creates an empty journal.
func New(logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		entries: make(map[string]*session.Entry),
		logger:  logger,
	}
}

// nextTimestamp returns a strictly non-decreasing counter value, satisfying
// spec §3's "timestamps are non-decreasing along any branch" invariant for
// every branch (it is non-decreasing across the whole tree, a stronger
// property).
func (j *Journal) nextTimestamp() int64 {
	return j.clock.Add(1) - 1
}

// Append assigns an id and timestamp to entry and inserts it as a child of
// parentID (nil for a new root). Returns the assigned id. Atomic: no
// partial state is visible to other callers mid-call (guarded by mu).
func (j *Journal) Append(entry session.Entry, parentID *string) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if parentID != nil {
		if _, ok := j.entries[*parentID]; !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownEntry, *parentID)
		}
	}

	id := uuid.NewString()
	entry.ID = id
	entry.ParentID = parentID
	entry.Timestamp = j.nextTimestamp()

	j.entries[id] = &entry
	j.order = append(j.order, id)
	j.head = &id

	return id, nil
}

// AppendToHead appends as a child of the current head (nil if the journal
// is empty), the common case for Session-driven appends.
func (j *Journal) AppendToHead(entry session.Entry) (string, error) {
	j.mu.RLock()
	parent := j.head
	j.mu.RUnlock()
	return j.Append(entry, parent)
}

// Find looks up an entry by id.
func (j *Journal) Find(id string) (*session.Entry, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	e, ok := j.entries[id]
	return e, ok
}

// Head returns the current head entry id, or nil if unset/empty.
func (j *Journal) Head() *string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.head
}

// ResetHead sets a new head pointer. entryID == nil resets to an empty
// branch (spec §4.1 reset_to with no argument). Existing entries are never
// removed — this is how forking happens: subsequent Append calls create a
// sibling subtree under the new head.
func (j *Journal) ResetHead(entryID *string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if entryID != nil {
		if _, ok := j.entries[*entryID]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownEntry, *entryID)
		}
	}
	j.head = entryID
	return nil
}

// CurrentBranch returns the oldest-first ancestor chain from head to root.
func (j *Journal) CurrentBranch() []*session.Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.branchFromLocked(j.head)
}

// Branch returns the oldest-first ancestor chain ending at headID.
func (j *Journal) Branch(headID string) ([]*session.Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if _, ok := j.entries[headID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntry, headID)
	}
	return j.branchFromLocked(&headID), nil
}

func (j *Journal) branchFromLocked(head *string) []*session.Entry {
	if head == nil {
		return nil
	}
	visited := make(map[string]bool)
	var chain []*session.Entry
	cur := head
	for cur != nil {
		if visited[*cur] {
			break // defensive cycle guard; append-only ids make this unreachable
		}
		visited[*cur] = true
		e, ok := j.entries[*cur]
		if !ok {
			break
		}
		chain = append(chain, e)
		cur = e.ParentID
	}
	// reverse to oldest-first
	for i, k := 0, len(chain)-1; i < k; i, k = i+1, k-1 {
		chain[i], chain[k] = chain[k], chain[i]
	}
	return chain
}

// Len returns the total number of entries ever appended (tree-wide, not
// just the live branch).
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.order)
}

// All returns every entry in append order, for persistence and inspection.
func (j *Journal) All() []*session.Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]*session.Entry, 0, len(j.order))
	for _, id := range j.order {
		out = append(out, j.entries[id])
	}
	return out
}
