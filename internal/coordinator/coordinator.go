// Package coordinator implements the Coordinator (spec §4.6): a thin
// fan-out over independently-journaled sub-sessions, bounded per semantic
// lane, with ordered typed results and crash isolation. Grounded on the
// teacher's internal/multiagent/swarm.go (bounded-semaphore parallel
// execution, panic/crash isolation into a result value rather than a
// propagated error), narrowed from swarm's dependency-graph/shared-context
// machinery — out of scope per spec §1's "thin wrapper that composes N
// independent cores" — down to the spec's flat, per-lane-bounded fan-out,
// and generalized onto golang.org/x/sync/errgroup for the fan-out itself.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/agentcore/internal/abortsignal"
)

// Status is a sub-session's terminal outcome (spec §4.6).
type Status string

const (
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusTimeout   Status = "timeout"
	StatusAborted   Status = "aborted"
)

// Spec is one sub-session request (spec §4.6's `{prompt, subagent?,
// description?}`), extended with an explicit ID (the spec's result shape
// requires echoing one back) and an optional Lane for concurrency bounding
// (spec §5's "semantic lane" concept).
type Spec struct {
	ID          string
	Prompt      string
	Subagent    string
	Description string
	Lane        string
}

// Result is the outcome of one sub-session, matching spec §4.6's result
// shape exactly: `{id, status, result, error, session_id}`.
type Result struct {
	ID        string
	Status    Status
	Result    any
	Error     string
	SessionID string
}

// RunFn spawns and drives one sub-session to completion. It is the
// Coordinator's sole collaborator — the Coordinator never constructs an
// agentloop.Loop itself, matching spec §1's framing of sub-session
// construction as external to the core.
type RunFn func(ctx context.Context, spec Spec) (result any, sessionID string, err error)

// Config bounds Coordinator concurrency and subagent validation.
type Config struct {
	// LaneCaps bounds concurrent sub-sessions per lane name. A lane absent
	// from this map defaults to cap 1 (spec §5: "unknown lanes default to
	// cap 1").
	LaneCaps map[string]int
	// DefaultTimeout applies to a RunSubagents call with timeout <= 0.
	DefaultTimeout time.Duration
	// KnownSubagents, if non-nil, gates spec.Subagent: a non-empty name
	// absent from this set short-circuits to an error result without ever
	// invoking RunFn (spec §4.6: "Unknown subagent string -> synthesized
	// result {status: error, error: \"Unknown subagent: <name>\"}").
	KnownSubagents map[string]bool
	// Logger receives per-sub-session lifecycle logs. Defaults to
	// slog.Default() when nil, matching every other long-lived component in
	// this module.
	Logger *slog.Logger
}

// DefaultConfig, grounded on the teacher's SwarmConfig.MaxParallelAgents,
// caps each of the two lanes this core names explicitly in spec §5
// ("main", "subagent") at 4 concurrent sub-sessions.
func DefaultConfig() Config {
	return Config{
		LaneCaps:       map[string]int{"main": 4, "subagent": 4},
		DefaultTimeout: 5 * time.Minute,
	}
}

// Coordinator runs bounded sets of independent sub-sessions (spec §4.6).
type Coordinator struct {
	cfg    Config
	run    RunFn
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]*abortsignal.Signal
	lanes  map[string]chan struct{}
}

// New constructs a Coordinator. run is invoked once per spec, never by the
// Coordinator's own goroutine directly (see runIsolated).
func New(run RunFn, cfg Config) *Coordinator {
	d := DefaultConfig()
	if cfg.LaneCaps == nil {
		cfg.LaneCaps = d.LaneCaps
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = d.DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:    cfg,
		run:    run,
		logger: logger,
		active: make(map[string]*abortsignal.Signal),
		lanes:  make(map[string]chan struct{}),
	}
}

func (c *Coordinator) laneSem(lane string) chan struct{} {
	if lane == "" {
		lane = "main"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if sem, ok := c.lanes[lane]; ok {
		return sem
	}
	n := c.cfg.LaneCaps[lane]
	if n <= 0 {
		n = 1
	}
	sem := make(chan struct{}, n)
	c.lanes[lane] = sem
	return sem
}

// RunSubagents spawns one sub-session per spec, each bounded by its lane's
// semaphore, and returns results in the same order as specs (spec §4.6:
// "Results are returned in the same order as specs"). timeout <= 0 uses
// cfg.DefaultTimeout.
func (c *Coordinator) RunSubagents(ctx context.Context, specs []Spec, timeout time.Duration) []Result {
	if timeout <= 0 {
		timeout = c.cfg.DefaultTimeout
	}
	results := make([]Result, len(specs))

	// errgroup.WithContext cancels gctx on the first non-nil error a
	// goroutine returns. runOne below never returns an error to g — every
	// outcome is folded into results[i] instead — since one sub-session
	// failing must never cancel its siblings (spec: "Coordinator survives
	// sub-session crashes... never itself crashes").
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			results[i] = c.runOne(gctx, spec, timeout)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Coordinator) runOne(ctx context.Context, spec Spec, timeout time.Duration) Result {
	if c.cfg.KnownSubagents != nil && spec.Subagent != "" && !c.cfg.KnownSubagents[spec.Subagent] {
		return Result{ID: spec.ID, Status: StatusError, Error: fmt.Sprintf("Unknown subagent: %s", spec.Subagent)}
	}

	sem := c.laneSem(spec.Lane)
	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		return Result{ID: spec.ID, Status: StatusAborted, Error: "aborted before dispatch"}
	}

	signal, cancel := abortsignal.FromContext(ctx).ChildWithTimeout(timeout)
	defer cancel()

	c.mu.Lock()
	c.active[spec.ID] = signal
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.active, spec.ID)
		c.mu.Unlock()
	}()

	return c.runIsolated(signal, spec)
}

// runIsolated invokes RunFn in its own goroutine so a panic inside a
// sub-session is recovered into an error Result instead of crashing the
// Coordinator (spec §4.6: "converts DOWN-style process death into error
// status, never itself crashes"), mirroring toolexec.Executor.runIsolated's
// identical panic/timeout isolation for individual tool calls.
func (c *Coordinator) runIsolated(signal *abortsignal.Signal, spec Spec) Result {
	type outcome struct {
		result    any
		sessionID string
		err       error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("subagent %q panicked: %v", spec.ID, r)}
			}
		}()
		res, sid, err := c.run(signal.Context(), spec)
		done <- outcome{result: res, sessionID: sid, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			c.logger.Warn("sub-session failed", "id", spec.ID, "subagent", spec.Subagent, "error", o.err)
			return Result{ID: spec.ID, Status: StatusError, Error: o.err.Error(), SessionID: o.sessionID}
		}
		c.logger.Debug("sub-session completed", "id", spec.ID, "subagent", spec.Subagent, "session_id", o.sessionID)
		return Result{ID: spec.ID, Status: StatusCompleted, Result: o.result, SessionID: o.sessionID}
	case <-signal.Context().Done():
		status := StatusAborted
		if signal.Context().Err() == context.DeadlineExceeded {
			status = StatusTimeout
		}
		c.logger.Warn("sub-session did not complete", "id", spec.ID, "subagent", spec.Subagent, "status", status)
		return Result{ID: spec.ID, Status: status, Error: signal.Context().Err().Error()}
	}
}

// AbortAll signals cancellation to every currently-active sub-session
// (spec §4.6: "abort_all() signals every active sub-session").
func (c *Coordinator) AbortAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Info("aborting all active sub-sessions", "count", len(c.active))
	for _, sig := range c.active {
		sig.Abort()
	}
}

// ListActive returns the ids of sub-sessions currently running (spec §4.6:
// "list_active() returns currently-running sub-session ids; empty after
// completion or cleanup").
func (c *Coordinator) ListActive() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.active))
	for id := range c.active {
		out = append(out, id)
	}
	return out
}
