// Package agentloop implements the Session/AgentLoop (spec §4.1): the
// state machine that alternates LLM turns and tool-execution turns,
// enforces the single-writer invariant over the journal, and serves
// steering/abort/follow-up commands while a turn is in flight. Grounded on
// the teacher's internal/agent/loop.go (turn-phase state machine) and
// internal/agent/steering.go (steering/follow-up queues), re-architected
// per spec §9 from the teacher's Run()-returns-a-channel shape into a
// long-lived goroutine that owns state and serves a command channel
// (spec §9: "Process-based actor per session... a long-lived goroutine/
// task that owns state and serves a command channel; public API wraps
// sends to that channel").
package agentloop

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/agentcore/internal/abortsignal"
	"github.com/haasonsaas/agentcore/internal/compaction"
	"github.com/haasonsaas/agentcore/internal/eventstream"
	"github.com/haasonsaas/agentcore/internal/journal"
	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/internal/toolexec"
	"github.com/haasonsaas/agentcore/pkg/session"
)

// Loop is one session's agent loop: exactly one goroutine (run) owns all
// mutable state and the journal (spec §4.1 "Single-writer invariant"); all
// other goroutines communicate through the command channel and block for
// an acknowledgement, matching the teacher's actor-per-session pattern
// generalized from its GenServer-shaped process tree (spec §9).
type Loop struct {
	sessionID string
	journal   *journal.Journal
	fanout    *eventstream.FanOut
	registry  *toolexec.Registry
	executor  *toolexec.Executor
	cfg       LoopConfig
	streamFn  StreamFn
	summarize compaction.SummarizeFn

	cmds chan any

	done   chan struct{}
	closed bool
}

// New constructs a Loop. streamFn is the core's sole LLM collaborator
// (spec §1); summarize may be nil (GenerateSummary then requires
// opts.Summary to be supplied, or compaction fails).
func New(sessionID string, streamFn StreamFn, tools ToolConfig, cfg LoopConfig, summarize compaction.SummarizeFn) *Loop {
	cfg = sanitizeLoopConfig(cfg)
	registry := tools.Registry
	if registry == nil {
		registry = toolexec.NewRegistry()
	}
	l := &Loop{
		sessionID: sessionID,
		journal:   journal.New(cfg.Logger),
		fanout:    eventstream.New(sessionID).WithMetrics(cfg.Metrics).WithLogger(cfg.Logger),
		registry:  registry,
		cfg:       cfg,
		streamFn:  streamFn,
		summarize: summarize,
		cmds:      make(chan any, 16),
		done:      make(chan struct{}),
	}
	execConfig := tools.ExecutorConfig
	if execConfig == (toolexec.Config{}) {
		execConfig = toolexec.DefaultConfig()
	}
	l.executor = toolexec.NewExecutor(registry, execConfig, l.onToolEvent).WithMetrics(cfg.Metrics).WithTracer(cfg.Tracer).WithLogger(cfg.Logger)
	go l.run()
	return l
}

// Close stops the owner goroutine. Any in-flight turn is not awaited —
// callers should Abort() and wait for Idle first if a graceful stop is
// required.
func (l *Loop) Close() {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}

// --- command envelope -------------------------------------------------

type replyErr struct{ reply chan error }

func (r replyErr) send(err error) { r.reply <- err }

type cmdPrompt struct {
	text   string
	images []session.ImageContent
	replyErr
}

type cmdSteer struct {
	text   string
	images []session.ImageContent
	replyErr
}

type cmdFollowUp struct {
	text   string
	images []session.ImageContent
	replyErr
}

type cmdAbort struct{ reply chan struct{} }

type cmdResetTo struct {
	entryID *string
	replyErr
}

type cmdSwitchModel struct {
	model Model
	replyErr
}

type cmdSetThinking struct {
	level ThinkingLevel
	replyErr
}

type cmdSave struct {
	path string
	replyErr
}

type cmdGetState struct{ reply chan LoopState }
type cmdGetMessages struct{ reply chan []*session.Entry }
type cmdGetStats struct{ reply chan session.RunStats }
type cmdDiagnostics struct{ reply chan DiagnosticsSnapshot }
type cmdHealthCheck struct{ reply chan HealthCheck }

type cmdSubscribeMailbox struct {
	maxQueue int
	cb       eventstream.Callback
	reply    chan *eventstream.Handle
}

type cmdSubscribeStream struct {
	maxQueue int
	reply    chan *eventstream.Handle
}

// send enqueues c and blocks the caller's goroutine only (never the owner)
// until accepted by run(); it does not wait for a reply unless the caller
// reads from the command's own reply channel.
func (l *Loop) send(c any) {
	select {
	case l.cmds <- c:
	case <-l.done:
	}
}

// --- public command-style API (spec §4.1 "Operations (contract)") ------

// Prompt appends a User entry and starts a turn. Returns ErrAlreadyStreaming
// if the loop is not Idle.
func (l *Loop) Prompt(text string, images ...session.ImageContent) error {
	reply := make(chan error, 1)
	l.send(cmdPrompt{text: text, images: images, replyErr: replyErr{reply}})
	return waitErr(reply, l.done)
}

// Steer behaves like Prompt when Idle; while Streaming it queues a User
// entry to be injected at the next turn boundary without interrupting
// in-flight tool execution (spec §4.1).
func (l *Loop) Steer(text string, images ...session.ImageContent) error {
	reply := make(chan error, 1)
	l.send(cmdSteer{text: text, images: images, replyErr: replyErr{reply}})
	return waitErr(reply, l.done)
}

// FollowUp queues a prompt to run only once the current turn fully drains
// (FIFO, never fails per spec §4.1).
func (l *Loop) FollowUp(text string, images ...session.ImageContent) {
	reply := make(chan error, 1)
	l.send(cmdFollowUp{text: text, images: images, replyErr: replyErr{reply}})
	<-reply
}

// Abort signals cancellation of the in-flight turn, if any. Never fails.
func (l *Loop) Abort() {
	reply := make(chan struct{}, 1)
	l.send(cmdAbort{reply: reply})
	select {
	case <-reply:
	case <-l.done:
	}
}

// ResetTo forks the branch onto entryID (or an empty branch if nil).
func (l *Loop) ResetTo(entryID *string) error {
	reply := make(chan error, 1)
	l.send(cmdResetTo{entryID: entryID, replyErr: replyErr{reply}})
	return waitErr(reply, l.done)
}

// SwitchModel appends a model_change entry; the next turn uses the new
// model.
func (l *Loop) SwitchModel(model Model) error {
	reply := make(chan error, 1)
	l.send(cmdSwitchModel{model: model, replyErr: replyErr{reply}})
	return waitErr(reply, l.done)
}

// SetThinkingLevel overrides the thinking level used by subsequent turns.
func (l *Loop) SetThinkingLevel(level ThinkingLevel) error {
	reply := make(chan error, 1)
	l.send(cmdSetThinking{level: level, replyErr: replyErr{reply}})
	return waitErr(reply, l.done)
}

// Save persists the journal to path.
func (l *Loop) Save(path string) error {
	reply := make(chan error, 1)
	l.send(cmdSave{path: path, replyErr: replyErr{reply}})
	return waitErr(reply, l.done)
}

// GetState returns a snapshot of the loop's current turn progress.
func (l *Loop) GetState() LoopState {
	reply := make(chan LoopState, 1)
	l.send(cmdGetState{reply: reply})
	select {
	case s := <-reply:
		return s
	case <-l.done:
		return LoopState{Phase: Idle}
	}
}

// GetMessages returns the live branch, oldest-first.
func (l *Loop) GetMessages() []*session.Entry {
	reply := make(chan []*session.Entry, 1)
	l.send(cmdGetMessages{reply: reply})
	select {
	case m := <-reply:
		return m
	case <-l.done:
		return nil
	}
}

// GetStats returns the accumulated RunStats for this session.
func (l *Loop) GetStats() session.RunStats {
	reply := make(chan session.RunStats, 1)
	l.send(cmdGetStats{reply: reply})
	select {
	case s := <-reply:
		return s
	case <-l.done:
		return session.RunStats{}
	}
}

// Diagnostics returns a structured internal-state snapshot.
func (l *Loop) Diagnostics() DiagnosticsSnapshot {
	reply := make(chan DiagnosticsSnapshot, 1)
	l.send(cmdDiagnostics{reply: reply})
	select {
	case d := <-reply:
		return d
	case <-l.done:
		return DiagnosticsSnapshot{}
	}
}

// HealthCheck reports whether a turn is currently in flight.
func (l *Loop) HealthCheck() HealthCheck {
	reply := make(chan HealthCheck, 1)
	l.send(cmdHealthCheck{reply: reply})
	select {
	case h := <-reply:
		return h
	case <-l.done:
		return HealthCheck{}
	}
}

// SubscribeMailbox registers a callback-delivered subscriber.
func (l *Loop) SubscribeMailbox(maxQueue int, cb eventstream.Callback) *eventstream.Handle {
	reply := make(chan *eventstream.Handle, 1)
	l.send(cmdSubscribeMailbox{maxQueue: maxQueue, cb: cb, reply: reply})
	select {
	case h := <-reply:
		return h
	case <-l.done:
		return nil
	}
}

// SubscribeStream registers a pull-mode subscriber.
func (l *Loop) SubscribeStream(maxQueue int) *eventstream.Handle {
	reply := make(chan *eventstream.Handle, 1)
	l.send(cmdSubscribeStream{maxQueue: maxQueue, reply: reply})
	select {
	case h := <-reply:
		return h
	case <-l.done:
		return nil
	}
}

func waitErr(reply chan error, done chan struct{}) error {
	select {
	case err := <-reply:
		return err
	case <-done:
		return fmt.Errorf("agentloop: loop closed")
	}
}

// --- owner goroutine -----------------------------------------------------

// ownerState is every field touched exclusively by the run() goroutine.
// No other goroutine may read or write these without racing; all external
// observation goes through the command channel and its reply.
type ownerState struct {
	phase        Phase
	turnIndex    int
	model        Model
	thinking     ThinkingLevel
	steerQ       *steeringQueue
	runSignal    *abortsignal.Signal
	stats        session.RunStats
	lastCompact  *CompactionInfo
	startedAt    time.Time
	turnStarted  bool // whether agent_start has fired for the current run
}

func (l *Loop) run() {
	st := &ownerState{
		phase:    Idle,
		thinking: l.cfg.DefaultThinkingLevel,
		steerQ:   newSteeringQueue(),
	}
	for {
		select {
		case c := <-l.cmds:
			l.dispatch(st, c)
		case <-l.done:
			return
		}
	}
}

// dispatch routes one command. Idle-only commands are rejected with
// ErrAlreadyStreaming outside Idle (spec §4.1's Streaming row: "Rejects
// prompt with already_streaming"; reset/switch_model/save/
// set_thinking_level are likewise Idle-only per the operations table).
func (l *Loop) dispatch(st *ownerState, c any) {
	switch cmd := c.(type) {
	case cmdPrompt:
		if st.phase != Idle {
			cmd.send(ErrAlreadyStreaming)
			return
		}
		cmd.send(nil)
		l.runSession(st, SteerMessage{Text: cmd.text, Images: toSteerImages(cmd.images)})

	case cmdSteer:
		if st.phase == Idle {
			cmd.send(nil)
			l.runSession(st, SteerMessage{Text: cmd.text, Images: toSteerImages(cmd.images)})
			return
		}
		st.steerQ.Steer(SteerMessage{Text: cmd.text, Images: toSteerImages(cmd.images)})
		cmd.send(nil)

	case cmdFollowUp:
		st.steerQ.FollowUp(FollowUpMessage{Text: cmd.text, Images: toSteerImages(cmd.images)})
		cmd.send(nil)

	case cmdAbort:
		if st.runSignal != nil {
			st.runSignal.Abort()
		}
		cmd.reply <- struct{}{}

	case cmdResetTo:
		if st.phase != Idle {
			cmd.send(ErrAlreadyStreaming)
			return
		}
		err := l.journal.ResetHead(cmd.entryID)
		if errors.Is(err, journal.ErrUnknownEntry) {
			err = fmt.Errorf("%w: %w", ErrUnknownEntry, err)
		}
		cmd.send(err)

	case cmdSwitchModel:
		if st.phase != Idle {
			cmd.send(ErrAlreadyStreaming)
			return
		}
		st.model = cmd.model
		_, err := l.journal.AppendToHead(session.Entry{
			Type:        session.EntryModelChange,
			ModelChange: &session.ModelChangePayload{Provider: cmd.model.Provider, ModelID: cmd.model.ModelID},
		})
		cmd.send(err)

	case cmdSetThinking:
		if st.phase != Idle {
			cmd.send(ErrAlreadyStreaming)
			return
		}
		st.thinking = cmd.level
		cmd.send(nil)

	case cmdSave:
		if st.phase != Idle {
			cmd.send(ErrAlreadyStreaming)
			return
		}
		cmd.send(l.journal.Save(cmd.path))

	case cmdGetState:
		cmd.reply <- l.snapshotState(st)

	case cmdGetMessages:
		cmd.reply <- l.journal.CurrentBranch()

	case cmdGetStats:
		cmd.reply <- st.stats

	case cmdDiagnostics:
		cmd.reply <- l.snapshotDiagnostics(st)

	case cmdHealthCheck:
		cmd.reply <- HealthCheck{IsStreaming: st.phase != Idle, Phase: st.phase}

	case cmdSubscribeMailbox:
		cmd.reply <- l.fanout.SubscribeMailbox(cmd.maxQueue, cmd.cb)

	case cmdSubscribeStream:
		cmd.reply <- l.fanout.SubscribeStream(cmd.maxQueue)
	}
}

func toSteerImages(imgs []session.ImageContent) []session_Image {
	out := make([]session_Image, 0, len(imgs))
	for _, im := range imgs {
		out = append(out, session_Image{Data: im.Data, URL: im.URL, MimeType: im.MimeType})
	}
	return out
}

func toImageContent(imgs []session_Image) []session.ImageContent {
	out := make([]session.ImageContent, 0, len(imgs))
	for _, im := range imgs {
		out = append(out, session.ImageContent{Data: im.Data, URL: im.URL, MimeType: im.MimeType})
	}
	return out
}

func (l *Loop) snapshotState(st *ownerState) LoopState {
	return LoopState{
		Phase:     st.phase,
		TurnIndex: st.turnIndex,
	}
}

func (l *Loop) snapshotDiagnostics(st *ownerState) DiagnosticsSnapshot {
	steering, followUp := st.steerQ.Depths()
	return DiagnosticsSnapshot{
		Phase:              st.phase,
		BranchLength:       l.journal.Len(),
		SteeringQueueDepth: steering,
		FollowUpQueueDepth: followUp,
		LastCompaction:     st.lastCompact,
		SubscriberCount:    l.fanout.SubscriberCount(),
		DroppedEvents:      l.fanout.TotalDropped(),
	}
}

// logger returns the configured logger, defaulting to slog.Default().
func (l *Loop) logger() *slog.Logger {
	if l.cfg.Logger != nil {
		return l.cfg.Logger
	}
	return slog.Default()
}
