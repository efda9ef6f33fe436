package agentloop

import (
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/agentcore/internal/abortsignal"
	"github.com/haasonsaas/agentcore/internal/toolexec"
	"github.com/haasonsaas/agentcore/pkg/session"
)

// outcomeKind classifies how one runTurn call ended, driving runSession's
// decision to loop back into another turn, drain a queued message, or stop
// (spec §4.1 steps 7-9).
type outcomeKind int

const (
	outcomeDone outcomeKind = iota
	outcomeToolUse
	outcomeAborted
	outcomeErrored
)

type turnOutcome struct {
	kind      outcomeKind
	message   *session.Message
	errorKind string
}

// runSession drives turns from Idle until the session returns to Idle,
// grounded on the teacher's AgenticLoop.Run's phase loop (internal/agent/
// loop.go) and re-architected per spec §9 to run entirely on the owner
// goroutine rather than spawning its own. Called only from dispatch().
func (l *Loop) runSession(st *ownerState, initial SteerMessage) {
	st.phase = Streaming
	st.turnIndex = 0
	st.runSignal = abortsignal.New()
	st.startedAt = time.Now()
	st.stats = session.RunStats{SessionID: l.sessionID, StartedAt: st.startedAt}

	l.appendUserEntry(initial)
	l.fanout.Publish(session.Event{Type: session.EventAgentStart})

	for {
		st.turnIndex++
		outcome := l.runTurn(st)

		switch outcome.kind {
		case outcomeToolUse:
			// A steer queued during streaming or tool execution is appended
			// after the tool results, before the next LLM invocation.
			if next, ok := st.steerQ.PopSteer(); ok {
				l.appendUserEntry(next)
			}
			continue // stop_reason == tool_use: no new agent_start, same run

		case outcomeAborted:
			l.fanout.Publish(session.Event{Type: session.EventCanceled, CancelReason: "assistant_aborted", TurnIndex: st.turnIndex})
			st.steerQ.ClearFollowUp() // queued steers survive abort; follow-ups don't
			st.stats.Cancelled = true
			l.finishSession(st)
			return

		case outcomeErrored:
			l.fanout.Publish(session.Event{Type: session.EventError, ErrorKind: outcome.errorKind, TurnIndex: st.turnIndex})
			st.steerQ.ClearAll() // spec §4.1 step 8: error discards queues outright, no carve-out
			st.stats.Errors++
			l.finishSession(st)
			return

		case outcomeDone:
			st.stats.Turns++
			l.fanout.Publish(session.Event{
				Type:      session.EventTurnEnd,
				Message:   outcome.message,
				Messages:  l.journal.CurrentBranch(),
				TurnIndex: st.turnIndex,
			})

			if next, ok := st.steerQ.PopSteer(); ok {
				l.appendUserEntry(next)
				continue
			}
			if next, ok := st.steerQ.PopFollowUp(); ok {
				l.appendUserEntry(SteerMessage{Text: next.Text, Images: next.Images})
				continue
			}

			l.fanout.Publish(session.Event{Type: session.EventAgentEnd, Messages: l.journal.CurrentBranch()})
			l.finishSession(st)
			return
		}
	}
}

// runTurn executes one LLM invocation plus, if requested, the tool-execution
// round that follows it (spec §4.1 steps 2-7). Commands arriving on l.cmds
// while a turn is in flight are served inline via dispatch(), which already
// knows how to queue/reject based on st.phase.
func (l *Loop) runTurn(st *ownerState) turnOutcome {
	_, span := l.cfg.Tracer.TurnSpan(st.runSignal.Context(), st.turnIndex)
	defer span.End()

	reqCtx := l.buildRequestContext()

	if info, err := l.maybeCompact(st.runSignal.Context(), reqCtx, st.runSignal); err != nil {
		outcome := turnOutcome{kind: outcomeErrored, errorKind: classifyCompactionError(err)}
		l.cfg.Tracer.RecordError(span, err)
		return outcome
	} else if info != nil {
		st.lastCompact = info
		reqCtx = l.buildRequestContext() // re-read the forked branch
	}

	l.fanout.Publish(session.Event{Type: session.EventTurnStart, TurnIndex: st.turnIndex})
	skeleton := session.Message{Role: session.RoleAssistant}
	l.fanout.Publish(session.Event{Type: session.EventMessageStart, Message: &skeleton, TurnIndex: st.turnIndex})

	events, err := l.callStreamWithRetry(st, reqCtx)
	if err != nil {
		l.cfg.Tracer.RecordError(span, err)
		return l.streamErrorOutcome(err)
	}
	outcome := l.consumeEvents(st, events)
	if outcome.kind == outcomeErrored {
		l.cfg.Tracer.RecordError(span, fmt.Errorf("%s", outcome.errorKind))
	}
	return outcome
}

// callStreamWithRetry invokes streamFn, retrying a synchronous failure
// whose StreamError is marked Retryable up to cfg.Retry.MaxRetries times
// with exponential backoff (spec §7: "non-retryable kinds surface
// immediately"), grounded on the teacher's LLM-client retry wrapper.
func (l *Loop) callStreamWithRetry(st *ownerState, reqCtx RequestContext) (<-chan ProducerEvent, error) {
	opts := StreamOpts{Signal: st.runSignal, ThinkingLevel: st.thinking}
	events, err := l.streamFn(st.runSignal.Context(), st.model, reqCtx, opts)
	if err == nil {
		return events, nil
	}

	var se *StreamError
	if !l.cfg.Retry.Enabled || !errors.As(err, &se) || !se.Retryable {
		return nil, err
	}

	delay := l.cfg.Retry.BaseDelay
	for attempt := 1; attempt <= l.cfg.Retry.MaxRetries; attempt++ {
		select {
		case <-time.After(delay):
		case <-st.runSignal.Done():
			return nil, err
		}
		events, retryErr := l.streamFn(st.runSignal.Context(), st.model, reqCtx, opts)
		if retryErr == nil {
			return events, nil
		}
		err = retryErr
		delay *= 2
	}
	return nil, err
}

// consumeEvents runs the nested select loop that is the heart of the
// single-writer/still-responsive design (spec §5: "While suspended... the
// Session MUST continue to accept and enqueue steer, abort, subscribe, and
// read-only queries"): every inbound command is served by dispatch() on
// this same goroutine, interleaved with ProducerEvents as they arrive.
func (l *Loop) consumeEvents(st *ownerState, events <-chan ProducerEvent) turnOutcome {
	builder := newAssistantBuilder()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if st.runSignal.Aborted() {
					return l.finalizeAborted(st, builder)
				}
				return turnOutcome{kind: outcomeErrored, errorKind: "stream_failed"}
			}
			if outcome, done := l.applyProducerEvent(st, builder, ev); done {
				return outcome
			}

		case c := <-l.cmds:
			l.dispatch(st, c)

		case <-l.done:
			return turnOutcome{kind: outcomeAborted}
		}
	}
}

// applyProducerEvent folds one ProducerEvent into builder and republishes it
// as a fan-out event (spec §4.1 step 6), returning a terminal outcome once a
// {done} or {error} event arrives.
func (l *Loop) applyProducerEvent(st *ownerState, b *assistantBuilder, ev ProducerEvent) (turnOutcome, bool) {
	switch ev.Kind {
	case ProducerTextStart:
		b.TextStart(ev.Index)
		l.publishUpdate(st, b)

	case ProducerTextDelta:
		b.TextDelta(ev.Index, ev.Chunk)
		idx := ev.Index
		l.fanout.Publish(session.Event{Type: session.EventTextDelta, ContentIndex: &idx, TextChunk: ev.Chunk, TurnIndex: st.turnIndex})
		l.publishUpdate(st, b)

	case ProducerTextEnd:
		l.publishUpdate(st, b)

	case ProducerThinkingStart:
		b.ThinkingStart(ev.Index)

	case ProducerThinkingDelta:
		b.ThinkingDelta(ev.Index, ev.Chunk)
		idx := ev.Index
		l.fanout.Publish(session.Event{Type: session.EventThinkingDelta, ContentIndex: &idx, TextChunk: ev.Chunk, TurnIndex: st.turnIndex})

	case ProducerThinkingEnd:
		// no dedicated fan-out event; content is already visible via deltas.

	case ProducerToolCallStart:
		b.ToolCallStart(ev.Index, ev.PartialToolCall)
		idx := ev.Index
		l.fanout.Publish(session.Event{Type: session.EventToolCallStart, ContentIndex: &idx, PartialCall: ev.PartialToolCall, TurnIndex: st.turnIndex})

	case ProducerToolCallEnd:
		b.ToolCallEnd(ev.Index, ev.ToolCall)
		idx := ev.Index
		l.fanout.Publish(session.Event{Type: session.EventToolCallEnd, ContentIndex: &idx, ToolCall: ev.ToolCall, TurnIndex: st.turnIndex})

	case ProducerUsage:
		b.Usage(ev.Usage)

	case ProducerDone:
		return l.finalizeDone(st, b, ev), true

	case ProducerError:
		return l.finalizeError(st, b, ev), true
	}
	return turnOutcome{}, false
}

func (l *Loop) publishUpdate(st *ownerState, b *assistantBuilder) {
	msg := b.Snapshot()
	l.fanout.Publish(session.Event{Type: session.EventMessageUpdate, Message: &msg, TurnIndex: st.turnIndex})
}

// finalizeDone appends the completed Assistant entry to the journal, emits
// message_end, and either dispatches a tool-execution round (stop_reason ==
// tool_use) or reports the turn as done.
func (l *Loop) finalizeDone(st *ownerState, b *assistantBuilder, ev ProducerEvent) turnOutcome {
	var msg session.Message
	if ev.FinalMsg != nil {
		msg = *ev.FinalMsg
	} else {
		msg = b.Snapshot()
	}
	if ev.StopReason != nil {
		msg.StopReason = ev.StopReason
	}
	if st.runSignal.Aborted() {
		aborted := session.StopReasonAborted
		msg.StopReason = &aborted
	}
	msg.Timestamp = time.Now()
	if msg.Usage != nil {
		st.stats.InputTokens += msg.Usage.Input
		st.stats.OutputTokens += msg.Usage.Output
	}

	l.journal.AppendToHead(session.Entry{Type: session.EntryMessage, Message: &msg})
	l.fanout.Publish(session.Event{Type: session.EventMessageEnd, Message: &msg, TurnIndex: st.turnIndex})

	if st.runSignal.Aborted() {
		return turnOutcome{kind: outcomeAborted, message: &msg}
	}

	if msg.StopReason != nil && *msg.StopReason == session.StopReasonToolUse {
		l.executeTools(st, msg.ToolCalls())
		if st.runSignal.Aborted() {
			return turnOutcome{kind: outcomeAborted, message: &msg}
		}
		return turnOutcome{kind: outcomeToolUse, message: &msg}
	}
	return turnOutcome{kind: outcomeDone, message: &msg}
}

// finalizeError appends a partial Assistant entry carrying whatever content
// accumulated before the model's own {error} event, and surfaces it as
// stream_failed (spec §7).
func (l *Loop) finalizeError(st *ownerState, b *assistantBuilder, ev ProducerEvent) turnOutcome {
	errStop := session.StopReasonError
	msg := b.Snapshot()
	msg.StopReason = &errStop
	msg.Timestamp = time.Now()
	l.journal.AppendToHead(session.Entry{Type: session.EntryMessage, Message: &msg})
	l.fanout.Publish(session.Event{Type: session.EventMessageEnd, Message: &msg, TurnIndex: st.turnIndex})

	kind := ev.ErrorKind
	if kind == "" {
		kind = "stream_failed"
	}
	return turnOutcome{kind: outcomeErrored, message: &msg, errorKind: kind}
}

// finalizeAborted handles a StreamFn event channel that closed without an
// explicit {done}/{error} after Abort() was observed (spec §5: well-behaved
// StreamFn implementations stop sending once opts.Signal is aborted, which
// in Go idiom means closing the channel without a terminal event).
func (l *Loop) finalizeAborted(st *ownerState, b *assistantBuilder) turnOutcome {
	aborted := session.StopReasonAborted
	msg := b.Snapshot()
	msg.StopReason = &aborted
	msg.Timestamp = time.Now()
	l.journal.AppendToHead(session.Entry{Type: session.EntryMessage, Message: &msg})
	l.fanout.Publish(session.Event{Type: session.EventMessageEnd, Message: &msg, TurnIndex: st.turnIndex})
	return turnOutcome{kind: outcomeAborted, message: &msg}
}

// streamErrorOutcome handles a synchronous (non-retried, or retry-exhausted)
// error from streamFn itself: no assistant content was ever produced, so
// the journal gets a bare error-stopped entry.
func (l *Loop) streamErrorOutcome(err error) turnOutcome {
	var se *StreamError
	kind := "stream_failed"
	if errors.As(err, &se) {
		kind = se.WireKind
	}
	errStop := session.StopReasonError
	msg := session.Message{Role: session.RoleAssistant, StopReason: &errStop, Timestamp: time.Now()}
	l.journal.AppendToHead(session.Entry{Type: session.EntryMessage, Message: &msg})
	return turnOutcome{kind: outcomeErrored, message: &msg, errorKind: kind}
}

// executeTools dispatches every ToolCall from the just-finished Assistant
// message through the Executor, waiting for ExecuteAll while still serving
// commands arriving on l.cmds (spec §5's continued-responsiveness
// requirement extends to the tool-execution phase). One ToolResult entry is
// appended per call, in original call order (spec §4.4).
func (l *Loop) executeTools(st *ownerState, calls []session.ToolCall) {
	if len(calls) == 0 {
		return
	}

	toolCalls := make([]toolexec.Call, 0, len(calls))
	for _, c := range calls {
		toolCalls = append(toolCalls, toolexec.Call{ID: c.ID, Name: c.Name, Arguments: c.Arguments})
	}

	resultsCh := make(chan []toolexec.Result, 1)
	go func() {
		resultsCh <- l.executor.ExecuteAll(st.runSignal.Context(), st.runSignal, toolCalls)
	}()

	var results []toolexec.Result
waitLoop:
	for {
		select {
		case results = <-resultsCh:
			break waitLoop
		case c := <-l.cmds:
			l.dispatch(st, c)
		case <-l.done:
			return
		}
	}

	st.stats.ToolCalls += len(results)
	for i, r := range results {
		isErr := r.IsError()
		if isErr {
			st.stats.Errors++
		}
		msg := session.Message{
			Role:       session.RoleToolResult,
			Content:    toolResultEntryContent(r),
			ToolCallID: calls[i].ID,
			IsError:    isErr,
			Timestamp:  time.Now(),
		}
		l.journal.AppendToHead(session.Entry{Type: session.EntryMessage, Message: &msg})
	}
}

// appendUserEntry appends a User message entry built from a queued/initial
// steer (spec §4.1 step 1 and the steer/follow-up drain in runSession).
func (l *Loop) appendUserEntry(m SteerMessage) {
	user := session.NewUserMessage(m.Text, toImageContent(m.Images)...)
	l.journal.AppendToHead(session.Entry{Type: session.EntryMessage, Message: &user})
}

func (l *Loop) finishSession(st *ownerState) {
	st.stats.FinishedAt = time.Now()
	st.stats.WallTime = st.stats.FinishedAt.Sub(st.startedAt)
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.RecordTurnDuration(st.stats.WallTime.Seconds())
	}
	st.phase = Idle
	st.runSignal = nil
}

// classifyCompactionError maps maybeCompact's error into spec §7's
// error-kind vocabulary.
func classifyCompactionError(err error) string {
	if errors.Is(err, ErrCannotCompact) {
		return "cannot_compact"
	}
	return "persistence_failed"
}
