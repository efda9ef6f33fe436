// Package eventstream implements EventStream & EventFanOut (spec §4.7): a
// bounded, session-scoped pub/sub layer multiplexing session.Event values to
// multiple subscribers with backpressure. Grounded on the teacher's
// internal/agent/event_sink.go (BackpressureSink's two-lane drop policy) and
// internal/agent/event_emitter.go (monotonic sequence counter, stats
// collector).
package eventstream

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/pkg/session"
)

// Mode selects a subscriber's delivery semantics (spec §4.7).
type Mode string

const (
	// ModeMailbox delivers events one-shot via a callback; if the
	// subscriber's mailbox is saturated, events are dropped for that
	// subscriber only, with a visible per-subscriber dropped counter.
	ModeMailbox Mode = "mailbox"
	// ModeStream delivers events via a bounded pull queue with
	// drop-oldest overflow policy.
	ModeStream Mode = "stream"
)

// DefaultMaxQueue is the default bounded stream-mode queue size.
const DefaultMaxQueue = 256

// DefaultMailboxBuffer is the default mailbox-mode buffer size.
const DefaultMailboxBuffer = 64

// subscriber is a single fan-out destination.
type subscriber struct {
	id       uint64
	mode     Mode
	maxQueue int

	mu      sync.Mutex
	queue   []session.Event // ring-ish slice, drop-oldest on overflow
	ch      chan session.Event
	dropped atomic.Uint64
	closed  atomic.Bool
}

// FanOut is a session-scoped publisher: every SessionJournal-driving
// AgentLoop owns exactly one FanOut and publishes every session.Event to it
// (spec §4.7). A publish never blocks the AgentLoop (spec §5).
type FanOut struct {
	sessionID string

	mu          sync.RWMutex
	subscribers map[uint64]*subscriber
	nextID      uint64
	seq         atomic.Uint64

	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates a FanOut for the given session id (used to stamp
// session.Event.SessionID on publish). Logs to slog.Default() until
// WithLogger overrides it.
func New(sessionID string) *FanOut {
	return &FanOut{sessionID: sessionID, subscribers: make(map[uint64]*subscriber), logger: slog.Default()}
}

// WithMetrics attaches a Metrics recorder, returning the FanOut for
// chaining. A nil argument is a no-op.
func (f *FanOut) WithMetrics(m *observability.Metrics) *FanOut {
	f.metrics = m
	return f
}

// WithLogger attaches a Logger, returning the FanOut for chaining. A nil
// argument leaves the slog.Default() fallback from New in place.
func (f *FanOut) WithLogger(l *slog.Logger) *FanOut {
	if l != nil {
		f.logger = l
	}
	return f
}

// Handle is returned by Subscribe; it identifies one subscription and
// provides the Mode-appropriate read path.
type Handle struct {
	fo  *FanOut
	sub *subscriber
}

// Unsubscribe removes the subscription from the fan-out set. Idempotent
// (spec §4.7/§8: "Unsubscribe is idempotent and removes the handle from the
// fan-out set" / "unsubscribe twice is a no-op").
func (h *Handle) Unsubscribe() {
	if h == nil || h.fo == nil {
		return
	}
	h.fo.mu.Lock()
	defer h.fo.mu.Unlock()
	if _, ok := h.fo.subscribers[h.sub.id]; !ok {
		return
	}
	delete(h.fo.subscribers, h.sub.id)

	h.sub.mu.Lock()
	defer h.sub.mu.Unlock()
	h.sub.closed.Store(true)
	close(h.sub.ch)
}

// DroppedCount returns how many events were dropped for this subscriber
// specifically (mailbox saturation or stream drop-oldest overflow).
func (h *Handle) DroppedCount() uint64 {
	return h.sub.dropped.Load()
}

// Pull blocks until the next event is available for a stream-mode
// subscriber, or returns ok=false if the subscription has been
// unsubscribed and drained.
func (h *Handle) Pull() (session.Event, bool) {
	if h.sub.mode != ModeStream {
		return session.Event{}, false
	}
	e, ok := <-h.sub.ch
	return e, ok
}

// Mailbox-mode delivery callback signature.
type Callback func(session.Event)

// SubscribeMailbox registers a callback-delivered subscriber (spec §4.7
// mailbox mode). maxQueue <= 0 uses DefaultMailboxBuffer. The callback is
// invoked from a dedicated per-subscriber goroutine, never from the
// publisher's goroutine, satisfying "a publish never blocks the AgentLoop."
func (f *FanOut) SubscribeMailbox(maxQueue int, cb Callback) *Handle {
	if maxQueue <= 0 {
		maxQueue = DefaultMailboxBuffer
	}
	sub := &subscriber{mode: ModeMailbox, maxQueue: maxQueue, ch: make(chan session.Event, maxQueue)}
	h := f.register(sub)

	go func() {
		for e := range sub.ch {
			cb(e)
		}
	}()
	return h
}

// SubscribeStream registers a pull-mode subscriber with a bounded queue of
// size maxQueue (spec §4.7 stream mode). maxQueue <= 0 uses
// DefaultMaxQueue. Overflow policy is drop-oldest.
func (f *FanOut) SubscribeStream(maxQueue int) *Handle {
	if maxQueue <= 0 {
		maxQueue = DefaultMaxQueue
	}
	sub := &subscriber{mode: ModeStream, maxQueue: maxQueue, ch: make(chan session.Event, maxQueue)}
	return f.register(sub)
}

func (f *FanOut) register(sub *subscriber) *Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	sub.id = f.nextID
	f.subscribers[sub.id] = sub
	return &Handle{fo: f, sub: sub}
}

// Publish delivers e to every current subscriber. It stamps SessionID and a
// monotonically increasing Sequence (spec §8: "Events are totally ordered
// per session"), then fans out without blocking: mailbox subscribers drop
// on saturation, stream subscribers drop-oldest on overflow.
func (f *FanOut) Publish(e session.Event) {
	e.SessionID = f.sessionID
	e.Sequence = f.seq.Add(1)

	f.mu.RLock()
	subs := make([]*subscriber, 0, len(f.subscribers))
	for _, s := range f.subscribers {
		subs = append(subs, s)
	}
	f.mu.RUnlock()

	for _, s := range subs {
		f.deliver(s, e)
	}
}

// deliver holds s.mu for both modes so a concurrent Unsubscribe (which also
// takes s.mu before closing s.ch) can never race a send against the close.
func (f *FanOut) deliver(s *subscriber, e session.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return
	}
	switch s.mode {
	case ModeMailbox:
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
			f.metrics.RecordEventDropped(f.sessionID, string(ModeMailbox))
			f.logger.Warn("dropping event: mailbox subscriber saturated", "session_id", f.sessionID, "subscriber", s.id)
		}
	case ModeStream:
		select {
		case s.ch <- e:
		default:
			// Drop-oldest: make room by discarding one queued event, then
			// retry the send. The channel is the queue itself; draining
			// one element and resending keeps FIFO order for survivors.
			select {
			case <-s.ch:
				s.dropped.Add(1)
				f.metrics.RecordEventDropped(f.sessionID, string(ModeStream))
				f.logger.Warn("dropping oldest event: stream subscriber queue full", "session_id", f.sessionID, "subscriber", s.id)
			default:
			}
			select {
			case s.ch <- e:
			default:
				s.dropped.Add(1)
				f.metrics.RecordEventDropped(f.sessionID, string(ModeStream))
			}
		}
	}
}

// Close shuts down every subscriber channel. After Close, Publish is a
// no-op and Pull returns ok=false once drained.
func (f *FanOut) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.subscribers {
		s.mu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.mu.Unlock()
		delete(f.subscribers, id)
	}
}

// SubscriberCount reports the current number of active subscriptions, for
// diagnostics (spec §4.1 diagnostics()).
func (f *FanOut) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

// TotalDropped sums dropped-event counts across all current subscribers,
// for diagnostics.
func (f *FanOut) TotalDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var total uint64
	for _, s := range f.subscribers {
		total += s.dropped.Load()
	}
	return total
}
