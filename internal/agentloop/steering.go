package agentloop

import "sync"

// SteerMessage is a user message queued for injection at the next turn
// boundary (spec §4.1 steer semantics): it does not interrupt an
// in-progress tool execution, but is appended as a User entry before the
// next LLM invocation.
type SteerMessage struct {
	Text   string
	Images []session_Image
}

// FollowUpMessage is a prompt queued to run only after the current turn
// fully drains (spec §4.1 follow_up semantics): FIFO, independent from
// steering.
type FollowUpMessage struct {
	Text   string
	Images []session_Image
}

// session_Image avoids an import cycle concern by re-declaring the shape
// prompt() accepts; callers construct these from session.ImageContent
// fields directly (data/mimeType/url), kept minimal since this package does
// not otherwise need the full session.ImageContent type at the queue layer.
type session_Image struct {
	Data     []byte
	URL      string
	MimeType string
}

// steeringQueue holds pending steer and follow-up messages for one Loop,
// grounded on the teacher's agent.SteeringQueue, narrowed to this spec's
// single delivery mode: one-at-a-time for both (spec §4.1 gives no "all at
// once" mode — each drained message starts exactly one new turn).
type steeringQueue struct {
	mu       sync.Mutex
	steering []SteerMessage
	followUp []FollowUpMessage
}

func newSteeringQueue() *steeringQueue {
	return &steeringQueue{}
}

// Steer appends a steering message (spec: "queued steers are preserved" on
// abort, consumed one at a time at each turn boundary).
func (q *steeringQueue) Steer(msg SteerMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.steering = append(q.steering, msg)
}

// FollowUp appends a follow-up prompt (FIFO, spec §4.1).
func (q *steeringQueue) FollowUp(msg FollowUpMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.followUp = append(q.followUp, msg)
}

// PopSteer removes and returns the oldest steering message, if any.
func (q *steeringQueue) PopSteer() (SteerMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.steering) == 0 {
		return SteerMessage{}, false
	}
	msg := q.steering[0]
	q.steering = q.steering[1:]
	return msg, true
}

// PopFollowUp removes and returns the oldest follow-up message, if any.
func (q *steeringQueue) PopFollowUp() (FollowUpMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.followUp) == 0 {
		return FollowUpMessage{}, false
	}
	msg := q.followUp[0]
	q.followUp = q.followUp[1:]
	return msg, true
}

// HasSteer reports whether a steering message is queued.
func (q *steeringQueue) HasSteer() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.steering) > 0
}

// HasFollowUp reports whether a follow-up message is queued.
func (q *steeringQueue) HasFollowUp() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.followUp) > 0
}

// ClearFollowUp discards all queued follow-ups (spec §4.1 abort semantics:
// "queued follow_ups are discarded" on abort).
func (q *steeringQueue) ClearFollowUp() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.followUp = nil
}

// ClearSteer discards all queued steering messages.
func (q *steeringQueue) ClearSteer() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.steering = nil
}

// ClearAll discards both queues (spec §4.1 step 8: an {error, kind} outcome
// discards queues outright, unlike step 9's abort handling which preserves
// queued steers).
func (q *steeringQueue) ClearAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.steering = nil
	q.followUp = nil
}

// Depths reports queue lengths for diagnostics().
func (q *steeringQueue) Depths() (steering, followUp int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.steering), len(q.followUp)
}
