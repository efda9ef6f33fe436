package agentloop

import "github.com/haasonsaas/agentcore/pkg/session"

// Phase is the coarse state of the loop (spec §4.1's three states).
type Phase string

const (
	Idle      Phase = "idle"
	Streaming Phase = "streaming"
	Aborting  Phase = "aborting"
)

// LoopState is a snapshot of the loop's current turn progress, returned by
// get_state and embedded in diagnostics(), grounded on the teacher's
// LoopState.
type LoopState struct {
	Phase          Phase
	TurnIndex      int
	AssistantMsgID string
	PendingTools   int
	LastError      string
}

// DiagnosticsSnapshot is the concrete shape of diagnostics() (SPEC_FULL.md
// [SUPPLEMENT] Diagnostics snapshot), grounded on the teacher's
// compaction.GetInfo() and observability DiagnosticEvent shape.
type DiagnosticsSnapshot struct {
	Phase              Phase
	BranchLength       int
	SteeringQueueDepth int
	FollowUpQueueDepth int

	LastCompaction *CompactionInfo

	SubscriberCount int
	DroppedEvents   uint64
}

// CompactionInfo records the outcome of the most recent compaction run.
type CompactionInfo struct {
	TokensBefore int
	TokensAfter  int
	CutEntryID   string
}

// HealthCheck is the shape of health_check() (spec §4.1/§8:
// "health_check.is_streaming").
type HealthCheck struct {
	IsStreaming bool
	Phase       Phase
}
