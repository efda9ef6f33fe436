package agentloop

import (
	"log/slog"
	"time"

	"github.com/haasonsaas/agentcore/internal/compaction"
	"github.com/haasonsaas/agentcore/internal/observability"
	"github.com/haasonsaas/agentcore/internal/toolexec"
)

// SystemPromptFn builds the system prompt for a turn. Kept as a function
// hook rather than a fixed string since prompt assembly is an external
// collaborator (spec §1 non-goals list "prompt-template assembly").
type SystemPromptFn func() string

// LoopConfig configures one Loop instance, grounded on the teacher's
// LoopConfig/DefaultLoopConfig (internal/agent/loop.go).
type LoopConfig struct {
	Model               Model
	DefaultThinkingLevel ThinkingLevel

	SystemPrompt SystemPromptFn

	ContextWindow int
	Compaction    compaction.Settings
	MessageBudget compaction.MessageCountBudget
	KeepRecentTokens int

	ToolTimeout time.Duration
	Retry       RetryConfig

	Logger    *slog.Logger
	Metrics   *observability.Metrics
	Tracer    *observability.Tracer
}

// RetryConfig governs automatic retry of a stream_failed{wire_kind} error
// whose kind is marked Retryable (spec §7), grounded on the teacher's
// retry/backoff handling around its LLM client call.
type RetryConfig struct {
	Enabled    bool
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryConfig matches the retry defaults of config.DefaultSettings:
// enabled, 3 retries, 1000ms base delay.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Enabled: true, MaxRetries: 3, BaseDelay: 1000 * time.Millisecond}
}

// DefaultLoopConfig mirrors spec §6's documented defaults and the teacher's
// DefaultLoopConfig/sanitizeLoopConfig pattern: a defaulted struct plus a
// sanitizer that fills zero-value fields rather than requiring every
// caller to specify everything.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		DefaultThinkingLevel: ThinkingOff, // spec §9 Open Question 3: from-map default is "off"
		ContextWindow:        200_000,
		Compaction:           compaction.DefaultSettings(),
		KeepRecentTokens:     20_000,
		ToolTimeout:          2 * time.Minute,
		Retry:                DefaultRetryConfig(),
	}
}

// sanitizeLoopConfig fills zero-value fields, grounded on the teacher's
// sanitizeLoopConfig.
func sanitizeLoopConfig(c LoopConfig) LoopConfig {
	d := DefaultLoopConfig()
	if c.ContextWindow <= 0 {
		c.ContextWindow = d.ContextWindow
	}
	if c.KeepRecentTokens <= 0 {
		c.KeepRecentTokens = d.KeepRecentTokens
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = d.ToolTimeout
	}
	if c.Retry == (RetryConfig{}) {
		c.Retry = d.Retry
	}
	if c.DefaultThinkingLevel == "" {
		c.DefaultThinkingLevel = d.DefaultThinkingLevel
	}
	if c.Compaction == (compaction.Settings{}) {
		c.Compaction = d.Compaction
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.SystemPrompt == nil {
		c.SystemPrompt = func() string { return "" }
	}
	return c
}

// ToolConfig bundles the collaborators a turn needs to run tools: a
// populated registry and the executor's timeout/concurrency policy. The
// Loop builds its own *toolexec.Executor from these (rather than accepting
// one pre-built) so the executor's lifecycle events can be wired directly
// to this session's own EventFanOut (spec §4.4 events -> §4.7 fan-out).
type ToolConfig struct {
	Registry      *toolexec.Registry
	ExecutorConfig toolexec.Config
}
