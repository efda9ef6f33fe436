package compaction

// Settings configures when compaction should trigger (spec §4.3/§6).
// The config-loading layer (internal/config) distinguishes an absent
// compactionEnabled from an explicit false, and replaces an absent or zero
// reserveTokens with its default; by the time Settings reaches this package
// the effective values have already been resolved.
type Settings struct {
	Enabled      bool
	ReserveTokens int
}

// DefaultSettings mirrors spec §6's documented defaults.
func DefaultSettings() Settings {
	return Settings{Enabled: true, ReserveTokens: 16384}
}

// ShouldCompact implements spec §4.3's trigger policy: strict `>`, so
// equality never triggers. should_compact?(ctxTokens, contextWindow,
// settings) ≡ enabled ∧ ctxTokens > contextWindow − reserveTokens.
func ShouldCompact(ctxTokens, contextWindow int, settings Settings) bool {
	if !settings.Enabled {
		return false
	}
	return ctxTokens > contextWindow-settings.ReserveTokens
}

// MessageCountBudget configures the provider-specific message-count forcing
// rule (spec §4.3): when the live message count reaches TriggerCount (and
// compaction is enabled), compaction is forced regardless of tokens.
type MessageCountBudget struct {
	RequestLimit       int
	TriggerCount        int
	KeepRecentMessages   int
}

// ForcedByMessageCount reports whether messageCount has reached the
// configured TriggerCount, requiring compaction regardless of estimated
// tokens.
func ForcedByMessageCount(messageCount int, budget MessageCountBudget, enabled bool) bool {
	if !enabled || budget.TriggerCount <= 0 {
		return false
	}
	return messageCount >= budget.TriggerCount
}
