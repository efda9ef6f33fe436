package agentloop

import (
	"context"
	"errors"

	"github.com/haasonsaas/agentcore/internal/abortsignal"
	"github.com/haasonsaas/agentcore/internal/compaction"
	"github.com/haasonsaas/agentcore/pkg/session"
)

// maybeCompact runs CompactionEngine synchronously if required (spec §4.1
// step 2), forking the live branch onto a new root: the journal's
// parent links are immutable (spec §3), so "replacing a prefix" is
// implemented as journal.ResetHead(nil) followed by re-appending the
// summary entry and the kept tail as fresh entries under it — the same
// fork-on-reset_to mechanism §4.1 already uses for reset_to, generalized
// to compaction's internal use. The original entries remain reachable by
// their old ids for inspection/replay (spec §4.3 "Application").
func (l *Loop) maybeCompact(ctx context.Context, reqCtx RequestContext, signal *abortsignal.Signal) (*CompactionInfo, error) {
	ctxTokens := compaction.EstimateRequestContextTokens(reqCtx.Messages, reqCtx.SystemPrompt, compactionToolSchemas(reqCtx.Tools))

	forced := compaction.ForcedByMessageCount(countMessages(reqCtx.Messages), l.cfg.MessageBudget, l.cfg.Compaction.Enabled)
	triggered := compaction.ShouldCompact(ctxTokens, l.cfg.ContextWindow, l.cfg.Compaction)
	if !triggered && !forced {
		return nil, nil
	}

	branch := l.journal.CurrentBranch()
	cutID, err := compaction.FindCutPoint(branch, l.cfg.KeepRecentTokens, compaction.Options{
		Force:              forced && !triggered,
		KeepRecentMessages: l.cfg.MessageBudget.KeepRecentMessages,
	})
	if err != nil {
		if errors.Is(err, compaction.ErrCannotCompact) {
			return nil, ErrCannotCompact
		}
		return nil, err
	}

	prefix := branch
	for i, e := range branch {
		if e.ID == cutID {
			prefix = branch[:i+1]
			break
		}
	}
	summaryText, err := compaction.GenerateSummary(ctx, prefix, l.summarize, compaction.SummaryOptions{Signal: signal})
	if err != nil {
		return nil, err
	}

	summaryEntry, kept, err := compaction.Apply(branch, cutID, summaryText)
	if err != nil {
		return nil, err
	}

	if err := l.journal.ResetHead(nil); err != nil {
		return nil, err
	}
	if _, err := l.journal.AppendToHead(summaryEntry); err != nil {
		return nil, err
	}
	for _, e := range kept {
		if _, err := l.journal.AppendToHead(*e); err != nil {
			return nil, err
		}
	}

	reason := "token_budget"
	if forced && !triggered {
		reason = "message_count"
	}
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.RecordCompactionTrigger(reason)
	}

	info := &CompactionInfo{TokensBefore: ctxTokens, CutEntryID: cutID}
	afterBranch := l.journal.CurrentBranch()
	info.TokensAfter = compaction.EstimateEntriesTokens(afterBranch)
	l.cfg.Logger.Info("compaction applied", "reason", reason, "tokens_before", info.TokensBefore, "tokens_after", info.TokensAfter, "cut_entry_id", cutID)
	return info, nil
}

func countMessages(entries []*session.Entry) int {
	n := 0
	for _, e := range entries {
		if e.Type == session.EntryMessage {
			n++
		}
	}
	return n
}
