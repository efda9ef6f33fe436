package compaction

import "testing"

func TestShouldCompactDisabled(t *testing.T) {
	s := Settings{Enabled: false, ReserveTokens: 100}
	if ShouldCompact(1_000_000, 1000, s) {
		t.Fatal("disabled settings must never trigger compaction")
	}
}

func TestShouldCompactBoundary(t *testing.T) {
	window := 10000
	reserve := 500
	s := Settings{Enabled: true, ReserveTokens: reserve}

	if ShouldCompact(window-reserve, window, s) {
		t.Fatal("equality must not trigger (strict >)")
	}
	if !ShouldCompact(window-reserve+1, window, s) {
		t.Fatal("one token over the reserve boundary must trigger")
	}
}

func TestForcedByMessageCount(t *testing.T) {
	budget := MessageCountBudget{TriggerCount: 20}
	if ForcedByMessageCount(19, budget, true) {
		t.Fatal("must not force below trigger count")
	}
	if !ForcedByMessageCount(20, budget, true) {
		t.Fatal("must force at trigger count")
	}
	if ForcedByMessageCount(20, budget, false) {
		t.Fatal("must not force when compaction is disabled")
	}
}
