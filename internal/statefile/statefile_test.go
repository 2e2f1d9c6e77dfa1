package statefile

import (
	"path/filepath"
	"testing"
)

func TestStateVersionMonotonic(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "state.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var last int64
	for i := 0; i < 5; i++ {
		v, err := s.IncrementVersion()
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if v <= last {
			t.Fatalf("stateVersion did not increase: got %d after %d", v, last)
		}
		last = v
	}
}

func TestExecutionHistoryCap(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "state.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	for i := 0; i < executionHistoryCap+10; i++ {
		if err := s.AppendExecution(Execution{Action: "skip", Project: "p"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	snap := s.Snapshot()
	if len(snap.ExecutionHistory) != executionHistoryCap {
		t.Fatalf("expected %d entries, got %d", executionHistoryCap, len(snap.ExecutionHistory))
	}
}

func TestReopenPersistsAcrossProcesses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s1.IncrementVersion(); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := s1.SetAutonomyLevel("cautious"); err != nil {
		t.Fatalf("set autonomy: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	snap := s2.Snapshot()
	if snap.StateVersion != 1 {
		t.Fatalf("expected stateVersion 1 after reopen, got %d", snap.StateVersion)
	}
	if snap.RuntimeAutonomyLevel != "cautious" {
		t.Fatalf("expected persisted autonomy level, got %q", snap.RuntimeAutonomyLevel)
	}
}
