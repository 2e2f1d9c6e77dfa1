package supervisor

import (
	"testing"
	"time"
)

func TestTruncatePromptLeavesShortStringsAlone(t *testing.T) {
	if got := truncatePrompt("short", 100); got != "short" {
		t.Errorf("truncatePrompt = %q, want unchanged", got)
	}
}

func TestTruncatePromptCutsAtMax(t *testing.T) {
	if got := truncatePrompt("abcdefgh", 4); got != "abcd" {
		t.Errorf("truncatePrompt = %q, want abcd", got)
	}
}

func TestTruncatePromptZeroOrNegativeMaxIsNoop(t *testing.T) {
	if got := truncatePrompt("abcdefgh", 0); got != "abcdefgh" {
		t.Errorf("truncatePrompt with max=0 = %q, want unchanged", got)
	}
	if got := truncatePrompt("abcdefgh", -1); got != "abcdefgh" {
		t.Errorf("truncatePrompt with max=-1 = %q, want unchanged", got)
	}
}

func TestParseLeadingDurationWithExplicitDuration(t *testing.T) {
	d, rest := parseLeadingDuration("10m check certs are valid")
	if d != 10*time.Minute {
		t.Errorf("duration = %v, want 10m", d)
	}
	if rest != "check certs are valid" {
		t.Errorf("rest = %q", rest)
	}
}

func TestParseLeadingDurationWithoutDurationDefaultsToOneHour(t *testing.T) {
	d, rest := parseLeadingDuration("check certs tomorrow")
	if d != time.Hour {
		t.Errorf("duration = %v, want 1h default", d)
	}
	if rest != "check certs tomorrow" {
		t.Errorf("rest = %q, want the original text preserved", rest)
	}
}

func TestParseLeadingDurationEmptyInput(t *testing.T) {
	d, rest := parseLeadingDuration("")
	if d != 0 || rest != "" {
		t.Errorf("parseLeadingDuration(\"\") = (%v, %q), want (0, \"\")", d, rest)
	}
}

func TestAutonomyDisplay(t *testing.T) {
	if autonomyDisplay(true) != "on" {
		t.Error("autonomyDisplay(true) should be \"on\"")
	}
	if autonomyDisplay(false) != "off" {
		t.Error("autonomyDisplay(false) should be \"off\"")
	}
}

func TestApplyNextThinkInClampsToSpecBounds(t *testing.T) {
	s := &Supervisor{nextThinkIn: 5 * time.Minute}

	s.applyNextThinkIn(1000) // 1s, below the 60s floor
	if got := s.nextThinkIn; got != 60*time.Second {
		t.Errorf("applyNextThinkIn(1000ms) = %v, want clamped to 60s", got)
	}

	s.applyNextThinkIn(3_600_000) // 1h, above the 30min ceiling
	if got := s.nextThinkIn; got != 30*time.Minute {
		t.Errorf("applyNextThinkIn(3600000ms) = %v, want clamped to 30m", got)
	}

	s.applyNextThinkIn(10 * 60 * 1000) // 10min, within bounds
	if got := s.nextThinkIn; got != 10*time.Minute {
		t.Errorf("applyNextThinkIn(600000ms) = %v, want 10m unchanged", got)
	}
}

func TestApplyNextThinkInIgnoresNonPositive(t *testing.T) {
	s := &Supervisor{nextThinkIn: 5 * time.Minute}
	s.applyNextThinkIn(0)
	if s.nextThinkIn != 5*time.Minute {
		t.Errorf("applyNextThinkIn(0) should be a no-op, got %v", s.nextThinkIn)
	}
	s.applyNextThinkIn(-100)
	if s.nextThinkIn != 5*time.Minute {
		t.Errorf("applyNextThinkIn(-100) should be a no-op, got %v", s.nextThinkIn)
	}
}
