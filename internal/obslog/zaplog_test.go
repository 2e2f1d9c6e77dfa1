package obslog

import "testing"

func TestNewZapBuildsUsableLogger(t *testing.T) {
	l := NewZap("breaker", Config{Level: "warn", Format: "json"})
	if l == nil {
		t.Fatal("NewZap returned nil")
	}
	// Should not panic regardless of level/format; also exercises the
	// "component" field attachment.
	l.Infow("breaker transitioned", "dependency", "github", "state", "open")
}

func TestNewZapTextFormat(t *testing.T) {
	l := NewZap("health", Config{Level: "info", Format: "text"})
	if l == nil {
		t.Fatal("NewZap returned nil")
	}
	l.Debugw("check skipped", "service", "mlx-api")
}

func TestNewZapUnknownLevelFallsBackGracefully(t *testing.T) {
	l := NewZap("breaker", Config{Level: "not-a-real-level", Format: "json"})
	if l == nil {
		t.Fatal("NewZap returned nil even with a garbage level string")
	}
}
