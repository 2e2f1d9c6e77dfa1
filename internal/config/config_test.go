package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	if cfg.MaxConcurrentSessions != 5 {
		t.Errorf("MaxConcurrentSessions = %d, want 5", cfg.MaxConcurrentSessions)
	}
	if cfg.AI.AutonomyLevel != "observe" {
		t.Errorf("AutonomyLevel = %q, want observe", cfg.AI.AutonomyLevel)
	}
	if cfg.AI.MaxErrorRetries != 3 {
		t.Errorf("MaxErrorRetries = %d, want 3", cfg.AI.MaxErrorRetries)
	}
	if cfg.Health.RestartBudget.MaxPerHour != 2 {
		t.Errorf("RestartBudget.MaxPerHour = %d, want 2", cfg.Health.RestartBudget.MaxPerHour)
	}
	if cfg.Health.CorrelatedFailureThreshold != 3 {
		t.Errorf("CorrelatedFailureThreshold = %d, want 3", cfg.Health.CorrelatedFailureThreshold)
	}
	if !cfg.AI.Notifications.UrgentBypassQuiet {
		t.Error("UrgentBypassQuiet should default true")
	}
}

func TestLoadMergesOverFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"projectsDir": "/home/op/projects",
		"projects": ["alpha", "beta"],
		"ai": {"autonomyLevel": "moderate", "maxErrorRetries": 7}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ProjectsDir != "/home/op/projects" {
		t.Errorf("ProjectsDir = %q", cfg.ProjectsDir)
	}
	if len(cfg.Projects) != 2 {
		t.Errorf("Projects = %v", cfg.Projects)
	}
	if cfg.AI.AutonomyLevel != "moderate" {
		t.Errorf("AutonomyLevel = %q, want moderate", cfg.AI.AutonomyLevel)
	}
	if cfg.AI.MaxErrorRetries != 7 {
		t.Errorf("MaxErrorRetries = %d, want 7 (from file)", cfg.AI.MaxErrorRetries)
	}
	// Fields absent from the file keep their Default() value.
	if cfg.MaxConcurrentSessions != 5 {
		t.Errorf("MaxConcurrentSessions = %d, want default 5", cfg.MaxConcurrentSessions)
	}
	if cfg.Health.RestartBudget.MaxPerHour != 2 {
		t.Errorf("RestartBudget.MaxPerHour = %d, want default 2", cfg.Health.RestartBudget.MaxPerHour)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("expected an error for a missing config path")
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg.MaxConcurrentSessions != Default().MaxConcurrentSessions {
		t.Error("Load(\"\") should equal Default()")
	}
}

func TestThinkIntervalClamps(t *testing.T) {
	cases := []struct {
		ms   int64
		want time.Duration
	}{
		{1000, 60 * time.Second},               // below floor, clamps up
		{300000, 5 * time.Minute},               // within bounds, unchanged
		{3600000, 30 * time.Minute},             // above ceiling, clamps down
	}
	for _, c := range cases {
		cfg := Config{AI: AI{ThinkIntervalMs: c.ms}}
		if got := cfg.ThinkInterval(); got != c.want {
			t.Errorf("ThinkInterval(%dms) = %v, want %v", c.ms, got, c.want)
		}
	}
}
