// Package config loads the orchestrator's JSON configuration document
// (spec §6), applying defaults for every field the spec names and an
// environment-variable overlay pass for values that shouldn't live in the
// checked-in file (paths, bridge scripts).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// QuietHours controls the window during which only tier-1 notifications
// are sent immediately.
type QuietHours struct {
	Start    string `json:"start"`    // "22:00"
	End      string `json:"end"`      // "07:00"
	Timezone string `json:"timezone"` // IANA zone name
}

// MorningDigest configures the 07:00 scheduled summary.
type MorningDigest struct {
	Cron string `json:"cron"`
}

// Cooldowns controls the decision executor's repeat-action suppression.
type Cooldowns struct {
	SameProjectMs int64 `json:"sameProjectMs"`
	SameActionMs  int64 `json:"sameActionMs"`
}

// ResourceLimits gates the JIT precondition checks before a start action.
type ResourceLimits struct {
	MinFreeMemoryMB     int `json:"minFreeMemoryMB"`
	MaxConcurrentThinks int `json:"maxConcurrentThinks"`
}

// Notifications controls the notification manager's budget and batching.
type Notifications struct {
	DailyBudget       int   `json:"dailyBudget"`
	BatchIntervalMs   int64 `json:"batchIntervalMs"`
	UrgentBypassQuiet bool  `json:"urgentBypassQuiet"`
}

// AI controls the oracle-driven think loop and decision executor.
type AI struct {
	Enabled            bool           `json:"enabled"`
	Model              string         `json:"model"`
	ThinkIntervalMs     int64          `json:"thinkIntervalMs"`
	MaxPromptLength    int            `json:"maxPromptLength"`
	AutonomyLevel      string         `json:"autonomyLevel"`
	ProtectedProjects  []string       `json:"protectedProjects"`
	Cooldowns          Cooldowns      `json:"cooldowns"`
	ResourceLimits     ResourceLimits `json:"resourceLimits"`
	MaxSessionDurationMs int64        `json:"maxSessionDurationMs"`
	MaxErrorRetries    int            `json:"maxErrorRetries"`
	StalenessDays      int            `json:"stalenessDays"`
	Notifications      Notifications  `json:"notifications"`
}

// RestartBudget caps auto-restarts per rolling hour.
type RestartBudget struct {
	MaxPerHour int `json:"maxPerHour"`
}

// ServiceCheck describes one monitored co-resident service.
type ServiceCheck struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"` // http|tcp|process|docker
	URL        string   `json:"url,omitempty"`
	Host       string   `json:"host,omitempty"`
	Port       int      `json:"port,omitempty"`
	LaunchLabel string  `json:"launchLabel,omitempty"`
	Containers []string `json:"containers,omitempty"`
	IntervalMs int64    `json:"intervalMs"`
	TimeoutMs  int64    `json:"timeoutMs"`
}

// Health controls the health monitor.
type Health struct {
	Enabled                    bool           `json:"enabled"`
	Services                   []ServiceCheck `json:"services"`
	ConsecutiveFailsBeforeAlert int           `json:"consecutiveFailsBeforeAlert"`
	RestartBudget              RestartBudget  `json:"restartBudget"`
	CorrelatedFailureThreshold int            `json:"correlatedFailureThreshold"`
}

// RevenueSource describes one external revenue reading endpoint.
type RevenueSource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Revenue controls periodic revenue snapshot collection.
type Revenue struct {
	Enabled                bool            `json:"enabled"`
	Sources                []RevenueSource `json:"sources"`
	CollectionIntervalScans int            `json:"collectionIntervalScans"`
}

// Trust controls autonomy-promotion bookkeeping.
type Trust struct {
	Enabled             bool   `json:"enabled"`
	PromotionCheckCron  string `json:"promotionCheckCron"`
}

// Reminders toggles the reminder engine.
type Reminders struct {
	Enabled bool `json:"enabled"`
}

// Config is the full JSON configuration document.
type Config struct {
	ProjectsDir           string        `json:"projectsDir"`
	Projects              []string      `json:"projects"`
	MaxConcurrentSessions int           `json:"maxConcurrentSessions"`
	PollIntervalMs        int64         `json:"pollIntervalMs"`
	ScanIntervalMs        int64         `json:"scanIntervalMs"`
	IdleThresholdMinutes  int           `json:"idleThresholdMinutes"`
	QuietHours            QuietHours    `json:"quietHours"`
	MorningDigest         MorningDigest `json:"morningDigest"`

	AI        AI        `json:"ai"`
	Health    Health    `json:"health"`
	Revenue   Revenue   `json:"revenue"`
	Trust     Trust     `json:"trust"`
	Reminders Reminders `json:"reminders"`

	// Env-overlay only fields: never expected in the checked-in JSON file.
	Env EnvOverlay `json:"-"`
}

// EnvOverlay holds values intentionally kept out of the JSON document.
type EnvOverlay struct {
	OrchestratorDBPath string `env:"ORCHESTRATOR_DB_PATH,default=.orchestrator/orchestrator.db"`
	OrchestratorStatePath string `env:"ORCHESTRATOR_STATE_PATH,default=.orchestrator/state.json"`
	OracleBinary       string `env:"ORACLE_BINARY,default=oracle"`
	ChatDBPath         string `env:"ORCHESTRATOR_CHAT_DB_PATH"`
	SMSBridgeScript    string `env:"ORCHESTRATOR_SMS_BRIDGE,default=scripts/send-sms.scpt"`
	SMSRecipient       string `env:"ORCHESTRATOR_SMS_RECIPIENT"`
	LogLevel           string `env:"LOG_LEVEL,default=info"`
	LogFormat          string `env:"LOG_FORMAT,default=json"`
	DiagnosticsAddr    string `env:"ORCHESTRATOR_DIAG_ADDR,default=127.0.0.1:9091"`
	RedisAddr          string `env:"ORCHESTRATOR_REDIS_ADDR"`
}

// Default returns a Config populated with every default spec §6 names.
func Default() Config {
	return Config{
		MaxConcurrentSessions: 5,
		PollIntervalMs:        5000,
		ScanIntervalMs:        60000,
		IdleThresholdMinutes:  30,
		QuietHours:            QuietHours{Start: "22:00", End: "07:00", Timezone: "Local"},
		MorningDigest:         MorningDigest{Cron: "0 7 * * *"},
		AI: AI{
			Enabled:          true,
			Model:            "default",
			ThinkIntervalMs:  300000,
			MaxPromptLength:  8000,
			AutonomyLevel:    "observe",
			Cooldowns:        Cooldowns{SameProjectMs: 600000, SameActionMs: 300000},
			ResourceLimits:   ResourceLimits{MinFreeMemoryMB: 2048, MaxConcurrentThinks: 1},
			MaxSessionDurationMs: 2700000,
			MaxErrorRetries:  3,
			StalenessDays:    3,
			Notifications:    Notifications{DailyBudget: 20, BatchIntervalMs: 14400000, UrgentBypassQuiet: true},
		},
		Health: Health{
			ConsecutiveFailsBeforeAlert: 3,
			RestartBudget:               RestartBudget{MaxPerHour: 2},
			CorrelatedFailureThreshold:  3,
		},
		Revenue:   Revenue{CollectionIntervalScans: 5},
		Trust:     Trust{PromotionCheckCron: "0 10 * * *"},
		Reminders: Reminders{Enabled: true},
	}
}

// Load reads the JSON document at path, merging it over Default(), then
// applies the environment overlay. A missing .env file at the working
// directory is tolerated (godotenv.Load failures are non-fatal — this
// mirrors local-only operator convenience, not a required input).
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	var overlay EnvOverlay
	if err := envdecode.Decode(&overlay); err != nil {
		return Config{}, fmt.Errorf("decode env overlay: %w", err)
	}
	cfg.Env = overlay

	return cfg, nil
}

// ThinkInterval returns AI.ThinkIntervalMs as a time.Duration, clamped to
// the [60s, 30min] bounds spec §9 specifies (the source accepted any
// positive integer; we apply the documented clamp here as the redesigned
// behavior).
func (c Config) ThinkInterval() time.Duration {
	return clamp(time.Duration(c.AI.ThinkIntervalMs)*time.Millisecond, 60*time.Second, 30*time.Minute)
}

func clamp(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
