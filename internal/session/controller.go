package session

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/orchestratord/orchestratord/internal/obslog"
	"github.com/orchestratord/orchestratord/internal/statefile"
	"github.com/orchestratord/orchestratord/internal/vcsutil"
)

// StartResult is the Start contract's return value (spec §4.3: "given
// (project, prompt?) -> {success, message}").
type StartResult struct {
	Success bool
	Message string
}

// ClaudeMDPreamble is injected into a project directory's CLAUDE.md
// before a new session starts (spec §4.2 "inject the orchestrator's
// CLAUDE.md preamble"). Kept as a package var so deployments can
// override it.
var ClaudeMDPreamble = "# Orchestrator-managed session\n\nThis project is being driven by an autonomous orchestrator. Work from the prompt below; write STATUS.md updates as you go.\n"

// Config tunes the controller's limits (spec §4.3).
type Config struct {
	MaxConcurrentSessions int
	MaxSessionDuration     time.Duration
	InitDelay              time.Duration // wait after creating the window, default 8s
	StopGrace              time.Duration // wait after Ctrl-C before kill, default 2s
	AgentCommand           string        // the agent CLI invocation run inside the window
	MCPConfigPath          string        // optional, passed through if non-empty
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentSessions <= 0 {
		c.MaxConcurrentSessions = 5
	}
	if c.MaxSessionDuration <= 0 {
		c.MaxSessionDuration = 45 * time.Minute
	}
	if c.InitDelay <= 0 {
		c.InitDelay = 8 * time.Second
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 2 * time.Second
	}
	if c.AgentCommand == "" {
		c.AgentCommand = "agent"
	}
	return c
}

// Controller implements the session start/stop/resume/timeout contract
// (spec §4.3, C5), owning the multiplexer and sidecar files.
type Controller struct {
	cfg Config
	mux Multiplexer
	log *obslog.Logger
}

// NewController builds a Controller.
func NewController(cfg Config, mux Multiplexer, log *obslog.Logger) *Controller {
	return &Controller{cfg: cfg.withDefaults(), mux: mux, log: log}
}

// Start implements the Start contract.
func (c *Controller) Start(ctx context.Context, projectWorkDir, project, prompt string) StartResult {
	if err := os.MkdirAll(projectWorkDir, 0o755); err != nil {
		return StartResult{Message: fmt.Sprintf("project directory unavailable: %v", err)}
	}

	name := WindowName(project)

	has, err := c.mux.HasSession(ctx, name)
	if err != nil {
		return StartResult{Message: fmt.Sprintf("checking existing session: %v", err)}
	}
	if has {
		return StartResult{Message: "a session is already running for this project"}
	}

	live, err := c.mux.ListSessions(ctx, "orch-")
	if err != nil {
		return StartResult{Message: fmt.Sprintf("listing sessions: %v", err)}
	}
	if len(live) >= c.cfg.MaxConcurrentSessions {
		return StartResult{Message: "maximum concurrent sessions reached"}
	}

	if err := injectPreamble(projectWorkDir); err != nil {
		return StartResult{Message: fmt.Sprintf("injecting CLAUDE.md: %v", err)}
	}

	git := vcsutil.New(projectWorkDir)
	headBefore, _ := git.Head(ctx)

	cmdline := c.cfg.AgentCommand
	if c.cfg.MCPConfigPath != "" {
		cmdline = fmt.Sprintf("%s --mcp-config %s", cmdline, c.cfg.MCPConfigPath)
	}

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.mux.NewDetachedSession(startCtx, name, projectWorkDir, cmdline); err != nil {
		return StartResult{Message: fmt.Sprintf("creating session window: %v", err)}
	}

	select {
	case <-time.After(c.cfg.InitDelay):
	case <-ctx.Done():
		return StartResult{Message: "start canceled during agent initialization"}
	}

	if err := c.mux.SendKeys(ctx, name, prompt); err != nil {
		return StartResult{Message: fmt.Sprintf("sending prompt: %v", err)}
	}

	if err := ArchiveSignals(projectWorkDir); err != nil {
		c.logWarn("archiving stale signals", err)
	}

	sc := Sidecar{
		Project:     project,
		SessionName: name,
		StartedAt:   time.Now(),
		Prompt:      prompt,
		HeadBefore:  headBefore,
	}
	if err := WriteSidecar(projectWorkDir, sc); err != nil {
		return StartResult{Message: fmt.Sprintf("persisting sidecar: %v", err)}
	}

	return StartResult{Success: true, Message: "session started"}
}

// Stop implements the Stop contract: Ctrl-C, wait, kill, update
// sidecar. Never errors on an absent session.
func (c *Controller) Stop(ctx context.Context, projectWorkDir, project string) {
	name := WindowName(project)

	has, err := c.mux.HasSession(ctx, name)
	if err != nil || !has {
		return
	}

	_ = c.mux.SendKeys(ctx, name, "\x03") // Ctrl-C

	select {
	case <-time.After(c.cfg.StopGrace):
	case <-ctx.Done():
	}

	if err := c.mux.Kill(ctx, name); err != nil {
		c.logWarn("killing session window", err)
	}

	if err := ClearSidecar(projectWorkDir); err != nil {
		c.logWarn("clearing sidecar", err)
	}
}

// CapturePaneBestEffort returns the last n lines of a live session's
// pane, swallowing errors (spec §4.2 stop: "best-effort capture-pane").
func (c *Controller) CapturePaneBestEffort(ctx context.Context, project string, n int) string {
	out, err := c.mux.CapturePane(ctx, WindowName(project), n)
	if err != nil {
		return ""
	}
	return out
}

// ResumePrompt builds the resume prompt prepended with a compact
// summary of the most recent evaluation (spec §4.3 Resume prompt
// construction).
func ResumePrompt(lastEval *statefile.Evaluation, genericPrologue string) string {
	if lastEval == nil {
		return genericPrologue
	}
	continueFrom := lastEval.Recommendation
	if continueFrom == "" {
		continueFrom = "re-assess current state and proceed"
	}
	summary := fmt.Sprintf(
		"Last session scored %d/5. Continue from: %s.\n\n%s",
		lastEval.Score, continueFrom, genericPrologue,
	)
	return summary
}

// ClassifyTimedOutSessions scans live windows against their sidecar
// StartedAt and returns projects whose session has exceeded maxDuration
// (spec §4.3 Timeout enforcement).
func (c *Controller) TimedOut(ctx context.Context, projectWorkDirs map[string]string) ([]string, error) {
	var timedOut []string
	now := time.Now()
	for project, dir := range projectWorkDirs {
		sc, ok, err := ReadSidecar(dir)
		if err != nil || !ok {
			continue
		}
		if now.Sub(sc.StartedAt) > c.cfg.MaxSessionDuration {
			timedOut = append(timedOut, project)
		}
	}
	return timedOut, nil
}

func injectPreamble(projectWorkDir string) error {
	path := projectWorkDir + "/CLAUDE.md"
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if strings.Contains(string(existing), strings.TrimSpace(ClaudeMDPreamble)) {
		return nil
	}
	combined := ClaudeMDPreamble + "\n" + string(existing)
	return os.WriteFile(path, []byte(combined), 0o644)
}

func (c *Controller) logWarn(msg string, err error) {
	if c.log == nil {
		return
	}
	c.log.WithError(err).Warn(msg)
}
