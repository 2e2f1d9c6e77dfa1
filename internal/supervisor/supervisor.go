// Package supervisor implements C1, the main control loop (spec §4.10):
// the message-poll, scan, and think tickers plus the scheduled digest/
// promotion cron table, wired together from every other component.
// Grounded on the teacher's top-level scheduler (domain/automation's
// ticker-driven runner) generalized from on-chain trigger evaluation to
// operator-facing project orchestration; robfig/cron/v3 (present in the
// teacher's go.mod but otherwise dormant in this repo) drives the fixed-
// time jobs, the same way the teacher uses it for recurring on-chain
// trigger evaluation.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/orchestratord/orchestratord/internal/chatdb"
	"github.com/orchestratord/orchestratord/internal/config"
	"github.com/orchestratord/orchestratord/internal/contextassembler"
	"github.com/orchestratord/orchestratord/internal/db"
	"github.com/orchestratord/orchestratord/internal/decision"
	"github.com/orchestratord/orchestratord/internal/digest"
	"github.com/orchestratord/orchestratord/internal/evaluator"
	"github.com/orchestratord/orchestratord/internal/health"
	"github.com/orchestratord/orchestratord/internal/notify"
	"github.com/orchestratord/orchestratord/internal/obslog"
	"github.com/orchestratord/orchestratord/internal/oracle"
	"github.com/orchestratord/orchestratord/internal/projects"
	"github.com/orchestratord/orchestratord/internal/reminder"
	"github.com/orchestratord/orchestratord/internal/revenue"
	"github.com/orchestratord/orchestratord/internal/router"
	"github.com/orchestratord/orchestratord/internal/session"
	"github.com/orchestratord/orchestratord/internal/statefile"
	"github.com/orchestratord/orchestratord/internal/trust"
)

// thinkResponse is the oracle's JSON-schema-constrained think-cycle
// reply: a list of recommendations (spec §4.2) plus the oracle's own
// suggestion for how long to wait before thinking again (spec §9's
// oracle-adjustable think interval).
type thinkResponse struct {
	Recommendations []struct {
		Project          string  `json:"project"`
		Action           string  `json:"action"`
		Reason           string  `json:"reason"`
		Priority         int     `json:"priority"`
		Prompt           string  `json:"prompt"`
		Confidence       float64 `json:"confidence"`
		NotificationTier int     `json:"notificationTier"`
	} `json:"recommendations"`
	NextThinkInMs int64  `json:"nextThinkInMs"`
	Learnings     []string `json:"learnings"`
}

const thinkSchema = `{"type":"object","properties":{"recommendations":{"type":"array","items":{"type":"object","properties":{"project":{"type":"string"},"action":{"type":"string"},"reason":{"type":"string"},"priority":{"type":"integer"},"prompt":{"type":"string"},"confidence":{"type":"number"},"notificationTier":{"type":"integer"}},"required":["project","action","reason"]}},"nextThinkInMs":{"type":"integer"},"learnings":{"type":"array","items":{"type":"string"}}},"required":["recommendations"]}`

// setReminderPayload mirrors the REMINDER_JSON marker the router's NL
// path extracts (spec §4.9 step 4).
type setReminderPayload struct {
	Text   string `json:"text"`
	FireAt string `json:"fireAt"` // RFC3339
}

// Dependencies bundles every already-constructed component the
// supervisor orchestrates. All fields are required except Cache, which
// upstream callers pass through to the assembler directly rather than
// here.
type Dependencies struct {
	Config config.Config

	DB         *db.DB
	StateFile  *statefile.Store
	Registry   *projects.Registry
	Scanner    projects.Scanner
	Priorities projects.PriorityOverrides
	Mux        session.Multiplexer
	SessionCtl *session.Controller
	Gateway    *oracle.Gateway
	Assembler  *contextassembler.Assembler
	Executor   *decision.Executor
	Evaluator  *evaluator.Evaluator
	Health     *health.Monitor
	Notifier   *notify.Manager
	Reminders  *reminder.Engine
	Revenue    *revenue.Collector
	Trust      *trust.Tracker
	Digest     *digest.Renderer
	ChatReader *chatdb.Reader
	ChatSender *chatdb.Sender
	Log        *obslog.Logger
}

// Supervisor is C1: it owns every periodic loop and the command router,
// and implements both system.Service and diag.StateProvider.
type Supervisor struct {
	d Dependencies

	router *router.Router
	cron   *cron.Cron

	mu          sync.Mutex
	autonomy    string
	aiEnabled   bool
	paused      bool
	thinking    bool
	nextThinkIn time.Duration
	scanCount   int
	wasQuiet    bool
	lastHealth  health.CheckAllResult
	lastSnap    contextassembler.Snapshot

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Supervisor and its command router.
func New(d Dependencies) *Supervisor {
	s := &Supervisor{
		d:           d,
		autonomy:    d.Config.AI.AutonomyLevel,
		aiEnabled:   d.Config.AI.Enabled,
		nextThinkIn: d.Config.ThinkInterval(),
	}
	if snap := d.StateFile.Snapshot(); snap.RuntimeAutonomyLevel != "" {
		s.autonomy = snap.RuntimeAutonomyLevel
	}

	handlers := router.Handlers{
		Status:         s.handleStatus,
		Pause:          s.handlePause,
		Resume:         s.handleResume,
		AIOn:           s.handleAIOn,
		AIOff:          s.handleAIOff,
		AILevel:        s.handleAILevel,
		AIThink:        s.handleAIThink,
		AIExplain:      s.handleAIExplain,
		Priority:       s.handlePriority,
		Start:          s.handleStart,
		Stop:           s.handleStop,
		Restart:        s.handleRestart,
		Reply:          s.handleReply,
		Remind:         s.handleRemind,
		KnownProjects:  s.knownProjects,
		BuildNLContext: s.buildNLContext,
		SetReminder:    s.setReminderFromJSON,
	}
	s.router = router.NewRouter(handlers, d.Gateway, router.NewMemory())
	return s
}

func (s *Supervisor) Name() string { return "supervisor.Supervisor" }

// Start launches the message-poll, scan, and think tickers plus the
// scheduled cron jobs, all against an internal background context so
// Stop (not the caller's Start ctx) governs their lifetime.
func (s *Supervisor) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if err := s.primeLastRowID(ctx); err != nil {
		s.logWarn("prime chat-db watermark", err)
	}

	s.cron = cron.New()
	s.registerCronJobs()
	s.cron.Start()

	s.wg.Add(3)
	go s.messagePollLoop(runCtx)
	go s.scanLoop(runCtx)
	go s.thinkLoop(runCtx)

	return nil
}

// Stop cancels every loop and stops the cron scheduler. Live tmux
// sessions are intentionally left running (spec §4.10's "the daemon may
// restart without disturbing in-flight agent sessions").
func (s *Supervisor) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		cronCtx := s.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}

// --- diag.StateProvider ---

func (s *Supervisor) StateSnapshot() statefile.State { return s.d.StateFile.Snapshot() }

func (s *Supervisor) LastHealth() health.CheckAllResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHealth
}

func (s *Supervisor) TrustSummaries(ctx context.Context) ([]trust.Summary, error) {
	return s.d.Trust.All(ctx)
}

// --- message-poll loop (spec §4.10) ---

func (s *Supervisor) primeLastRowID(ctx context.Context) error {
	snap := s.d.StateFile.Snapshot()
	if snap.LastRowID > 0 || s.d.ChatReader == nil {
		return nil
	}
	id, err := s.d.ChatReader.GetLatestRowID(ctx)
	if err != nil {
		return err
	}
	return s.d.StateFile.SetLastRowID(id)
}

func (s *Supervisor) messagePollLoop(ctx context.Context) {
	defer s.wg.Done()
	interval := time.Duration(s.d.Config.PollIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Supervisor) pollOnce(ctx context.Context) {
	if s.d.ChatReader == nil {
		return
	}
	since := s.d.StateFile.Snapshot().LastRowID
	msgs, err := s.d.ChatReader.GetNewMessages(ctx, since)
	if err != nil {
		s.logWarn("poll chat-db", err)
		return
	}
	for _, m := range msgs {
		reply := s.router.Route(ctx, m.Text)
		if s.d.ChatSender != nil && reply != "" {
			if err := s.d.ChatSender.Send(ctx, reply); err != nil {
				s.logWarn("send reply", err)
			}
		}
		if err := s.d.StateFile.SetLastRowID(m.RowID); err != nil {
			s.logWarn("persist lastRowId", err)
		}
	}
}

// --- scan loop (spec §4.10) ---

func (s *Supervisor) scanLoop(ctx context.Context) {
	defer s.wg.Done()
	interval := time.Duration(s.d.Config.ScanIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scanOnce(ctx)
		}
	}
}

func (s *Supervisor) scanOnce(ctx context.Context) {
	s.d.Registry.Refresh(s.d.Scanner)
	s.proactiveScan(ctx)
	s.checkSessionTimeouts(ctx)
	s.checkHealth(ctx)
	s.checkReminders(ctx)

	s.mu.Lock()
	s.scanCount++
	count := s.scanCount
	wasQuiet := s.wasQuiet
	isQuiet := s.d.Notifier.QuietHoursNow()
	s.wasQuiet = isQuiet
	s.mu.Unlock()

	if wasQuiet && !isQuiet {
		if err := s.d.Notifier.FlushQuietQueue(ctx); err != nil {
			s.logWarn("flush quiet queue", err)
		}
	}

	every := s.d.Config.Revenue.CollectionIntervalScans
	if every <= 0 {
		every = 5
	}
	if s.d.Config.Revenue.Enabled && count%every == 0 {
		s.d.Revenue.CollectAll(ctx)
	}

	if err := s.d.StateFile.SetLastScan(time.Now()); err != nil {
		s.logWarn("persist lastScan", err)
	}
}

// proactiveScan surfaces newly-attention-needing projects outside the
// think cycle's cadence, so an operator doesn't wait a full think
// interval to hear about something the markdown scanner just flagged.
// It also consumes completed/error signals and detects a vanished tmux
// window for any project still holding a sidecar, feeding an ended
// session into the C6 evaluator and archiving the signal files once
// notified (spec §4.10 "signal detection, ended-session detection ->
// evaluations"; spec §2/§3 "[signals] consumed by the supervisor,
// archived after notification").
func (s *Supervisor) proactiveScan(ctx context.Context) {
	for _, p := range s.d.Registry.All() {
		if p.NeedsAttention {
			msg := fmt.Sprintf("%s needs attention: %s", p.Name, p.Reason)
			if err := s.d.Notifier.Send(ctx, notify.TierACTION, msg); err != nil {
				s.logWarn("proactive-scan notify", err)
			}
		}
		s.checkSessionEnded(ctx, p.Name, p.WorkDir)
	}
}

// checkSessionEnded looks at a project's sidecar for a completed/error
// signal, or for a live window that has simply vanished, and if the
// session has ended it evaluates it (C6), notifies, stops any residual
// window, and archives the signal files (spec §4.4 "invoked when a
// session ends (signal or absence detected)"). An error signal also
// attempts a gated recovery restart, consuming the error-retry cap
// (spec §4.2 "Error-retry cap").
func (s *Supervisor) checkSessionEnded(ctx context.Context, project, workDir string) {
	sc, hasSidecar, err := session.ReadSidecar(workDir)
	if err != nil || !hasSidecar {
		return
	}

	completed, hasCompleted, _ := session.ReadCompletedSignal(workDir)
	errSignal, hasError, _ := session.ReadErrorSignal(workDir)

	ended := hasCompleted || hasError
	if !ended {
		live, err := s.d.Mux.HasSession(ctx, session.WindowName(project))
		if err != nil {
			return
		}
		ended = !live
	}
	if !ended {
		return
	}

	switch {
	case hasCompleted:
		msg := fmt.Sprintf("%s session completed: %s", project, completed.Message)
		if err := s.d.Notifier.Send(ctx, notify.TierSUMMARY, msg); err != nil {
			s.logWarn("session-completed notify", err)
		}
	case hasError:
		msg := fmt.Sprintf("%s session errored: %s", project, errSignal.Message)
		if err := s.d.Notifier.Send(ctx, notify.TierACTION, msg); err != nil {
			s.logWarn("session-error notify", err)
		}
	}

	scrollback := s.d.SessionCtl.CapturePaneBestEffort(ctx, project, 100)
	if _, err := s.d.Evaluator.Evaluate(ctx, evaluator.Input{
		SessionID:  project,
		Project:    project,
		ProjectDir: workDir,
		Prompt:     sc.Prompt,
		StartedAt:  sc.StartedAt,
		HeadBefore: sc.HeadBefore,
		Scrollback: scrollback,
	}); err != nil {
		s.logWarn("evaluate ended session", err)
	}

	s.d.SessionCtl.Stop(ctx, workDir, project)

	if err := session.ArchiveSignals(workDir); err != nil {
		s.logWarn("archive signals", err)
	}

	if hasError {
		s.recoverFromErrorSignal(ctx, project)
	}
}

// recoverFromErrorSignal runs a single restart recommendation through
// the decision executor's gating and, if executed, counts it against
// the project's persisted error-retry cap regardless of outcome (spec
// §4.2 "errorRetryCounts is incremented each time a recovery action
// (restart on an error signal) is executed"; a project that stays above
// the cap gets its next restart recommendation downgraded to notify by
// evaluateOne).
func (s *Supervisor) recoverFromErrorSignal(ctx context.Context, project string) {
	autonomy := decision.AutonomyLevel(s.currentAutonomy())
	rec := decision.Recommendation{Project: project, Action: decision.ActionRestart, Reason: "recovering from error signal"}
	v := s.d.Executor.Evaluate([]decision.Recommendation{rec}, autonomy)[0]

	if err := s.d.StateFile.AppendDecision(statefile.Decision{
		Project: v.Project, Action: string(v.Action), Reason: v.Reason, Priority: v.Priority,
		Prompt: v.Prompt, Confidence: v.Confidence, NotificationTier: v.NotificationTier,
		Validated: v.Validated, ObserveOnly: v.ObserveOnly, RejectionReason: v.RejectionReason,
	}); err != nil {
		s.logWarn("persist decision", err)
	}

	switch {
	case !v.Validated:
		return
	case v.ObserveOnly:
		if err := s.d.Notifier.Send(ctx, notify.TierACTION, fmt.Sprintf("[recommend] %s %s: %s", v.Action, v.Project, v.Reason)); err != nil {
			s.logWarn("recovery recommend notify", err)
		}
		return
	}

	result := s.d.Executor.Execute(ctx, v, string(autonomy))
	if s.d.Executor.IncrementErrorRetry(project) && result.Err != nil {
		msg := fmt.Sprintf("%s repeatedly failing to recover from error signal: %v", project, result.Err)
		if err := s.d.Notifier.Send(ctx, notify.TierACTION, msg); err != nil {
			s.logWarn("recovery failure notify", err)
		}
	}
}

func (s *Supervisor) checkSessionTimeouts(ctx context.Context) {
	dirs := s.projectWorkDirs()
	timedOut, err := s.d.SessionCtl.TimedOut(ctx, dirs)
	if err != nil {
		s.logWarn("session timeout check", err)
		return
	}
	for _, project := range timedOut {
		s.evaluateAndStop(ctx, project, dirs[project])
	}
}

func (s *Supervisor) evaluateAndStop(ctx context.Context, project, workDir string) {
	scrollback := s.d.SessionCtl.CapturePaneBestEffort(ctx, project, 200)
	lastOutput := s.d.SessionCtl.CapturePaneBestEffort(ctx, project, 5)

	_, err := s.d.Evaluator.Evaluate(ctx, evaluator.Input{
		SessionID:  project,
		Project:    project,
		ProjectDir: workDir,
		StartedAt:  time.Now().Add(-time.Duration(s.d.Config.AI.MaxSessionDurationMs) * time.Millisecond),
		Scrollback: scrollback,
	})
	if err != nil {
		s.logWarn("evaluate timed-out session", err)
	}
	s.d.SessionCtl.Stop(ctx, workDir, project)

	minutes := time.Duration(s.d.Config.AI.MaxSessionDurationMs) * time.Millisecond / time.Minute
	msg := fmt.Sprintf("Session %s timed out after %dmin. Last output: %s", project, minutes, lastOutput)
	if err := s.d.Notifier.Send(ctx, notify.TierACTION, msg); err != nil {
		s.logWarn("session timeout notify", err)
	}
}

func (s *Supervisor) checkHealth(ctx context.Context) {
	result := s.d.Health.CheckAll(ctx, s.currentAutonomy())

	s.mu.Lock()
	s.lastHealth = result
	s.mu.Unlock()
	s.d.Assembler.SetLastHealthResult(result)

	threshold := s.d.Config.Health.ConsecutiveFailsBeforeAlert
	if threshold <= 0 {
		threshold = 3
	}
	for _, svc := range result.NewlyAlerting {
		msg := fmt.Sprintf("SERVICE DOWN: %s (%d consecutive failures)", svc, threshold)
		if err := s.d.Notifier.Send(ctx, notify.TierURGENT, msg); err != nil {
			s.logWarn("health alert notify", err)
		}
	}

	if result.CorrelatedFailure {
		msg := fmt.Sprintf("INFRASTRUCTURE EVENT: %d services down (%s)", len(result.DownServices), strings.Join(result.DownServices, ", "))
		if err := s.d.Notifier.Send(ctx, notify.TierURGENT, msg); err != nil {
			s.logWarn("correlated-failure notify", err)
		}
	}

	for _, svc := range result.RestartCandidates {
		s.restartAndVerify(ctx, svc)
	}
}

func (s *Supervisor) restartAndVerify(ctx context.Context, service string) {
	if err := s.d.Health.Restart(ctx, service); err != nil {
		s.logWarn(fmt.Sprintf("restart %s", service), err)
		return
	}
	if err := s.d.StateFile.AppendHealthRestart(statefile.HealthRestart{Service: service}); err != nil {
		s.logWarn("persist health restart", err)
	}

	time.AfterFunc(30*time.Second, func() {
		result, ok := s.d.Health.CheckOne(context.Background(), service)
		if ok && result.Status != health.StatusUp {
			s.d.Notifier.Send(context.Background(), notify.TierACTION, fmt.Sprintf("restart of %s did not recover the service", service))
		}
	})
}

func (s *Supervisor) checkReminders(ctx context.Context) {
	if !s.d.Config.Reminders.Enabled {
		return
	}
	if _, err := s.d.Reminders.CheckAndFire(ctx); err != nil {
		s.logWarn("reminder check", err)
	}
}

func (s *Supervisor) projectWorkDirs() map[string]string {
	out := make(map[string]string)
	for _, p := range s.d.Registry.All() {
		out[p.Name] = p.WorkDir
	}
	return out
}

// --- think loop (spec §4.10, §9) ---

func (s *Supervisor) thinkLoop(ctx context.Context) {
	defer s.wg.Done()
	s.mu.Lock()
	interval := s.nextThinkIn
	s.mu.Unlock()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.thinkOnce(ctx)
			s.mu.Lock()
			next := s.nextThinkIn
			s.mu.Unlock()
			timer.Reset(next)
		}
	}
}

func (s *Supervisor) thinkOnce(ctx context.Context) {
	s.mu.Lock()
	if s.thinking || s.paused || !s.aiEnabled {
		s.mu.Unlock()
		return
	}
	if s.d.Notifier.QuietHoursNow() {
		s.mu.Unlock()
		return
	}
	s.thinking = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.thinking = false
		s.mu.Unlock()
	}()

	snap, err := s.d.Assembler.AssembleWithResource(ctx, s.recentDecisions(), nil, s.lastLearnings(), s.revenueMap(ctx), s.currentAutonomy(), s.pendingReminderCount(ctx))
	if err != nil {
		s.logWarn("assemble context", err)
	}
	s.mu.Lock()
	s.lastSnap = snap
	s.mu.Unlock()

	payload, err := json.Marshal(snap)
	if err != nil {
		s.logWarn("marshal think context", err)
		return
	}
	prompt := fmt.Sprintf("Review this orchestrator context and return recommendations.\n%s", truncatePrompt(string(payload), s.d.Config.AI.MaxPromptLength))

	res := s.d.Gateway.Query(ctx, oracle.Provider, prompt, oracle.DefaultDecisionOptions(thinkSchema))
	if !res.OK() {
		s.logWarn("think cycle oracle query", res.Err)
		return
	}

	var parsed thinkResponse
	if err := json.Unmarshal(res.JSON, &parsed); err != nil {
		s.logWarn("parse think response", err)
		return
	}

	s.applyNextThinkIn(parsed.NextThinkInMs)
	s.dispatchRecommendations(ctx, parsed)
}

func (s *Supervisor) dispatchRecommendations(ctx context.Context, parsed thinkResponse) {
	autonomy := decision.AutonomyLevel(s.currentAutonomy())
	recs := make([]decision.Recommendation, 0, len(parsed.Recommendations))
	for _, r := range parsed.Recommendations {
		recs = append(recs, decision.Recommendation{
			Project:          r.Project,
			Action:           decision.Action(r.Action),
			Reason:           r.Reason,
			Priority:         r.Priority,
			Prompt:           r.Prompt,
			Confidence:       r.Confidence,
			NotificationTier: r.NotificationTier,
		})
	}

	verdicts := s.d.Executor.Evaluate(recs, autonomy)
	for _, v := range verdicts {
		if err := s.d.StateFile.AppendDecision(statefile.Decision{
			Project: v.Project, Action: string(v.Action), Reason: v.Reason, Priority: v.Priority,
			Prompt: v.Prompt, Confidence: v.Confidence, NotificationTier: v.NotificationTier,
			Validated: v.Validated, ObserveOnly: v.ObserveOnly, RejectionReason: v.RejectionReason,
		}); err != nil {
			s.logWarn("persist decision", err)
		}

		switch {
		case !v.Validated:
			continue
		case v.ObserveOnly:
			s.d.Notifier.Send(ctx, notify.TierACTION, fmt.Sprintf("[recommend] %s %s: %s", v.Action, v.Project, v.Reason))
		default:
			result := s.d.Executor.Execute(ctx, v, string(autonomy))
			if result.Err != nil {
				if s.d.Executor.IncrementErrorRetry(v.Project) {
					s.d.Notifier.Send(ctx, notify.TierACTION, fmt.Sprintf("%s repeatedly failing to %s: %v", v.Project, v.Action, result.Err))
				}
			}
		}
	}
}

func (s *Supervisor) applyNextThinkIn(ms int64) {
	if ms <= 0 {
		return
	}
	next := time.Duration(ms) * time.Millisecond
	min, max := 60*time.Second, 30*time.Minute
	if next < min {
		next = min
	}
	if next > max {
		next = max
	}
	s.mu.Lock()
	s.nextThinkIn = next
	s.mu.Unlock()
}

func truncatePrompt(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}

func (s *Supervisor) recentDecisions() []statefile.Decision {
	snap := s.d.StateFile.Snapshot()
	if len(snap.AIDecisionHistory) > 10 {
		return snap.AIDecisionHistory[len(snap.AIDecisionHistory)-10:]
	}
	return snap.AIDecisionHistory
}

func (s *Supervisor) lastLearnings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSnap.Learnings
}

func (s *Supervisor) revenueMap(ctx context.Context) map[string]float64 {
	out := map[string]float64{}
	for _, src := range s.d.Config.Revenue.Sources {
		_, latest, err := s.d.Revenue.WeeklySummary(ctx, src.Name)
		if err == nil {
			out[src.Name] = float64(latest)
		}
	}
	return out
}

func (s *Supervisor) pendingReminderCount(ctx context.Context) int {
	pending, err := s.d.Reminders.ListPending(ctx)
	if err != nil {
		return 0
	}
	return len(pending)
}

// --- scheduled cron jobs (spec §4.10) ---

func (s *Supervisor) registerCronJobs() {
	morningCron := s.d.Config.MorningDigest.Cron
	if morningCron == "" {
		morningCron = "0 7 * * *"
	}
	s.cron.AddFunc(morningCron, func() { s.runMorningDigest(context.Background()) })
	s.cron.AddFunc("45 21 * * *", func() { s.runWindDown(context.Background()) })
	s.cron.AddFunc("0 7 * * 0", func() { s.runWeeklyRevenue(context.Background()) })

	trustCron := s.d.Config.Trust.PromotionCheckCron
	if trustCron == "" {
		trustCron = "0 10 * * *"
	}
	s.cron.AddFunc(trustCron, func() { s.runTrustPromotionCheck(context.Background()) })
}

func (s *Supervisor) runMorningDigest(ctx context.Context) {
	snap, err := s.d.Assembler.AssembleWithResource(ctx, s.recentDecisions(), nil, nil, s.revenueMap(ctx), s.currentAutonomy(), s.pendingReminderCount(ctx))
	if err != nil {
		s.logWarn("assemble morning digest", err)
	}
	body, err := s.d.Digest.Morning(digest.MorningInput{Snapshot: snap})
	if err != nil {
		s.logWarn("render morning digest", err)
		return
	}
	s.sendDigest(ctx, body)
}

func (s *Supervisor) runWindDown(ctx context.Context) {
	active, _ := s.d.Mux.ListSessions(ctx, "orch-")
	snap := s.d.StateFile.Snapshot()
	decisionsToday := len(snap.AIDecisionHistory)
	lowScore := 0
	for _, ev := range snap.EvaluationHistory {
		if ev.Score > 0 && ev.Score < 3 {
			lowScore++
		}
	}
	body, err := s.d.Digest.WindDown(digest.WindDownInput{
		ActiveSessions: active,
		DecisionsToday: decisionsToday,
		LowScoreCount:  lowScore,
	})
	if err != nil {
		s.logWarn("render wind-down digest", err)
		return
	}
	s.sendDigest(ctx, body)
}

func (s *Supervisor) runWeeklyRevenue(ctx context.Context) {
	if !s.d.Config.Revenue.Enabled {
		return
	}
	sources := make([]digest.RevenueSourceSummary, 0, len(s.d.Config.Revenue.Sources))
	for _, src := range s.d.Config.Revenue.Sources {
		delta, latest, err := s.d.Revenue.WeeklySummary(ctx, src.Name)
		sources = append(sources, digest.RevenueSourceSummary{
			Source:      src.Name,
			Delta:       float64(delta),
			Latest:      float64(latest),
			Unreachable: err != nil,
		})
	}
	body, err := s.d.Digest.WeeklyRevenue(digest.WeeklyRevenueInput{Sources: sources})
	if err != nil {
		s.logWarn("render weekly revenue digest", err)
		return
	}
	s.sendDigest(ctx, body)
}

func (s *Supervisor) runTrustPromotionCheck(ctx context.Context) {
	if !s.d.Config.Trust.Enabled {
		return
	}
	level := s.currentAutonomy()
	if err := s.d.Trust.TickDay(ctx, level); err != nil {
		s.logWarn("trust tick day", err)
	}
	rec, err := s.d.Trust.PromotionRecommendation(ctx, level)
	if err != nil {
		s.logWarn("trust promotion recommendation", err)
		return
	}
	body, err := s.d.Digest.TrustPromotion(digest.TrustPromotionInput{Recommendation: rec})
	if err != nil {
		s.logWarn("render trust promotion digest", err)
		return
	}
	s.sendDigest(ctx, body)
}

func (s *Supervisor) sendDigest(ctx context.Context, body string) {
	if err := s.d.Notifier.Send(ctx, notify.TierSUMMARY, body); err != nil {
		s.logWarn("send digest", err)
		return
	}
	s.d.StateFile.SetLastDigest(time.Now())
}

// --- router.Handlers ---

func (s *Supervisor) handleStatus(ctx context.Context) string {
	all := s.d.Registry.All()
	live := 0
	attn := 0
	for _, p := range all {
		if s.liveSession(p.Name) {
			live++
		}
		if p.NeedsAttention {
			attn++
		}
	}
	pending := s.pendingReminderCount(ctx)
	return fmt.Sprintf("%d project(s), %d live session(s), %d need attention. AI: %s/%s. Pending reminders: %d.",
		len(all), live, attn, autonomyDisplay(s.aiEnabledNow()), s.currentAutonomy(), pending)
}

func (s *Supervisor) handlePause(ctx context.Context) string {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	return "paused: proactive scan and think cycle suspended (reminders and health checks continue)"
}

func (s *Supervisor) handleResume(ctx context.Context) string {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	return "resumed"
}

func (s *Supervisor) handleAIOn(ctx context.Context) string {
	s.mu.Lock()
	s.aiEnabled = true
	s.mu.Unlock()
	return "ai enabled"
}

func (s *Supervisor) handleAIOff(ctx context.Context) string {
	s.mu.Lock()
	s.aiEnabled = false
	s.mu.Unlock()
	return "ai disabled"
}

func (s *Supervisor) handleAILevel(ctx context.Context, level string) string {
	switch decision.AutonomyLevel(level) {
	case decision.LevelObserve, decision.LevelCautious, decision.LevelModerate, decision.LevelFull:
	default:
		return "usage: ai level <observe|cautious|moderate|full>"
	}
	s.mu.Lock()
	s.autonomy = level
	s.mu.Unlock()
	if err := s.d.StateFile.SetAutonomyLevel(level); err != nil {
		s.logWarn("persist autonomy level", err)
	}
	return "autonomy level set to " + level
}

func (s *Supervisor) handleAIThink(ctx context.Context) string {
	go s.thinkOnce(context.Background())
	return "triggered a think cycle"
}

func (s *Supervisor) handleAIExplain(ctx context.Context) string {
	snap := s.d.StateFile.Snapshot()
	if len(snap.AIDecisionHistory) == 0 {
		return "no decisions recorded yet"
	}
	last := snap.AIDecisionHistory[len(snap.AIDecisionHistory)-1]
	return fmt.Sprintf("%s %s: %s (validated=%v observeOnly=%v)", last.Action, last.Project, last.Reason, last.Validated, last.ObserveOnly)
}

func (s *Supervisor) handlePriority(ctx context.Context) string {
	all := s.d.Registry.All()
	var b strings.Builder
	b.WriteString("priority order: ")
	for i, p := range all {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
	}
	return b.String()
}

func (s *Supervisor) handleStart(ctx context.Context, project string) string {
	p := s.d.Registry.Get(project)
	if p == nil {
		return "unknown project: " + project
	}
	prompt, err := s.d.Evaluator.ResumePrompt(ctx, project, "Continue working on this project.")
	if err != nil {
		prompt = "Continue working on this project."
	}
	result := s.d.SessionCtl.Start(ctx, p.WorkDir, project, prompt)
	return result.Message
}

func (s *Supervisor) handleStop(ctx context.Context, project string) string {
	p := s.d.Registry.Get(project)
	if p == nil {
		return "unknown project: " + project
	}
	s.d.SessionCtl.Stop(ctx, p.WorkDir, project)
	return "stopped " + project
}

func (s *Supervisor) handleRestart(ctx context.Context, project string) string {
	s.handleStop(ctx, project)
	return s.handleStart(ctx, project)
}

func (s *Supervisor) handleReply(ctx context.Context, text string) string {
	if s.d.DB != nil {
		s.d.DB.Conversations.Append(ctx, "operator", text, time.Now())
	}
	return "noted: " + text
}

func (s *Supervisor) handleRemind(ctx context.Context, text string) string {
	d, rest := parseLeadingDuration(text)
	if rest == "" {
		return "usage: remind <duration e.g. 10m|2h> <text>"
	}
	id, err := s.d.Reminders.Set(ctx, rest, time.Now().Add(d))
	if err != nil {
		return "failed to set reminder: " + err.Error()
	}
	return fmt.Sprintf("reminder set (%s)", id)
}

func parseLeadingDuration(text string) (time.Duration, string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, ""
	}
	if d, err := time.ParseDuration(fields[0]); err == nil {
		return d, strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
	}
	return time.Hour, text
}

func (s *Supervisor) knownProjects() []string {
	all := s.d.Registry.All()
	names := make([]string, 0, len(all))
	for _, p := range all {
		names = append(names, p.Name)
	}
	return names
}

func (s *Supervisor) buildNLContext(ctx context.Context) string {
	s.mu.Lock()
	snap := s.lastSnap
	s.mu.Unlock()
	payload, err := json.Marshal(snap)
	if err != nil {
		return ""
	}
	return string(payload)
}

func (s *Supervisor) setReminderFromJSON(ctx context.Context, reminderJSON string) error {
	var payload setReminderPayload
	if err := json.Unmarshal([]byte(reminderJSON), &payload); err != nil {
		return err
	}
	fireAt, err := time.Parse(time.RFC3339, payload.FireAt)
	if err != nil {
		return err
	}
	_, err = s.d.Reminders.Set(ctx, payload.Text, fireAt)
	return err
}

// --- helpers ---

func (s *Supervisor) liveSession(project string) bool {
	ok, err := s.d.Mux.HasSession(context.Background(), session.WindowName(project))
	return err == nil && ok
}

func (s *Supervisor) currentAutonomy() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autonomy
}

func (s *Supervisor) aiEnabledNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aiEnabled
}

func autonomyDisplay(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}

func (s *Supervisor) logWarn(msg string, err error) {
	if s.d.Log == nil || err == nil {
		return
	}
	s.d.Log.WithError(err).Warn(msg)
}
