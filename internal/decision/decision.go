// Package decision implements the decision executor (spec §4.2, C4):
// two-phase evaluate/execute gating of oracle recommendations through
// an action allowlist, protected-project set, cooldowns, the autonomy
// matrix, and just-in-time preconditions. Grounded on the teacher's
// infrastructure/resilience layered-validation pattern, generalized
// from transaction admission to action admission.
package decision

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/orchestratord/orchestratord/internal/config"
	"github.com/orchestratord/orchestratord/internal/notify"
	"github.com/orchestratord/orchestratord/internal/projects"
	"github.com/orchestratord/orchestratord/internal/resource"
	"github.com/orchestratord/orchestratord/internal/session"
	"github.com/orchestratord/orchestratord/internal/statefile"
)

// Action is one of the five recommendation verbs the oracle may emit.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
	ActionNotify  Action = "notify"
	ActionSkip    Action = "skip"
)

var allowlist = map[Action]bool{
	ActionStart: true, ActionStop: true, ActionRestart: true, ActionNotify: true, ActionSkip: true,
}

// Recommendation is the oracle's proposed action before gating (spec §3
// Decision, fields prior to the post-evaluation ones).
type Recommendation struct {
	Project          string
	Action           Action
	Reason           string
	Priority         int
	Prompt           string
	Confidence       float64
	NotificationTier int
}

// Verdict is a Recommendation plus the evaluator's gating outcome
// (spec §3 Decision's post-evaluation fields).
type Verdict struct {
	Recommendation
	Validated       bool
	ObserveOnly     bool
	RejectionReason string
}

// AutonomyLevel is totally ordered observe < cautious < moderate < full
// (spec §3).
type AutonomyLevel string

const (
	LevelObserve  AutonomyLevel = "observe"
	LevelCautious AutonomyLevel = "cautious"
	LevelModerate AutonomyLevel = "moderate"
	LevelFull     AutonomyLevel = "full"
)

// autonomyMatrix implements spec §4.2's table. true = EXECUTE, false =
// SMS-only (observeOnly). `skip` always logs and never executes or
// notifies.
var autonomyMatrix = map[AutonomyLevel]map[Action]bool{
	LevelObserve:  {ActionStart: false, ActionStop: false, ActionRestart: false, ActionNotify: false},
	LevelCautious: {ActionStart: true, ActionStop: false, ActionRestart: false, ActionNotify: true},
	LevelModerate: {ActionStart: true, ActionStop: true, ActionRestart: true, ActionNotify: true},
	LevelFull:     {ActionStart: true, ActionStop: true, ActionRestart: true, ActionNotify: true},
}

// Executor evaluates and executes recommendations.
type Executor struct {
	mu sync.Mutex

	cfg        config.AI
	registry   *projects.Registry
	protected  map[string]bool
	sessionCtl *session.Controller
	notifier   *notify.Manager
	sf         *statefile.Store

	lastAction map[string]time.Time // project|action -> last success
	lastProject map[string]time.Time // project -> last success, any action
	errorRetryCounts map[string]int

	// Set by the caller on every scan tick so JIT preconditions can be
	// re-checked at execute time (spec §4.2 "close the stale-state
	// window from §9"). Live-session-count and no-existing-session
	// checks are re-verified inside session.Controller.Start itself;
	// this executor layers the resource and runtime-block checks on
	// top before ever calling it.
	resourceSnapshot func(ctx context.Context) (resource.Snapshot, error)
	runtimeBlocked   func(project string) bool
}

// NewExecutor builds an Executor.
func NewExecutor(cfg config.AI, registry *projects.Registry, sessionCtl *session.Controller, notifier *notify.Manager, sf *statefile.Store) *Executor {
	protected := make(map[string]bool, len(cfg.ProtectedProjects))
	for _, p := range cfg.ProtectedProjects {
		protected[p] = true
	}
	return &Executor{
		cfg:              cfg,
		registry:         registry,
		protected:        protected,
		sessionCtl:       sessionCtl,
		notifier:         notifier,
		sf:               sf,
		lastAction:       make(map[string]time.Time),
		lastProject:      make(map[string]time.Time),
		errorRetryCounts: make(map[string]int),
		resourceSnapshot: resource.Collect,
	}
}

// SetRuntimeBlocked wires a callback reporting whether project is on a
// runtime block list.
func (e *Executor) SetRuntimeBlocked(fn func(string) bool) { e.runtimeBlocked = fn }

// Evaluate applies spec §4.2's four ordered checks to recs, in the
// order the oracle returned them (no reordering, spec §5).
func (e *Executor) Evaluate(recs []Recommendation, autonomy AutonomyLevel) []Verdict {
	verdicts := make([]Verdict, 0, len(recs))
	for _, rec := range recs {
		verdicts = append(verdicts, e.evaluateOne(rec, autonomy))
	}
	return verdicts
}

func (e *Executor) evaluateOne(rec Recommendation, autonomy AutonomyLevel) Verdict {
	v := Verdict{Recommendation: rec}

	if !allowlist[rec.Action] {
		v.RejectionReason = "action not in allowlist"
		return v
	}
	if !e.registry.Known(rec.Project) {
		v.RejectionReason = "unknown project"
		return v
	}
	if e.protected[rec.Project] {
		v.RejectionReason = "protected project"
		return v
	}

	if e.cooldownHit(rec) {
		v.RejectionReason = "cooldown"
		return v
	}

	// Error-retry cap (spec §4.2 invariant 9): once a project's
	// persisted error-retry count exceeds maxErrorRetries, any further
	// restart recommendation is downgraded to notify regardless of
	// autonomy, until a human intervenes or a clean evaluation resets it.
	if rec.Action == ActionRestart && e.errorRetryCount(rec.Project) > e.maxErrorRetries() {
		v.ObserveOnly = true
		v.Validated = true
		return v
	}

	allowed, ok := autonomyMatrix[autonomy][rec.Action]
	if rec.Action == ActionSkip {
		v.Validated = true
		return v
	}
	if !ok || !allowed {
		v.ObserveOnly = true
		v.Validated = true
		return v
	}

	v.Validated = true
	return v
}

func (e *Executor) cooldownHit(rec Recommendation) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	sameAction := time.Duration(e.cfg.Cooldowns.SameActionMs) * time.Millisecond
	sameProject := time.Duration(e.cfg.Cooldowns.SameProjectMs) * time.Millisecond
	if sameAction <= 0 {
		sameAction = 5 * time.Minute
	}
	if sameProject <= 0 {
		sameProject = 10 * time.Minute
	}

	key := rec.Project + "|" + string(rec.Action)
	if t, ok := e.lastAction[key]; ok && time.Since(t) < sameAction {
		return true
	}
	if t, ok := e.lastProject[rec.Project]; ok && time.Since(t) < sameProject {
		return true
	}
	return false
}

func (e *Executor) recordAction(rec Recommendation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := rec.Project + "|" + string(rec.Action)
	now := time.Now()
	e.lastAction[key] = now
	e.lastProject[rec.Project] = now
}

// ExecutionResult is what Execute reports for one verdict.
type ExecutionResult struct {
	Action  Action
	Project string
	Result  string
	Err     error
}

// Execute dispatches an already-validated, non-observe-only verdict
// (spec §4.2 Execute(rec)). observeOnly verdicts and dropped
// recommendations never reach here — callers route those through the
// notification manager / logger instead.
func (e *Executor) Execute(ctx context.Context, v Verdict, autonomyLabel string) ExecutionResult {
	res := ExecutionResult{Action: v.Action, Project: v.Project}

	defer func() {
		result := res.Result
		if res.Err != nil {
			result = "error: " + res.Err.Error()
		}
		version := int64(0)
		if e.sf != nil {
			version, _ = e.sf.IncrementVersion()
			e.sf.AppendExecution(statefile.Execution{
				Action: string(res.Action), Project: res.Project, Result: result,
				Timestamp: time.Now().UnixMilli(), StateVersion: version, AutonomyLevel: autonomyLabel,
			})
		}
	}()

	switch v.Action {
	case ActionStart:
		res.Err = e.executeStart(ctx, v)
	case ActionStop:
		res.Err = e.executeStop(ctx, v)
	case ActionRestart:
		res.Err = e.executeRestart(ctx, v)
	case ActionNotify:
		res.Err = e.executeNotify(ctx, v)
	case ActionSkip:
		res.Result = "skipped: " + v.Reason
		return res
	}

	if res.Err == nil {
		res.Result = "ok"
		e.recordAction(v.Recommendation)
	}
	return res
}

func (e *Executor) executeStart(ctx context.Context, v Verdict) error {
	p := e.registry.Get(v.Project)
	if p == nil {
		return fmt.Errorf("unknown project %s", v.Project)
	}

	if e.runtimeBlocked != nil && e.runtimeBlocked(v.Project) {
		return fmt.Errorf("precondition failed: project runtime-blocked")
	}
	minFree := e.cfg.ResourceLimits.MinFreeMemoryMB
	if minFree <= 0 {
		minFree = 2048
	}
	if e.resourceSnapshot != nil {
		ok, _, err := resourceOK(ctx, e.resourceSnapshot, minFree)
		if err == nil && !ok {
			return fmt.Errorf("precondition failed: insufficient free memory")
		}
	}

	result := e.sessionCtl.Start(ctx, p.WorkDir, v.Project, v.Prompt)
	if !result.Success {
		return fmt.Errorf("%s", result.Message)
	}
	return nil
}

func resourceOK(ctx context.Context, fn func(context.Context) (resource.Snapshot, error), minMB int) (bool, resource.Snapshot, error) {
	snap, err := fn(ctx)
	if err != nil {
		return true, snap, err // fail open: don't block starts on a probe error
	}
	return snap.FreeMemoryMB >= int64(minMB), snap, nil
}

func (e *Executor) executeStop(ctx context.Context, v Verdict) error {
	p := e.registry.Get(v.Project)
	if p == nil {
		return fmt.Errorf("unknown project %s", v.Project)
	}
	e.sessionCtl.CapturePaneBestEffort(ctx, v.Project, 5)
	e.sessionCtl.Stop(ctx, p.WorkDir, v.Project)
	return nil
}

func (e *Executor) executeRestart(ctx context.Context, v Verdict) error {
	if err := e.executeStop(ctx, v); err != nil {
		return err
	}
	return e.executeStart(ctx, v)
}

func (e *Executor) executeNotify(ctx context.Context, v Verdict) error {
	tier := v.NotificationTier
	if tier <= 0 {
		tier = 2
	}
	return e.notifier.Send(ctx, notify.Tier(tier), fmt.Sprintf("%s: %s", v.Project, v.Reason))
}

// IncrementErrorRetry records a recovery-action execution for project
// and reports whether the error-retry cap has now been exceeded (spec
// §4.2 "Error-retry cap"). Backed by the persisted statefile counter
// when one is configured, so evaluateOne's pre-execution downgrade and
// this post-execution count agree, including across a daemon restart;
// falls back to an in-memory count otherwise (e.g. in tests built
// without a statefile).
func (e *Executor) IncrementErrorRetry(project string) (exceeded bool) {
	if e.sf != nil {
		n, err := e.sf.IncrementErrorRetry(project)
		if err != nil {
			return false
		}
		return n > e.maxErrorRetries()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errorRetryCounts[project]++
	return e.errorRetryCounts[project] > e.maxErrorRetries()
}

// errorRetryCount reads the current per-project error-retry count from
// whichever store backs it (see IncrementErrorRetry).
func (e *Executor) errorRetryCount(project string) int {
	if e.sf != nil {
		return e.sf.Snapshot().ErrorRetryCounts[project]
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errorRetryCounts[project]
}

func (e *Executor) maxErrorRetries() int {
	max := e.cfg.MaxErrorRetries
	if max <= 0 {
		max = 3
	}
	return max
}
