// Package evaluator implements the session evaluator (spec §4.4, C6):
// after a session ends or times out, collect scrollback + VCS diff +
// commit log, ask the oracle for a rubric-scored verdict, and persist
// the evaluation. Grounded on the teacher's scored-verdict persistence
// pattern in infrastructure/state, generalized to the oracle-rubric
// domain.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/orchestratord/orchestratord/internal/notify"
	"github.com/orchestratord/orchestratord/internal/oracle"
	"github.com/orchestratord/orchestratord/internal/session"
	"github.com/orchestratord/orchestratord/internal/statefile"
	"github.com/orchestratord/orchestratord/internal/vcsutil"
)

// PromptStyle classifies the original session prompt by a fixed
// keyword match (spec §4.4 step 3).
type PromptStyle string

const (
	StyleFix       PromptStyle = "fix"
	StyleImplement PromptStyle = "implement"
	StyleExplore   PromptStyle = "explore"
	StyleResume    PromptStyle = "resume"
	StyleCustom    PromptStyle = "custom"
)

// ClassifyPromptStyle applies spec §4.4's fixed keyword match.
func ClassifyPromptStyle(prompt string) PromptStyle {
	p := strings.ToLower(prompt)
	switch {
	case strings.Contains(p, "fix") || strings.Contains(p, "bug"):
		return StyleFix
	case strings.Contains(p, "implement") || strings.Contains(p, "add") || strings.Contains(p, "create"):
		return StyleImplement
	case strings.Contains(p, "explore") || strings.Contains(p, "read") || strings.Contains(p, "understand"):
		return StyleExplore
	case strings.Contains(p, "resume") || strings.Contains(p, "continue"):
		return StyleResume
	default:
		return StyleCustom
	}
}

// Evaluation is the full record persisted to the learner store (spec
// §3 Evaluation, §6 schema `session_evaluations`).
type Evaluation struct {
	SessionID        string
	Project          string
	StartedAt        time.Time
	StoppedAt        time.Time
	DurationMinutes  float64
	FilesChanged     int
	Insertions       int
	Deletions        int
	CommitCount      int
	LastCommitMsg    string
	Score            int
	Recommendation   string // continue|retry|escalate|complete
	Accomplishments  string
	Failures         string
	Reasoning        string
	PromptStyle      PromptStyle
}

// rubricResponse is what the oracle is asked to return (spec §4.4 step
// 2, "Request JSON decoding against the evaluation schema").
type rubricResponse struct {
	Score           int    `json:"score"`
	Recommendation  string `json:"recommendation"`
	Accomplishments string `json:"accomplishments"`
	Failures        string `json:"failures"`
	Reasoning       string `json:"reasoning"`
}

// Store is the evaluation persistence contract, implemented by
// internal/db's session_evaluations repository.
type Store interface {
	LatestForProject(ctx context.Context, project string) (Evaluation, bool, error)
	Save(ctx context.Context, ev Evaluation) error
	Count(ctx context.Context) (int, error)
}

// Evaluator wires the oracle gateway, VCS helper, statefile mirror, and
// DB store together.
type Evaluator struct {
	gateway  *oracle.Gateway
	store    Store
	statefile *statefile.Store
	notifier *notify.Manager

	patternThreshold int
}

// Config tunes the evaluator.
type Config struct {
	PatternThreshold int // default 50, spec §4.4 step 5
}

// NewEvaluator builds an Evaluator.
func NewEvaluator(gateway *oracle.Gateway, store Store, sf *statefile.Store, notifier *notify.Manager, cfg Config) *Evaluator {
	threshold := cfg.PatternThreshold
	if threshold <= 0 {
		threshold = 50
	}
	return &Evaluator{gateway: gateway, store: store, statefile: sf, notifier: notifier, patternThreshold: threshold}
}

// Input is everything the evaluator needs to score one ended session.
type Input struct {
	SessionID  string
	Project    string
	ProjectDir string
	Prompt     string
	StartedAt  time.Time
	HeadBefore string
	Scrollback string // last 100 lines of capture-pane
}

// Evaluate collects VCS stats, asks the oracle to score the session,
// and persists the result (spec §4.4). Guards against double-evaluation
// by the caller checking staleness of any existing record before
// invoking this (spec "older than startedAt").
func (e *Evaluator) Evaluate(ctx context.Context, in Input) (Evaluation, error) {
	git := vcsutil.New(in.ProjectDir)
	diff, err := git.DiffStatSince(ctx, in.HeadBefore)
	if err != nil {
		diff = vcsutil.DiffStat{}
	}
	commits, err := git.LogOnelineSince(ctx, in.HeadBefore)
	if err != nil {
		commits = nil
	}
	lastCommitMsg := ""
	if len(commits) > 0 {
		lastCommitMsg = commits[len(commits)-1]
	}

	prompt := buildRubricPrompt(in, diff, commits)
	res := e.gateway.Query(ctx, oracle.Provider, prompt, oracle.DefaultDecisionOptions(evaluationSchema))

	stoppedAt := time.Now()
	ev := Evaluation{
		SessionID:       in.SessionID,
		Project:         in.Project,
		StartedAt:       in.StartedAt,
		StoppedAt:       stoppedAt,
		DurationMinutes: stoppedAt.Sub(in.StartedAt).Minutes(),
		FilesChanged:    diff.FilesChanged,
		Insertions:      diff.Insertions,
		Deletions:       diff.Deletions,
		CommitCount:     len(commits),
		LastCommitMsg:   lastCommitMsg,
		PromptStyle:     ClassifyPromptStyle(in.Prompt),
	}

	if res.OK() {
		var rr rubricResponse
		if err := json.Unmarshal(res.JSON, &rr); err == nil {
			ev.Score = clampScore(rr.Score)
			ev.Recommendation = rr.Recommendation
			ev.Accomplishments = rr.Accomplishments
			ev.Failures = rr.Failures
			ev.Reasoning = rr.Reasoning
		}
	}
	if ev.Recommendation == "" {
		ev.Recommendation = "continue"
	}

	if err := e.store.Save(ctx, ev); err != nil {
		return ev, err
	}
	if e.statefile != nil {
		e.statefile.AppendEvaluation(statefile.Evaluation{
			SessionID:      ev.SessionID,
			Project:        ev.Project,
			Score:          ev.Score,
			Recommendation: ev.Recommendation,
			EvaluatedAt:    stoppedAt.UnixMilli(),
		})
	}

	if ev.Score > 0 && ev.Score <= 2 && e.notifier != nil {
		summary := ev.Reasoning
		if len(summary) > 200 {
			summary = summary[:200]
		}
		e.notifier.Send(ctx, notify.TierACTION, fmt.Sprintf("Low session score (%d/5) on %s: %s", ev.Score, ev.Project, summary))
	}

	return ev, nil
}

// ResumePrompt builds the C5 resume prologue using the most recent
// evaluation for project.
func (e *Evaluator) ResumePrompt(ctx context.Context, project, genericPrologue string) (string, error) {
	ev, ok, err := e.store.LatestForProject(ctx, project)
	if err != nil {
		return genericPrologue, err
	}
	if !ok {
		return genericPrologue, nil
	}
	sfEv := statefile.Evaluation{Score: ev.Score, Recommendation: ev.Recommendation}
	return session.ResumePrompt(&sfEv, genericPrologue), nil
}

// PatternCoverage reports how many evaluations have been recorded
// against the threshold needed before pattern aggregation is considered
// reliable (spec §4.4 step 5).
func (e *Evaluator) PatternCoverage(ctx context.Context) (ready bool, detail string, err error) {
	count, err := e.store.Count(ctx)
	if err != nil {
		return false, "", err
	}
	if count < e.patternThreshold {
		return false, fmt.Sprintf("insufficient data (%d/%d)", count, e.patternThreshold), nil
	}
	return true, "", nil
}

func clampScore(s int) int {
	if s < 1 {
		return 1
	}
	if s > 5 {
		return 5
	}
	return s
}

func buildRubricPrompt(in Input, diff vcsutil.DiffStat, commits []string) string {
	var b strings.Builder
	b.WriteString("Score this coding session from 1 (poor) to 5 (excellent).\n\n")
	fmt.Fprintf(&b, "Original prompt: %s\n\n", in.Prompt)
	fmt.Fprintf(&b, "Diff stats: %d files changed, +%d -%d\n", diff.FilesChanged, diff.Insertions, diff.Deletions)
	fmt.Fprintf(&b, "Commits since start: %d\n", len(commits))
	b.WriteString("Scrollback tail:\n")
	b.WriteString(in.Scrollback)
	b.WriteString("\n\nRespond with JSON: {score, recommendation (continue|retry|escalate|complete), accomplishments, failures, reasoning}.")
	return b.String()
}

const evaluationSchema = `{"type":"object","required":["score","recommendation"],"properties":{"score":{"type":"integer","minimum":1,"maximum":5},"recommendation":{"type":"string","enum":["continue","retry","escalate","complete"]},"accomplishments":{"type":"string"},"failures":{"type":"string"},"reasoning":{"type":"string"}}}`
