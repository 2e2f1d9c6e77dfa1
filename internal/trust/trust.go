// Package trust implements the trust summary / promotion-recommendation
// bookkeeping named in spec §3 ("Trust summary", "Autonomy level") and
// surfaced by the daily trust-promotion check in spec §4.10's scheduled
// job table. Grounded on the teacher's infrastructure/state scored-
// aggregate pattern (same shape as the evaluator's dual-write: a DB
// table is the system of record, a cheap in-memory read serves the
// think-cycle context blob). The engine never self-promotes (spec §3,
// §9): Tracker only ever produces an advisory recommendation string.
package trust

import (
	"context"
	"fmt"

	"github.com/orchestratord/orchestratord/internal/db"
)

// Order is the totally-ordered autonomy level sequence (spec §3).
var Order = []string{"observe", "cautious", "moderate", "full"}

// Next returns the level one step above level, or "" if level is "full"
// or unrecognized.
func Next(level string) string {
	for i, l := range Order {
		if l == level && i+1 < len(Order) {
			return Order[i+1]
		}
	}
	return ""
}

// Thresholds gates how confident the tracker must be before it will
// even suggest a promotion. Kept conservative: observe -> cautious in
// particular is "never automated" per spec §3/§9 — PromotionRecommendation
// still computes a recommendation for it (so the operator is alerted to
// consider it) but callers must never auto-apply any level this package
// returns.
type Thresholds struct {
	MinSessions    int
	MinAvgScore    float64
	MinDaysAtLevel int
}

// DefaultThresholds mirrors the conservative defaults implied by spec
// §4.10's daily cron cadence: a level needs at least a week of runway
// and a consistently good track record before promotion is worth
// suggesting.
func DefaultThresholds() Thresholds {
	return Thresholds{MinSessions: 10, MinAvgScore: 4.0, MinDaysAtLevel: 7}
}

// Tracker wraps db.TrustRepo with the rolling-average and promotion-
// recommendation computations.
type Tracker struct {
	repo       *db.TrustRepo
	thresholds Thresholds
}

// NewTracker builds a Tracker.
func NewTracker(repo *db.TrustRepo, thresholds Thresholds) *Tracker {
	return &Tracker{repo: repo, thresholds: thresholds}
}

// RecordSession records one completed session's evaluation score against
// the current autonomy level (spec §3 "sessions launched, cumulative
// score").
func (t *Tracker) RecordSession(ctx context.Context, level string, score int) error {
	return t.repo.RecordSession(ctx, level, score)
}

// RecordErrorRecovery records that a recovery action (auto-restart or
// retry) succeeded at level.
func (t *Tracker) RecordErrorRecovery(ctx context.Context, level string) error {
	return t.repo.RecordErrorRecovery(ctx, level)
}

// RecordFalseAlert records an operator-flagged false alert at level,
// which the rolling average treats as a negative signal against
// promotion even though it isn't part of the session score sum.
func (t *Tracker) RecordFalseAlert(ctx context.Context, level string) error {
	return t.repo.RecordFalseAlert(ctx, level)
}

// Summary is the rolling view of one autonomy level's trust row, plus
// the derived average score spec §3 names ("rolling average evaluation
// score").
type Summary struct {
	db.TrustSummary
	AverageScore float64
}

// Get returns the current summary for level.
func (t *Tracker) Get(ctx context.Context, level string) (Summary, error) {
	row, err := t.repo.Get(ctx, level)
	if err != nil {
		return Summary{}, err
	}
	return toSummary(row), nil
}

// All returns every recorded level's summary, used by the morning
// digest and the daily promotion check.
func (t *Tracker) All(ctx context.Context) ([]Summary, error) {
	rows, err := t.repo.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(rows))
	for _, row := range rows {
		out = append(out, toSummary(row))
	}
	return out, nil
}

func toSummary(row db.TrustSummary) Summary {
	avg := 0.0
	if row.SessionsLaunched > 0 {
		avg = float64(row.ScoreSum) / float64(row.SessionsLaunched)
	}
	return Summary{TrustSummary: row, AverageScore: avg}
}

// TickDay bumps daysAtLevel for the currently active level. Called once
// by the daily trust-promotion cron job (spec §4.10), never per scan
// tick, so "days at level" tracks wall-clock days rather than ticks.
func (t *Tracker) TickDay(ctx context.Context, currentLevel string) error {
	return t.repo.IncrementDaysAtLevel(ctx, currentLevel)
}

// Recommendation is the advisory promotion suggestion the daily check
// surfaces via a tier-3 SUMMARY notification (spec §9 "Promotion
// recommendation ... never self-applied").
type Recommendation struct {
	CurrentLevel string
	NextLevel    string
	Eligible     bool
	Detail       string
}

// PromotionRecommendation computes whether currentLevel's trust summary
// clears the configured thresholds. It never returns an instruction to
// actually change the level — only a human-readable suggestion, per the
// spec's "never self-promotes" invariant. observe->cautious is included
// like any other step; the supervisor is responsible for treating it as
// advisory-only (the spec carries this forward as an open design
// decision rather than a silent auto-promotion, see DESIGN.md).
func (t *Tracker) PromotionRecommendation(ctx context.Context, currentLevel string) (Recommendation, error) {
	next := Next(currentLevel)
	rec := Recommendation{CurrentLevel: currentLevel, NextLevel: next}
	if next == "" {
		rec.Detail = fmt.Sprintf("%s is the highest autonomy level", currentLevel)
		return rec, nil
	}

	summary, err := t.Get(ctx, currentLevel)
	if err != nil {
		return rec, err
	}

	switch {
	case summary.SessionsLaunched < t.thresholds.MinSessions:
		rec.Detail = fmt.Sprintf("only %d/%d sessions launched at %s", summary.SessionsLaunched, t.thresholds.MinSessions, currentLevel)
	case summary.DaysAtLevel < t.thresholds.MinDaysAtLevel:
		rec.Detail = fmt.Sprintf("only %d/%d days at %s", summary.DaysAtLevel, t.thresholds.MinDaysAtLevel, currentLevel)
	case summary.AverageScore < t.thresholds.MinAvgScore:
		rec.Detail = fmt.Sprintf("average score %.1f below %.1f threshold at %s", summary.AverageScore, t.thresholds.MinAvgScore, currentLevel)
	case summary.FalseAlertCount > 0:
		rec.Detail = fmt.Sprintf("%d false alert(s) recorded at %s, review before promoting", summary.FalseAlertCount, currentLevel)
	default:
		rec.Eligible = true
		rec.Detail = fmt.Sprintf("%s qualifies for promotion to %s: %d sessions, avg score %.1f, %d days at level",
			currentLevel, next, summary.SessionsLaunched, summary.AverageScore, summary.DaysAtLevel)
	}
	return rec, nil
}
