package db

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// TrustSummary is the per-autonomy-level row the promotion policy reads
// from (spec §3 "Trust summary" — advisory only, the engine never
// self-promotes).
type TrustSummary struct {
	Level              string
	SessionsLaunched   int
	ScoreSum           int
	ErrorRecoveryCount int
	FalseAlertCount    int
	DaysAtLevel        int
}

// TrustRepo implements the trust persistence contract against
// trust_summary.
type TrustRepo struct {
	db *sqlx.DB
}

// NewTrustRepoForTest builds a TrustRepo around an arbitrary *sqlx.DB,
// for sqlmock-backed tests in internal/trust that need a repo without
// going through Open's migration bootstrap.
func NewTrustRepoForTest(conn *sqlx.DB) *TrustRepo {
	return &TrustRepo{db: conn}
}

type trustRow struct {
	Level              string `db:"level"`
	SessionsLaunched   int    `db:"sessions_launched"`
	ScoreSum           int    `db:"score_sum"`
	ErrorRecoveryCount int    `db:"error_recovery_count"`
	FalseAlertCount    int    `db:"false_alert_count"`
	DaysAtLevel        int    `db:"days_at_level"`
}

func (row trustRow) toDomain() TrustSummary {
	return TrustSummary{
		Level:              row.Level,
		SessionsLaunched:   row.SessionsLaunched,
		ScoreSum:           row.ScoreSum,
		ErrorRecoveryCount: row.ErrorRecoveryCount,
		FalseAlertCount:    row.FalseAlertCount,
		DaysAtLevel:        row.DaysAtLevel,
	}
}

// Get returns the summary row for level, creating a zeroed one if absent.
func (r *TrustRepo) Get(ctx context.Context, level string) (TrustSummary, error) {
	var row trustRow
	err := r.db.GetContext(ctx, &row, `SELECT level, sessions_launched, score_sum, error_recovery_count, false_alert_count, days_at_level FROM trust_summary WHERE level = ?`, level)
	if err != nil {
		return TrustSummary{Level: level}, nil
	}
	return row.toDomain(), nil
}

func (r *TrustRepo) All(ctx context.Context) ([]TrustSummary, error) {
	var rows []trustRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT level, sessions_launched, score_sum, error_recovery_count, false_alert_count, days_at_level FROM trust_summary ORDER BY level`); err != nil {
		return nil, err
	}
	out := make([]TrustSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// RecordSession increments sessions-launched and the score sum for level.
func (r *TrustRepo) RecordSession(ctx context.Context, level string, score int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trust_summary (level, sessions_launched, score_sum) VALUES (?, 1, ?)
		ON CONFLICT(level) DO UPDATE SET
			sessions_launched = sessions_launched + 1,
			score_sum = score_sum + excluded.score_sum`,
		level, score)
	return err
}

func (r *TrustRepo) RecordErrorRecovery(ctx context.Context, level string) error {
	return r.bump(ctx, level, "error_recovery_count")
}

func (r *TrustRepo) RecordFalseAlert(ctx context.Context, level string) error {
	return r.bump(ctx, level, "false_alert_count")
}

func (r *TrustRepo) IncrementDaysAtLevel(ctx context.Context, level string) error {
	return r.bump(ctx, level, "days_at_level")
}

func (r *TrustRepo) bump(ctx context.Context, level, column string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trust_summary (level, `+column+`) VALUES (?, 1)
		ON CONFLICT(level) DO UPDATE SET `+column+` = `+column+` + 1`,
		level)
	return err
}
