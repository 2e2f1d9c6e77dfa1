package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/orchestratord/orchestratord/internal/evaluator"
)

// EvaluationRepo implements evaluator.Store against session_evaluations.
type EvaluationRepo struct {
	db *sqlx.DB
}

type evaluationRow struct {
	SessionID       string  `db:"session_id"`
	Project         string  `db:"project_name"`
	StartedAt       string  `db:"started_at"`
	StoppedAt       string  `db:"stopped_at"`
	DurationMinutes float64 `db:"duration_minutes"`
	CommitCount     int     `db:"commit_count"`
	Insertions      int     `db:"insertions"`
	Deletions       int     `db:"deletions"`
	FilesChanged    int     `db:"files_changed"`
	Score           int     `db:"score"`
	Recommendation  string  `db:"recommendation"`
	PromptSnippet   string  `db:"prompt_snippet"`
	PromptStyle     string  `db:"prompt_style"`
	EvaluatedAt     string  `db:"evaluated_at"`
}

func (row evaluationRow) toDomain() evaluator.Evaluation {
	startedAt, _ := time.Parse(isoLayout, row.StartedAt)
	stoppedAt, _ := time.Parse(isoLayout, row.StoppedAt)
	return evaluator.Evaluation{
		SessionID:       row.SessionID,
		Project:         row.Project,
		StartedAt:       startedAt,
		StoppedAt:       stoppedAt,
		DurationMinutes: row.DurationMinutes,
		CommitCount:     row.CommitCount,
		Insertions:      row.Insertions,
		Deletions:       row.Deletions,
		FilesChanged:    row.FilesChanged,
		Score:           row.Score,
		Recommendation:  row.Recommendation,
		Reasoning:       row.PromptSnippet,
		PromptStyle:     evaluator.PromptStyle(row.PromptStyle),
	}
}

func (r *EvaluationRepo) Save(ctx context.Context, ev evaluator.Evaluation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_evaluations
			(session_id, project_name, started_at, stopped_at, duration_minutes,
			 commit_count, insertions, deletions, files_changed, score,
			 recommendation, prompt_snippet, prompt_style, evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.SessionID, ev.Project, ev.StartedAt.UTC().Format(isoLayout), ev.StoppedAt.UTC().Format(isoLayout),
		ev.DurationMinutes, ev.CommitCount, ev.Insertions, ev.Deletions, ev.FilesChanged, ev.Score,
		ev.Recommendation, ev.Reasoning, string(ev.PromptStyle), time.Now().UTC().Format(isoLayout),
	)
	return err
}

func (r *EvaluationRepo) LatestForProject(ctx context.Context, project string) (evaluator.Evaluation, bool, error) {
	var row evaluationRow
	err := r.db.GetContext(ctx, &row, `
		SELECT session_id, project_name, started_at, stopped_at, duration_minutes,
		       commit_count, insertions, deletions, files_changed, score,
		       recommendation, COALESCE(prompt_snippet, '') AS prompt_snippet,
		       COALESCE(prompt_style, '') AS prompt_style, evaluated_at
		FROM session_evaluations WHERE project_name = ? ORDER BY evaluated_at DESC LIMIT 1`, project)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return evaluator.Evaluation{}, false, nil
		}
		return evaluator.Evaluation{}, false, err
	}
	return row.toDomain(), true, nil
}

func (r *EvaluationRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM session_evaluations`); err != nil {
		return 0, err
	}
	return n, nil
}
