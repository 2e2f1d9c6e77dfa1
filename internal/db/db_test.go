package db

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/orchestratord/orchestratord/internal/evaluator"
	"github.com/orchestratord/orchestratord/internal/reminder"
)

func newMockConn(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	return sqlx.NewDb(mockDB, "sqlmock"), mock, func() { mockDB.Close() }
}

func TestReminderRepoInsertAndDue(t *testing.T) {
	conn, mock, cleanup := newMockConn(t)
	defer cleanup()
	repo := &ReminderRepo{db: conn}

	fireAt := time.Date(2026, 7, 31, 7, 30, 0, 0, time.UTC)
	createdAt := time.Date(2026, 7, 30, 21, 50, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reminders")).
		WithArgs("r1", "check certs", "2026-07-31T07:30:00Z", "2026-07-30T21:50:00Z").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Insert(context.Background(), reminder.Reminder{
		ID: "r1", Text: "check certs", FireAt: fireAt, CreatedAt: createdAt,
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	rows := sqlmock.NewRows([]string{"id", "text", "fire_at", "created_at", "fired"}).
		AddRow("r1", "check certs", "2026-07-31T07:30:00Z", "2026-07-30T21:50:00Z", 0)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, text, fire_at, created_at, fired FROM reminders WHERE fired = 0 AND fire_at <=")).
		WillReturnRows(rows)

	due, err := repo.Due(context.Background(), fireAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 1 || due[0].ID != "r1" {
		t.Fatalf("unexpected due set: %+v", due)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReminderRepoMarkFiredIsIdempotent(t *testing.T) {
	conn, mock, cleanup := newMockConn(t)
	defer cleanup()
	repo := &ReminderRepo{db: conn}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE reminders SET fired = 1 WHERE id = ?")).
		WithArgs("r1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE reminders SET fired = 1 WHERE id = ?")).
		WithArgs("r1").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.MarkFired(context.Background(), "r1"); err != nil {
		t.Fatalf("first MarkFired: %v", err)
	}
	if err := repo.MarkFired(context.Background(), "r1"); err != nil {
		t.Fatalf("second MarkFired should not error: %v", err)
	}
}

func TestConversationRepoAppendAndRecentIsChronological(t *testing.T) {
	conn, mock, cleanup := newMockConn(t)
	defer cleanup()
	repo := &ConversationRepo{db: conn}

	at := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO conversations")).
		WithArgs("user", "status?", at.UnixMilli(), "2026-07-31T09:00:00Z").
		WillReturnResult(sqlmock.NewResult(1, 1))
	if err := repo.Append(context.Background(), "user", "status?", at); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Rows come back DESC from the query; Recent must reverse to chronological.
	rows := sqlmock.NewRows([]string{"role", "text", "ts"}).
		AddRow("assistant", "all green", at.Add(time.Minute).UnixMilli()).
		AddRow("user", "status?", at.UnixMilli())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT role, text, ts FROM conversations ORDER BY ts DESC LIMIT ?")).
		WithArgs(2).WillReturnRows(rows)

	recent, err := repo.Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 || recent[0].Role != "user" || recent[1].Role != "assistant" {
		t.Fatalf("Recent not chronological: %+v", recent)
	}
}

func TestConversationRepoPruneOlderThan(t *testing.T) {
	conn, mock, cleanup := newMockConn(t)
	defer cleanup()
	repo := &ConversationRepo{db: conn}

	cutoff := time.Date(2026, 7, 24, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM conversations WHERE ts <")).
		WithArgs(cutoff.UnixMilli()).WillReturnResult(sqlmock.NewResult(0, 3))

	if err := repo.PruneOlderThan(context.Background(), cutoff); err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
}

func TestEvaluationRepoLatestForProjectNoRows(t *testing.T) {
	conn, mock, cleanup := newMockConn(t)
	defer cleanup()
	repo := &EvaluationRepo{db: conn}

	mock.ExpectQuery(regexp.QuoteMeta("FROM session_evaluations WHERE project_name =")).
		WillReturnError(sql.ErrNoRows)

	_, found, err := repo.LatestForProject(context.Background(), "alpha")
	if err != nil {
		t.Fatalf("LatestForProject: %v", err)
	}
	if found {
		t.Fatal("expected found=false when no evaluation rows exist")
	}
}

func TestEvaluationRepoSaveAndLatest(t *testing.T) {
	conn, mock, cleanup := newMockConn(t)
	defer cleanup()
	repo := &EvaluationRepo{db: conn}

	started := time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC)
	stopped := started.Add(40 * time.Minute)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO session_evaluations")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	if err := repo.Save(context.Background(), evaluator.Evaluation{
		SessionID: "s1", Project: "alpha", StartedAt: started, StoppedAt: stopped,
		DurationMinutes: 40, Score: 4, Recommendation: "continue",
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rows := sqlmock.NewRows([]string{
		"session_id", "project_name", "started_at", "stopped_at", "duration_minutes",
		"commit_count", "insertions", "deletions", "files_changed", "score",
		"recommendation", "prompt_snippet", "prompt_style", "evaluated_at",
	}).AddRow("s1", "alpha", "2026-07-31T08:00:00Z", "2026-07-31T08:40:00Z", 40.0,
		2, 30, 5, 3, 4, "continue", "", "resume", "2026-07-31T08:41:00Z")
	mock.ExpectQuery(regexp.QuoteMeta("FROM session_evaluations WHERE project_name =")).
		WillReturnRows(rows)

	ev, found, err := repo.LatestForProject(context.Background(), "alpha")
	if err != nil {
		t.Fatalf("LatestForProject: %v", err)
	}
	if !found || ev.Score != 4 || ev.Recommendation != "continue" {
		t.Fatalf("unexpected evaluation: %+v", ev)
	}
}

func TestEvaluationRepoCount(t *testing.T) {
	conn, mock, cleanup := newMockConn(t)
	defer cleanup()
	repo := &EvaluationRepo{db: conn}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM session_evaluations")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := repo.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 7 {
		t.Errorf("Count = %d, want 7", n)
	}
}
