package db

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/orchestratord/orchestratord/internal/reminder"
)

// ReminderRepo implements reminder.Store against the reminders table.
type ReminderRepo struct {
	db *sqlx.DB
}

type reminderRow struct {
	ID        string `db:"id"`
	Text      string `db:"text"`
	FireAt    string `db:"fire_at"`
	CreatedAt string `db:"created_at"`
	Fired     int    `db:"fired"`
}

const isoLayout = time.RFC3339

func (row reminderRow) toDomain() reminder.Reminder {
	fireAt, _ := time.Parse(isoLayout, row.FireAt)
	createdAt, _ := time.Parse(isoLayout, row.CreatedAt)
	return reminder.Reminder{
		ID:        row.ID,
		Text:      row.Text,
		FireAt:    fireAt,
		CreatedAt: createdAt,
		Fired:     row.Fired != 0,
	}
}

func (r *ReminderRepo) Insert(ctx context.Context, rem reminder.Reminder) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reminders (id, text, fire_at, created_at, fired) VALUES (?, ?, ?, ?, 0)`,
		rem.ID, rem.Text, rem.FireAt.UTC().Format(isoLayout), rem.CreatedAt.UTC().Format(isoLayout),
	)
	return err
}

func (r *ReminderRepo) Pending(ctx context.Context) ([]reminder.Reminder, error) {
	var rows []reminderRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT id, text, fire_at, created_at, fired FROM reminders WHERE fired = 0 ORDER BY fire_at`); err != nil {
		return nil, err
	}
	return toDomainSlice(rows), nil
}

func (r *ReminderRepo) Due(ctx context.Context, asOf time.Time) ([]reminder.Reminder, error) {
	var rows []reminderRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT id, text, fire_at, created_at, fired FROM reminders WHERE fired = 0 AND fire_at <= ? ORDER BY fire_at`,
		asOf.UTC().Format(isoLayout)); err != nil {
		return nil, err
	}
	return toDomainSlice(rows), nil
}

func (r *ReminderRepo) MarkFired(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE reminders SET fired = 1 WHERE id = ?`, id)
	return err
}

func (r *ReminderRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	return err
}

func toDomainSlice(rows []reminderRow) []reminder.Reminder {
	out := make([]reminder.Reminder, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}
