package db

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// ConversationRepo persists conversation turns for audit/history beyond
// the in-process TTL-pruned router.Memory (spec §6 `conversations`
// table).
type ConversationRepo struct {
	db *sqlx.DB
}

// ConversationRow is one persisted turn.
type ConversationRow struct {
	Role string `db:"role"`
	Text string `db:"text"`
	TS   int64  `db:"ts"`
}

func (c *ConversationRepo) Append(ctx context.Context, role, text string, at time.Time) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO conversations (role, text, ts, created_at) VALUES (?, ?, ?, ?)`,
		role, text, at.UnixMilli(), at.UTC().Format(isoLayout))
	return err
}

func (c *ConversationRepo) Recent(ctx context.Context, n int) ([]ConversationRow, error) {
	var rows []ConversationRow
	if err := c.db.SelectContext(ctx, &rows,
		`SELECT role, text, ts FROM conversations ORDER BY ts DESC LIMIT ?`, n); err != nil {
		return nil, err
	}
	// reverse into chronological order
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// PruneOlderThan deletes conversation rows older than cutoff (spec §3
// "Pruned by TTL (7 days)").
func (c *ConversationRepo) PruneOlderThan(ctx context.Context, cutoff time.Time) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM conversations WHERE ts < ?`, cutoff.UnixMilli())
	return err
}
