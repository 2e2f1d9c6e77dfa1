// Package db implements the embedded persistence layer (spec §6
// "Embedded DB schema", C10): one shared modernc.org/sqlite database
// file accessed through sqlx, WAL-moded for concurrent reads, with a
// single-writer discipline enforced by each repository's method
// signatures rather than by a pool-wide lock. Grounded on the teacher's
// sqlx-based store conventions; modernc.org/sqlite is a new dependency
// (see DESIGN.md) since no example repo vendors a pure-Go, CGO-free
// SQLite driver.
package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/orchestratord/orchestratord/internal/db/migrations"
)

// DB wraps the shared connection pool and the per-domain repositories.
type DB struct {
	conn *sqlx.DB

	Reminders   *ReminderRepo
	Conversations *ConversationRepo
	Evaluations *EvaluationRepo
	Revenue     *RevenueRepo
	Trust       *TrustRepo
}

// Open connects to the sqlite file at path, enables WAL mode, applies
// migrations, and builds every repository.
func Open(ctx context.Context, path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1) // single-writer discipline (spec §5 shared-resources table)

	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrations.Apply(ctx, conn.DB); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	d := &DB{conn: conn}
	d.Reminders = &ReminderRepo{db: conn}
	d.Conversations = &ConversationRepo{db: conn}
	d.Evaluations = &EvaluationRepo{db: conn}
	d.Revenue = &RevenueRepo{db: conn}
	d.Trust = &TrustRepo{db: conn}
	return d, nil
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}
