// Package migrations embeds the orchestrator's SQL schema and applies
// it idempotently at startup. Grounded on the teacher's
// system/platform/migrations hand-rolled embed.FS + lexically-sorted
// Apply() pattern — golang-migrate/migrate/v4 is listed in the
// teacher's go.mod but never actually invoked by its own code either;
// we follow what the teacher's code does, not what its dependency list
// merely carries (see DESIGN.md).
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
)

//go:embed sql/*.sql
var files embed.FS

// Apply runs every embedded migration in lexical filename order inside
// a single transaction, each statement guarded by `IF NOT EXISTS` so
// re-running Apply against an already-migrated database is a no-op.
func Apply(ctx context.Context, db *sql.DB) error {
	entries, err := files.ReadDir("sql")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer tx.Rollback()

	for _, name := range names {
		raw, err := files.ReadFile("sql/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(raw)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}

	return tx.Commit()
}
