package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

// RevenueSnapshot is one timestamped reading from a configured revenue
// source (spec §3 "Revenue snapshot" — distinguishes unreachable from
// genuinely zero via the Unreachable flag rather than a nullable-as-zero
// convention).
type RevenueSnapshot struct {
	Source      string
	CapturedAt  time.Time
	ValueAtomic int64
	Unreachable bool
	Metadata    string
}

// RevenueRepo implements the revenue persistence contract against
// revenue_snapshots.
type RevenueRepo struct {
	db *sqlx.DB
}

// NewRevenueRepoForTest builds a RevenueRepo around an arbitrary *sqlx.DB,
// so package revenue can exercise it against a sqlmock connection.
func NewRevenueRepoForTest(conn *sqlx.DB) *RevenueRepo {
	return &RevenueRepo{db: conn}
}

type revenueRow struct {
	Source      string        `db:"source"`
	CapturedAt  string        `db:"captured_at"`
	ValueAtomic sql.NullInt64 `db:"value_atomic"`
	Unreachable int           `db:"unreachable"`
	Metadata    sql.NullString `db:"metadata"`
}

func (row revenueRow) toDomain() RevenueSnapshot {
	capturedAt, _ := time.Parse(isoLayout, row.CapturedAt)
	return RevenueSnapshot{
		Source:      row.Source,
		CapturedAt:  capturedAt,
		ValueAtomic: row.ValueAtomic.Int64,
		Unreachable: row.Unreachable != 0,
		Metadata:    row.Metadata.String,
	}
}

func (r *RevenueRepo) Insert(ctx context.Context, snap RevenueSnapshot) error {
	var value sql.NullInt64
	if !snap.Unreachable {
		value = sql.NullInt64{Int64: snap.ValueAtomic, Valid: true}
	}
	unreachable := 0
	if snap.Unreachable {
		unreachable = 1
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO revenue_snapshots (source, captured_at, value_atomic, unreachable, metadata) VALUES (?, ?, ?, ?, ?)`,
		snap.Source, snap.CapturedAt.UTC().Format(isoLayout), value, unreachable, snap.Metadata)
	return err
}

// Latest returns the most recent snapshot per source.
func (r *RevenueRepo) Latest(ctx context.Context) ([]RevenueSnapshot, error) {
	var rows []revenueRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT source, captured_at, value_atomic, unreachable, metadata
		FROM revenue_snapshots rs
		WHERE rs.id = (
			SELECT id FROM revenue_snapshots rs2
			WHERE rs2.source = rs.source
			ORDER BY rs2.captured_at DESC LIMIT 1
		)
		ORDER BY source`); err != nil {
		return nil, err
	}
	out := make([]RevenueSnapshot, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// Since returns all snapshots for source captured at or after from,
// oldest first (used for weekly summary deltas).
func (r *RevenueRepo) Since(ctx context.Context, source string, from time.Time) ([]RevenueSnapshot, error) {
	var rows []revenueRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT source, captured_at, value_atomic, unreachable, metadata
		FROM revenue_snapshots WHERE source = ? AND captured_at >= ? ORDER BY captured_at`,
		source, from.UTC().Format(isoLayout)); err != nil {
		return nil, err
	}
	out := make([]RevenueSnapshot, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
