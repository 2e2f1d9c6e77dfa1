// Package reminder implements the reminder engine (spec §4.8, C12):
// set, cancel-by-fuzzy-text, list, and poll-to-fire against a DB-backed
// pending set. Grounded on the teacher's repository-interface pattern
// (consumer package defines the storage contract; internal/db supplies
// the sqlx-backed implementation).
package reminder

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/orchestratord/orchestratord/internal/fuzzy"
	"github.com/orchestratord/orchestratord/internal/notify"
)

// Reminder is one row of the reminders table (spec §3 Reminder, §6
// schema).
type Reminder struct {
	ID        string
	Text      string
	FireAt    time.Time
	CreatedAt time.Time
	Fired     bool
}

// Store is the persistence contract the reminder engine needs.
// Implemented by internal/db against the `reminders` table.
type Store interface {
	Insert(ctx context.Context, r Reminder) error
	Pending(ctx context.Context) ([]Reminder, error)
	Due(ctx context.Context, asOf time.Time) ([]Reminder, error)
	MarkFired(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// Engine owns the set/cancel/list/fire operations.
type Engine struct {
	store  Store
	notify *notify.Manager
	now    func() time.Time
}

// NewEngine builds an Engine.
func NewEngine(store Store, notifier *notify.Manager) *Engine {
	return &Engine{store: store, notify: notifier, now: time.Now}
}

// Set inserts a new reminder and returns its id. Past timestamps are
// accepted and fire on the next checkAndFire tick (spec §4.8).
func (e *Engine) Set(ctx context.Context, text string, fireAt time.Time) (string, error) {
	id := uuid.NewString()
	r := Reminder{
		ID:        id,
		Text:      text,
		FireAt:    fireAt,
		CreatedAt: e.now(),
	}
	if err := e.store.Insert(ctx, r); err != nil {
		return "", err
	}
	return id, nil
}

// CancelByText fuzzy-matches query against pending reminder text and
// deletes the closest match, if any is found within a reasonable
// distance budget (spec §4.8 "fuzzy-match over pending rows").
func (e *Engine) CancelByText(ctx context.Context, query string) (Reminder, bool, error) {
	pending, err := e.store.Pending(ctx)
	if err != nil {
		return Reminder{}, false, err
	}
	match, ok := bestFuzzyMatch(query, pending)
	if !ok {
		return Reminder{}, false, nil
	}
	if err := e.store.Delete(ctx, match.ID); err != nil {
		return Reminder{}, false, err
	}
	return match, true, nil
}

// ListPending returns pending reminders ordered by fire_at.
func (e *Engine) ListPending(ctx context.Context) ([]Reminder, error) {
	pending, err := e.store.Pending(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].FireAt.Before(pending[j].FireAt) })
	return pending, nil
}

// CheckAndFire fires every reminder due as of now, routing each through
// the notification manager at tier 1 — the user explicitly requested
// the time, so it bypasses quiet hours (spec §4.8). Idempotent: a
// reminder is marked fired before it can be selected again.
func (e *Engine) CheckAndFire(ctx context.Context) (int, error) {
	due, err := e.store.Due(ctx, e.now())
	if err != nil {
		return 0, err
	}
	fired := 0
	for _, r := range due {
		if err := e.store.MarkFired(ctx, r.ID); err != nil {
			return fired, err
		}
		if e.notify != nil {
			if err := e.notify.Send(ctx, notify.TierURGENT, fmt.Sprintf("Reminder: %s", r.Text)); err != nil {
				return fired, err
			}
		}
		fired++
	}
	return fired, nil
}

// bestFuzzyMatch returns the pending reminder whose text is closest to
// query by Levenshtein distance, accepting it only if the distance is
// within a budget proportional to the query length (spec §4.9's
// fuzzy-matching approach, reused here per spec §4.8).
func bestFuzzyMatch(query string, candidates []Reminder) (Reminder, bool) {
	if len(candidates) == 0 {
		return Reminder{}, false
	}
	q := strings.ToLower(strings.TrimSpace(query))
	budget := fuzzy.Budget(len(q))

	best := -1
	bestDist := budget + 1
	for i, c := range candidates {
		d := fuzzy.Distance(q, strings.ToLower(c.Text))
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best == -1 || bestDist > budget {
		return Reminder{}, false
	}
	return candidates[best], true
}
