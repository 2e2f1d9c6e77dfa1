package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/orchestratord/orchestratord/internal/config"
	"github.com/orchestratord/orchestratord/internal/notify"
)

func notifyConfigAllowAll() config.Notifications {
	return config.Notifications{DailyBudget: 100, UrgentBypassQuiet: true}
}

func quietHoursNever() config.QuietHours {
	return config.QuietHours{Start: "00:00", End: "00:00"}
}

type memStore struct {
	rows map[string]Reminder
}

func newMemStore() *memStore { return &memStore{rows: make(map[string]Reminder)} }

func (m *memStore) Insert(ctx context.Context, r Reminder) error {
	m.rows[r.ID] = r
	return nil
}

func (m *memStore) Pending(ctx context.Context) ([]Reminder, error) {
	var out []Reminder
	for _, r := range m.rows {
		if !r.Fired {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) Due(ctx context.Context, asOf time.Time) ([]Reminder, error) {
	var out []Reminder
	for _, r := range m.rows {
		if !r.Fired && !r.FireAt.After(asOf) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) MarkFired(ctx context.Context, id string) error {
	r := m.rows[id]
	r.Fired = true
	m.rows[id] = r
	return nil
}

func (m *memStore) Delete(ctx context.Context, id string) error {
	delete(m.rows, id)
	return nil
}

type countingTransport struct{ n int }

func (c *countingTransport) Send(ctx context.Context, text string) error {
	c.n++
	return nil
}

func TestSetAndListPendingOrderedByFireAt(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store, nil)

	later, _ := e.Set(context.Background(), "later one", time.Now().Add(2*time.Hour))
	sooner, _ := e.Set(context.Background(), "sooner one", time.Now().Add(1*time.Hour))

	pending, err := e.ListPending(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != sooner || pending[1].ID != later {
		t.Fatalf("expected ordering by fire_at, got %+v", pending)
	}
}

func TestCheckAndFireIsIdempotent(t *testing.T) {
	store := newMemStore()
	tx := &countingTransport{}
	mgr := notify.NewManager(notifyConfigAllowAll(), quietHoursNever(), tx, nil)
	e := NewEngine(store, mgr)

	e.Set(context.Background(), "past due reminder", time.Now().Add(-time.Hour))

	n1, err := e.CheckAndFire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n1 != 1 {
		t.Fatalf("expected 1 reminder fired, got %d", n1)
	}

	n2, err := e.CheckAndFire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n2 != 0 {
		t.Fatalf("expected no re-fire on second call, got %d", n2)
	}
	if tx.n != 1 {
		t.Fatalf("expected exactly one SMS sent, got %d", tx.n)
	}
}

func TestCancelByTextFuzzyMatch(t *testing.T) {
	store := newMemStore()
	e := NewEngine(store, nil)

	id, _ := e.Set(context.Background(), "check certs tomorrow", time.Now().Add(time.Hour))

	match, ok, err := e.CancelByText(context.Background(), "check certz tomorow")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || match.ID != id {
		t.Fatalf("expected fuzzy match to find reminder %s, got ok=%v match=%+v", id, ok, match)
	}

	pending, _ := e.ListPending(context.Background())
	if len(pending) != 0 {
		t.Fatalf("expected matched reminder removed, got %d pending", len(pending))
	}
}
