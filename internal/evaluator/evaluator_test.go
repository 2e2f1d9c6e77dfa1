package evaluator

import (
	"context"
	"testing"
	"time"

	"github.com/orchestratord/orchestratord/internal/breaker"
	"github.com/orchestratord/orchestratord/internal/oracle"
)

type memStore struct {
	saved []Evaluation
}

func (m *memStore) LatestForProject(ctx context.Context, project string) (Evaluation, bool, error) {
	for i := len(m.saved) - 1; i >= 0; i-- {
		if m.saved[i].Project == project {
			return m.saved[i], true, nil
		}
	}
	return Evaluation{}, false, nil
}

func (m *memStore) Save(ctx context.Context, ev Evaluation) error {
	m.saved = append(m.saved, ev)
	return nil
}

func (m *memStore) Count(ctx context.Context) (int, error) { return len(m.saved), nil }

func TestClassifyPromptStyle(t *testing.T) {
	cases := map[string]PromptStyle{
		"fix the login bug":        StyleFix,
		"implement a new endpoint": StyleImplement,
		"explore the codebase":     StyleExplore,
		"resume where you left off": StyleResume,
		"do something unusual":     StyleCustom,
	}
	for prompt, want := range cases {
		if got := ClassifyPromptStyle(prompt); got != want {
			t.Errorf("ClassifyPromptStyle(%q) = %s, want %s", prompt, got, want)
		}
	}
}

func TestEvaluateSavesAndScores(t *testing.T) {
	g := oracle.NewGateway(oracle.Config{}, breaker.NewRegistry(breaker.Config{}, nil), nil)
	g.SetRunner(func(ctx context.Context, args []string, stdin []byte) ([]byte, error) {
		return []byte(`{"score":4,"recommendation":"complete","accomplishments":"shipped the feature","failures":"none","reasoning":"clean diff, tests added"}`), nil
	})
	store := &memStore{}
	e := NewEvaluator(g, store, nil, nil, Config{})

	ev, err := e.Evaluate(context.Background(), Input{
		SessionID: "s1", Project: "demo", ProjectDir: t.TempDir(),
		Prompt: "implement the thing", StartedAt: time.Now().Add(-10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Score != 4 || ev.Recommendation != "complete" {
		t.Fatalf("unexpected evaluation: %+v", ev)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected one saved evaluation, got %d", len(store.saved))
	}
}

func TestPatternCoverageInsufficientData(t *testing.T) {
	store := &memStore{saved: make([]Evaluation, 5)}
	e := NewEvaluator(nil, store, nil, nil, Config{PatternThreshold: 50})

	ready, detail, err := e.PatternCoverage(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ready {
		t.Fatalf("expected not ready with only 5/50 evaluations")
	}
	if detail != "insufficient data (5/50)" {
		t.Errorf("got %q", detail)
	}
}
