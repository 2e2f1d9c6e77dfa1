package router

import (
	"context"
	"testing"

	"github.com/orchestratord/orchestratord/internal/breaker"
	"github.com/orchestratord/orchestratord/internal/oracle"
)

func TestExactMatchCommandsDispatchDirectly(t *testing.T) {
	called := false
	h := Handlers{Status: func(ctx context.Context) string { called = true; return "all good" }}
	r := NewRouter(h, nil, nil)

	reply := r.Route(context.Background(), "status")
	if !called || reply != "all good" {
		t.Fatalf("expected status handler dispatched, got reply=%q called=%v", reply, called)
	}
}

func TestHelpCommand(t *testing.T) {
	r := NewRouter(Handlers{}, nil, nil)
	if reply := r.Route(context.Background(), "help"); reply != helpText {
		t.Errorf("got %q", reply)
	}
}

func TestStartRoutesToFuzzyMatchedProject(t *testing.T) {
	var got string
	h := Handlers{
		Start:         func(ctx context.Context, project string) string { got = project; return "started" },
		KnownProjects: func() []string { return []string{"api-gateway", "billing"} },
	}
	r := NewRouter(h, nil, nil)
	r.Route(context.Background(), "start api-gatewai")
	if got != "api-gateway" {
		t.Errorf("expected fuzzy match to api-gateway, got %q", got)
	}
}

func TestUnknownInputRoutesToNaturalLanguage(t *testing.T) {
	g := oracle.NewGateway(oracle.Config{}, breaker.NewRegistry(breaker.Config{}, nil), nil)
	g.SetRunner(func(ctx context.Context, args []string, stdin []byte) ([]byte, error) {
		return []byte("Sure, I'll check on that for you."), nil
	})
	mem := NewMemory()
	r := NewRouter(Handlers{}, g, mem)

	reply := r.Route(context.Background(), "how's the billing project doing?")
	if reply != "Sure, I'll check on that for you." {
		t.Errorf("got %q", reply)
	}
	if len(mem.Recent(10)) != 2 {
		t.Errorf("expected user+assistant turns pushed, got %d", len(mem.Recent(10)))
	}
}

func TestReminderMarkerExtractedAndStripped(t *testing.T) {
	g := oracle.NewGateway(oracle.Config{}, breaker.NewRegistry(breaker.Config{}, nil), nil)
	g.SetRunner(func(ctx context.Context, args []string, stdin []byte) ([]byte, error) {
		return []byte(`Sure thing. REMINDER_JSON:{"text":"check certs","fireAt":"2026-08-01T07:30:00Z"} Done.`), nil
	})
	var captured string
	r := NewRouter(Handlers{SetReminder: func(ctx context.Context, j string) error { captured = j; return nil }}, g, nil)

	reply := r.Route(context.Background(), "please remember to check certs tomorrow at 7:30am")
	if captured == "" {
		t.Fatalf("expected reminder JSON captured")
	}
	if containsMarker(reply) {
		t.Errorf("expected marker stripped from reply, got %q", reply)
	}
}

func containsMarker(s string) bool {
	for i := 0; i+len(reminderMarker) <= len(s); i++ {
		if s[i:i+len(reminderMarker)] == reminderMarker {
			return true
		}
	}
	return false
}
