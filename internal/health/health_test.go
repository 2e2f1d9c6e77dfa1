package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/orchestratord/orchestratord/internal/config"
)

func TestHTTPCheckUpOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	m := NewMonitor(config.Health{
		Services: []config.ServiceCheck{{Name: "svc", Type: "http", URL: srv.URL, IntervalMs: 1}},
	}, "", nil)

	res := m.CheckAll(context.Background(), "observe")
	if len(res.Results) != 1 || res.Results[0].Status != StatusUp {
		t.Fatalf("expected 404 to count as up, got %+v", res.Results)
	}
}

func TestHTTPCheckDownOnConnRefused(t *testing.T) {
	m := NewMonitor(config.Health{
		Services: []config.ServiceCheck{{Name: "svc", Type: "http", URL: "http://127.0.0.1:1", IntervalMs: 1}},
	}, "", nil)

	res := m.CheckAll(context.Background(), "observe")
	if len(res.Results) != 1 || res.Results[0].Status != StatusDown {
		t.Fatalf("expected connection refused to count as down, got %+v", res.Results)
	}
}

func TestAlertFiresExactlyOnceAtThreshold(t *testing.T) {
	m := NewMonitor(config.Health{
		ConsecutiveFailsBeforeAlert: 2,
		Services:                    []config.ServiceCheck{{Name: "svc", Type: "http", URL: "http://127.0.0.1:1", IntervalMs: 1}},
	}, "", nil)

	r1 := m.CheckAll(context.Background(), "observe")
	if len(r1.NewlyAlerting) != 0 {
		t.Fatalf("should not alert on first failure, got %v", r1.NewlyAlerting)
	}
	r2 := m.CheckAll(context.Background(), "observe")
	if len(r2.NewlyAlerting) != 1 {
		t.Fatalf("should alert exactly once at threshold, got %v", r2.NewlyAlerting)
	}
	r3 := m.CheckAll(context.Background(), "observe")
	if len(r3.NewlyAlerting) != 0 {
		t.Fatalf("should not re-alert past threshold, got %v", r3.NewlyAlerting)
	}
}

func TestCorrelatedFailureSuppressesRestarts(t *testing.T) {
	services := []config.ServiceCheck{
		{Name: "a", Type: "http", URL: "http://127.0.0.1:1", IntervalMs: 1, LaunchLabel: ""},
		{Name: "b", Type: "http", URL: "http://127.0.0.1:1", IntervalMs: 1},
		{Name: "c", Type: "http", URL: "http://127.0.0.1:1", IntervalMs: 1},
	}
	m := NewMonitor(config.Health{
		ConsecutiveFailsBeforeAlert: 1,
		CorrelatedFailureThreshold:  3,
		Services:                    services,
	}, "", nil)

	res := m.CheckAll(context.Background(), "full")
	if !res.CorrelatedFailure {
		t.Fatalf("expected correlated failure with 3/3 down")
	}
	if len(res.RestartCandidates) != 0 {
		t.Fatalf("correlated failure must suppress all restarts, got %v", res.RestartCandidates)
	}
}

func TestSelfExclusion(t *testing.T) {
	m := NewMonitor(config.Health{
		Services: []config.ServiceCheck{{Name: "daemon", Type: "process", LaunchLabel: "com.orchestrator.daemon"}},
	}, "com.orchestrator.daemon", nil)

	if len(m.services) != 0 {
		t.Fatalf("expected self-labeled service excluded from registry")
	}
}
