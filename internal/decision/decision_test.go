package decision

import (
	"testing"

	"github.com/orchestratord/orchestratord/internal/config"
	"github.com/orchestratord/orchestratord/internal/projects"
)

func newTestExecutor(t *testing.T, cfg config.AI) *Executor {
	t.Helper()
	reg := projects.NewRegistry("", []string{"demo", "vault"})
	return NewExecutor(cfg, reg, nil, nil, nil)
}

func TestEvaluateDropsUnknownAction(t *testing.T) {
	e := newTestExecutor(t, config.AI{})
	v := e.evaluateOne(Recommendation{Project: "demo", Action: "launch-nukes"}, LevelFull)
	if v.Validated {
		t.Fatalf("expected unknown action dropped, got %+v", v)
	}
	if v.RejectionReason != "action not in allowlist" {
		t.Errorf("got reason %q", v.RejectionReason)
	}
}

func TestEvaluateDropsUnknownProject(t *testing.T) {
	e := newTestExecutor(t, config.AI{})
	v := e.evaluateOne(Recommendation{Project: "ghost", Action: ActionStart}, LevelFull)
	if v.Validated {
		t.Fatalf("expected unknown project dropped")
	}
}

func TestEvaluateDropsProtectedProject(t *testing.T) {
	e := newTestExecutor(t, config.AI{ProtectedProjects: []string{"vault"}})
	v := e.evaluateOne(Recommendation{Project: "vault", Action: ActionStart}, LevelFull)
	if v.Validated {
		t.Fatalf("expected protected project dropped")
	}
	if v.RejectionReason != "protected project" {
		t.Errorf("got %q", v.RejectionReason)
	}
}

func TestEvaluateCooldownSameAction(t *testing.T) {
	e := newTestExecutor(t, config.AI{Cooldowns: config.Cooldowns{SameActionMs: 60000, SameProjectMs: 1}})
	rec := Recommendation{Project: "demo", Action: ActionStart}
	e.recordAction(rec)

	v := e.evaluateOne(rec, LevelFull)
	if v.Validated {
		t.Fatalf("expected cooldown hit to drop recommendation")
	}
	if v.RejectionReason != "cooldown" {
		t.Errorf("got %q", v.RejectionReason)
	}
}

func TestAutonomyMatrixObserveDowngradesToSMSOnly(t *testing.T) {
	e := newTestExecutor(t, config.AI{})
	v := e.evaluateOne(Recommendation{Project: "demo", Action: ActionStart}, LevelObserve)
	if !v.Validated || !v.ObserveOnly {
		t.Fatalf("expected observe-level start downgraded to observeOnly, got %+v", v)
	}
}

func TestAutonomyMatrixFullExecutes(t *testing.T) {
	e := newTestExecutor(t, config.AI{})
	v := e.evaluateOne(Recommendation{Project: "demo", Action: ActionRestart}, LevelFull)
	if !v.Validated || v.ObserveOnly {
		t.Fatalf("expected full-autonomy restart to execute, got %+v", v)
	}
}

func TestSkipAlwaysValidatesWithoutExecuting(t *testing.T) {
	e := newTestExecutor(t, config.AI{})
	v := e.evaluateOne(Recommendation{Project: "demo", Action: ActionSkip}, LevelObserve)
	if !v.Validated || v.ObserveOnly {
		t.Fatalf("expected skip validated, never observeOnly, got %+v", v)
	}
}

func TestErrorRetryCapExceeded(t *testing.T) {
	e := newTestExecutor(t, config.AI{MaxErrorRetries: 2})
	if e.IncrementErrorRetry("demo") {
		t.Fatalf("1st retry should not exceed cap")
	}
	if e.IncrementErrorRetry("demo") {
		t.Fatalf("2nd retry should not exceed cap")
	}
	if !e.IncrementErrorRetry("demo") {
		t.Fatalf("3rd retry should exceed cap of 2")
	}
}
