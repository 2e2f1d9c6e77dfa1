package breaker

import (
	"testing"
	"time"
)

func TestOpensAfterThresholdAndHalfOpensAfterReset(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 3, ResetTime: 50 * time.Millisecond}, nil)

	for i := 0; i < 3; i++ {
		if err := r.Allow("github"); err != nil {
			t.Fatalf("call %d: unexpected reject: %v", i, err)
		}
		r.RecordFailure("github")
	}

	if r.State("github") != StateOpen {
		t.Fatalf("expected open after 3 failures, got %s", r.State("github"))
	}

	if err := r.Allow("github"); err != ErrOpen {
		t.Fatalf("expected ErrOpen immediately after opening, got %v", err)
	}

	time.Sleep(60 * time.Millisecond)

	if err := r.Allow("github"); err != nil {
		t.Fatalf("expected half-open probe to be allowed, got %v", err)
	}
	if r.State("github") != StateHalfOpen {
		t.Fatalf("expected half-open, got %s", r.State("github"))
	}

	r.RecordSuccess("github")
	if r.State("github") != StateClosed {
		t.Fatalf("expected closed after success, got %s", r.State("github"))
	}
}

func TestUnknownProviderPassesThrough(t *testing.T) {
	r := NewRegistry(Config{}, nil)
	if err := r.Allow("never-seen"); err != nil {
		t.Fatalf("unknown provider should pass through: %v", err)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1, ResetTime: 10 * time.Millisecond}, nil)
	_ = r.Allow("svc")
	r.RecordFailure("svc")
	time.Sleep(20 * time.Millisecond)
	_ = r.Allow("svc") // -> half-open
	r.RecordFailure("svc")
	if r.State("svc") != StateOpen {
		t.Fatalf("expected reopen after half-open failure, got %s", r.State("svc"))
	}
}
