package orcherr

import (
	"errors"
	"testing"
)

func TestFatalOnlyChatDBAuthDenied(t *testing.T) {
	for _, k := range []Kind{
		KindOracleTimeout, KindOracleParseFail, KindOracleUnavailable,
		KindPreconditionFail, KindAutonomyDenied, KindCooldownHit,
		KindCircuitOpen, KindHealthInfrastructureEvent, KindRestartBudgetExhausted,
		KindSessionAlreadyRunning, KindFileSystemTransient,
	} {
		if k.Fatal() {
			t.Errorf("Kind %q should not be fatal", k)
		}
	}
	if !KindChatDBAuthDenied.Fatal() {
		t.Error("KindChatDBAuthDenied should be fatal per spec §7")
	}
}

func TestWrapPreservesCauseAndUnwraps(t *testing.T) {
	cause := errors.New("permission denied")
	err := Wrap(KindChatDBAuthDenied, "cannot read chat db", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap should return the original cause")
	}
}

func TestNewHasNoCause(t *testing.T) {
	err := New(KindCooldownHit, "same action within window")
	if err.Cause != nil {
		t.Errorf("New should not set a cause, got %v", err.Cause)
	}
	if err.Error() == "" {
		t.Error("Error() should not be empty")
	}
}

func TestAsAndKindOf(t *testing.T) {
	err := New(KindAutonomyDenied, "stop downgraded to SMS-only")
	var wrapped error = err

	got, ok := As(wrapped)
	if !ok || got != err {
		t.Fatalf("As did not recover the original *Error: %v, %v", got, ok)
	}
	if KindOf(wrapped) != KindAutonomyDenied {
		t.Errorf("KindOf = %q, want %q", KindOf(wrapped), KindAutonomyDenied)
	}

	plain := errors.New("not an orcherr")
	if KindOf(plain) != "" {
		t.Errorf("KindOf of a plain error should be empty, got %q", KindOf(plain))
	}
	if _, ok := As(plain); ok {
		t.Error("As should fail for a plain error")
	}
}
