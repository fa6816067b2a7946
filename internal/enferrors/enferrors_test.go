package enferrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	base := errors.New("conflict")
	err := Transient("store.Update", base)

	if !Is(err, KindTransient) {
		t.Fatal("expected Is(err, KindTransient) to match")
	}
	if Is(err, KindExternal) {
		t.Fatal("expected Is(err, KindExternal) not to match a KindTransient error")
	}
}

func TestIsSeesThroughFmtErrorfWrapping(t *testing.T) {
	inner := Configuration("config.Load", errors.New("missing dsn"))
	wrapped := fmt.Errorf("zoneupdate.attemptUpdate: %w", inner)

	if !Is(wrapped, KindConfiguration) {
		t.Fatal("expected Is to see through a %w-wrapped *Error")
	}
}

func TestUnwrapReturnsUnderlyingError(t *testing.T) {
	base := errors.New("disk full")
	err := External("signconf.Write", base)
	if !errors.Is(err, base) {
		t.Fatal("expected errors.Is to find the wrapped base error")
	}
}

func TestErrorStringIncludesOpAndKind(t *testing.T) {
	err := PolicyViolation("zoneupdate.DSSubmit", errors.New("not in UNSUBMITTED"))
	got := err.Error()
	want := "zoneupdate.DSSubmit: policy-violation: not in UNSUBMITTED"
	if got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
