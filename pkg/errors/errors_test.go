package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestPrintErrorFormatting(t *testing.T) {
	err := New(ErrController, "drips are leading").SetContext("z", 1.5)
	want := "[CONTROLLER] drips are leading z=1.5"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	wrapped := AudioError("write", fmt.Errorf("device gone"))
	if got := wrapped.Error(); got != "[AUDIO] audio write failed: device gone" {
		t.Errorf("Error() = %q", got)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, ErrLaser, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestIsWalksChain(t *testing.T) {
	base := stderrors.New("io")
	inner := ZAxisError("start", base)
	outer := fmt.Errorf("start print: %w", inner)

	if !Is(outer, ErrZAxis) {
		t.Error("expected ZAXIS in chain")
	}
	if Is(outer, ErrLaser) {
		t.Error("unexpected LASER in chain")
	}
	if !stderrors.Is(outer, base) {
		t.Error("Unwrap should expose the base error")
	}
	code, ok := CodeOf(outer)
	if !ok || code != ErrZAxis {
		t.Errorf("CodeOf = %q, %v", code, ok)
	}
}

func TestFromPanic(t *testing.T) {
	recovered := func(f func()) (err *PrintError) {
		defer func() {
			err = FromPanic(recover())
		}()
		f()
		return nil
	}

	if err := recovered(func() {}); err != nil {
		t.Errorf("no panic should give nil, got %v", err)
	}

	err := recovered(func() { panic("boom") })
	if err == nil || err.Code != ErrPanic {
		t.Fatalf("expected PANIC error, got %v", err)
	}
	if err.Message != "panic: boom" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Stack == "" {
		t.Error("expected stack to be captured")
	}

	cause := stderrors.New("nil map")
	err = recovered(func() { panic(cause) })
	if !stderrors.Is(err, cause) {
		t.Error("panic error value should be wrapped")
	}
}

func TestIsConfig(t *testing.T) {
	if !IsConfig(ConfigOptionError("zaxis", "drips_per_mm")) {
		t.Error("expected config error")
	}
	if IsConfig(LaserError("on", stderrors.New("x"))) {
		t.Error("laser error is not a config error")
	}
}
