package tester

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func message(msgAndArgs []any) string {
	if len(msgAndArgs) == 0 {
		return ""
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprint(msgAndArgs...)
}

// Eq asserts that got == want using reflect.DeepEqual for non-comparable types.
func Eq[T any](t *testing.T, got, want T, msgAndArgs ...any) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		if m := message(msgAndArgs); m != "" {
			t.Fatalf("%s: got=%v want=%v", m, got, want)
		}
		t.Fatalf("got=%v want=%v", got, want)
	}
}

// True asserts that cond is true.
func True(t *testing.T, cond bool, msgAndArgs ...any) {
	t.Helper()
	if !cond {
		if m := message(msgAndArgs); m != "" {
			t.Fatal(m)
		}
		t.Fatalf("expected condition to be true")
	}
}

// False asserts that cond is false.
func False(t *testing.T, cond bool, msgAndArgs ...any) {
	t.Helper()
	if cond {
		if m := message(msgAndArgs); m != "" {
			t.Fatal(m)
		}
		t.Fatalf("expected condition to be false")
	}
}

// NoErr asserts that err is nil.
func NoErr(t *testing.T, err error, msgAndArgs ...any) {
	t.Helper()
	if err != nil {
		if m := message(msgAndArgs); m != "" {
			t.Fatalf("%s: %v", m, err)
		}
		t.Fatalf("unexpected error: %v", err)
	}
}

// ErrIs asserts that err matches target via errors.Is.
func ErrIs(t *testing.T, err, target error, msgAndArgs ...any) {
	t.Helper()
	if !errors.Is(err, target) {
		if m := message(msgAndArgs); m != "" {
			t.Fatalf("%s: got error %v, want %v", m, err, target)
		}
		t.Fatalf("got error %v, want %v", err, target)
	}
}
