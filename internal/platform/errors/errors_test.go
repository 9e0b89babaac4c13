package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	sentinel := New(CodeStreamClosed, "content stream is closed")
	err := fmt.Errorf("append: %w", WithMetadata(CodeStreamClosed, "stream cs-1 closed", map[string]string{"stream": "cs-1"}))

	if !stderrors.Is(err, sentinel) {
		t.Fatal("expected errors.Is to match by code")
	}
	if stderrors.Is(err, New(CodeStreamNotFound, "")) {
		t.Fatal("expected different code not to match")
	}
}

func TestWrapUnwrapsCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(CodeUnknown, "append events", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable")
	}
	if got := err.Error(); got != "append events" {
		t.Fatalf("Error() = %q, want %q", got, "append events")
	}
}

func TestErrorFallsBackToCauseMessage(t *testing.T) {
	err := Wrap(CodeUnknown, "", stderrors.New("boom"))
	if got := err.Error(); got != "boom" {
		t.Fatalf("Error() = %q, want %q", got, "boom")
	}
}

func TestClass(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{name: "nil", err: nil, want: ""},
		{name: "validation", err: New(CodeInvalidSubtreeTag, "bad tag"), want: ClassValidation},
		{name: "relational", err: New(CodeWeightsAreIncomparable, "keys differ"), want: ClassRelational},
		{name: "concurrency", err: fmt.Errorf("commit: %w", New(CodeConcurrencyConflict, "conflict")), want: ClassConcurrency},
		{name: "precondition", err: New(CodeWorkspaceOutdated, "outdated"), want: ClassPrecondition},
		{name: "not found", err: New(CodeStreamNotFound, "missing"), want: ClassNotFound},
		{name: "plain error", err: stderrors.New("io"), want: ClassInfrastructure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Class(tt.err); got != tt.want {
				t.Fatalf("Class() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetCodeDefaultsToUnknown(t *testing.T) {
	if got := GetCode(stderrors.New("x")); got != CodeUnknown {
		t.Fatalf("GetCode() = %q, want %q", got, CodeUnknown)
	}
}
