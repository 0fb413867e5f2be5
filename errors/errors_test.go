package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name      string
		op        Op
		component Component
		kind      Kind
		err       error
		want      string
	}{
		{
			name:      "with component and kind",
			op:        OpAppend,
			component: "store",
			kind:      KindConcurrentModification,
			err:       fmt.Errorf("latest moved"),
			want:      "append operation failed in store component [concurrent_modification]: latest moved",
		},
		{
			name:      "with component no kind",
			op:        OpAppend,
			component: "store",
			err:       fmt.Errorf("disk full"),
			want:      "append operation failed in store component: disk full",
		},
		{
			name: "without component with kind",
			op:   OpRecord,
			kind: KindOutOfRange,
			err:  fmt.Errorf("index 300"),
			want: "record operation failed [out_of_range]: index 300",
		},
		{
			name: "without component or kind",
			op:   OpCommit,
			err:  fmt.Errorf("boom"),
			want: "commit operation failed: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Error{
				Op:        tt.op,
				Component: tt.component,
				Kind:      tt.kind,
				Err:       tt.err,
			}

			if got := e.Error(); got != tt.want {
				t.Errorf("Error.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestE(t *testing.T) {
	cause := fmt.Errorf("no rows")
	err := E(Op("sqlite.GetLatest"), Component("storage/sqlite"), KindNoSuchProject, cause, "project p1")

	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("E() did not produce *Error: %T", err)
	}
	if e.Op != "sqlite.GetLatest" {
		t.Errorf("Op = %v", e.Op)
	}
	if e.Component != "storage/sqlite" {
		t.Errorf("Component = %v", e.Component)
	}
	if e.Kind != KindNoSuchProject {
		t.Errorf("Kind = %v", e.Kind)
	}
	if !errors.Is(err, cause) {
		t.Error("E() lost the wrapped cause")
	}
	if got := e.Err.Error(); got != "project p1: no rows" {
		t.Errorf("message = %q", got)
	}
}

func TestE_InheritsKind(t *testing.T) {
	inner := E(Op("memory.AppendSnapshot"), KindConcurrentModification, "stale latest")
	outer := E(Op("resolver.Commit"), Component("resolver"), inner)

	if KindOf(outer) != KindConcurrentModification {
		t.Errorf("KindOf() = %v, want %v", KindOf(outer), KindConcurrentModification)
	}
	if !Is(KindConcurrentModification, fmt.Errorf("wrapped: %w", outer)) {
		t.Error("Is() failed through fmt wrapping")
	}
}

func TestE_MessageOnly(t *testing.T) {
	err := E(Op("client.Rebase"), KindInvalidState, "not in conflicted state")
	if got := err.Error(); got != "client.Rebase operation failed [invalid_state]: not in conflicted state" {
		t.Errorf("Error() = %q", got)
	}
}

func TestConstructors(t *testing.T) {
	cause := fmt.Errorf("test error")

	t.Run("NewStorageError", func(t *testing.T) {
		e := NewStorageError(OpLoad, cause)
		if e.Component != "store" || !e.Retryable || e.Err != cause {
			t.Errorf("unexpected storage error: %+v", e)
		}
	})

	t.Run("NewValidationError", func(t *testing.T) {
		e := NewValidationError(OpRecord, cause)
		if e.Kind != KindInvalid || e.Retryable {
			t.Errorf("unexpected validation error: %+v", e)
		}
	})

	t.Run("NewNetworkError", func(t *testing.T) {
		e := NewNetworkError(OpTransport, cause)
		if e.Kind != KindConnectionLost || e.Component != "transport" || !e.Retryable {
			t.Errorf("unexpected network error: %+v", e)
		}
	})

	t.Run("NewWithComponent", func(t *testing.T) {
		e := NewWithComponent(OpCommit, "session", cause)
		if e.Component != "session" || e.Op != OpCommit {
			t.Errorf("unexpected error: %+v", e)
		}
	})
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"retryable", NewStorageError(OpAppend, fmt.Errorf("locked")), true},
		{"non-retryable", New(OpCommit, fmt.Errorf("permanent")), false},
		{"plain error", fmt.Errorf("regular error"), false},
		{"wrapped retryable", fmt.Errorf("wrapped: %w", NewNetworkError(OpTransport, fmt.Errorf("eof"))), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapOpComponent(t *testing.T) {
	if WrapOpComponent(nil, "sqlite.AppendSnapshot", "storage/sqlite") != nil {
		t.Fatal("expected nil for nil error")
	}

	err := WrapOpComponentKind(fmt.Errorf("busy"), "sqlite.AppendSnapshot", "storage/sqlite", KindInternal)
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if e.Op != "sqlite.AppendSnapshot" || e.Component != "storage/sqlite" || e.Kind != KindInternal {
		t.Errorf("unexpected wrapped error: %+v", e)
	}
}
