// Package errors provides the structured error type shared by every pixel-chunk component.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error so that callers can decide how to react to it
// without inspecting messages.
type Kind string

const (
	KindOther                  Kind = ""
	KindInvalid                Kind = "invalid"
	KindOutOfRange             Kind = "out_of_range"
	KindNoSuchProject          Kind = "no_such_project"
	KindNoSuchSnapshot         Kind = "no_such_snapshot"
	KindConcurrentModification Kind = "concurrent_modification"
	KindInvalidState           Kind = "invalid_state"
	KindConnectionLost         Kind = "connection_lost"
	KindCommitFailed           Kind = "commit_failed"
	KindInternal               Kind = "internal"
)

// Op names the operation during which an error occurred, e.g. "sqlite.AppendSnapshot".
type Op string

// Component names the package or subsystem that produced an error, e.g. "storage/sqlite".
type Component string

const (
	OpOpen      Op = "open"
	OpRecord    Op = "record"
	OpCommit    Op = "commit"
	OpRebase    Op = "rebase"
	OpCancel    Op = "cancel"
	OpCreate    Op = "create"
	OpLoad      Op = "load"
	OpAppend    Op = "append"
	OpDiff      Op = "diff"
	OpDecode    Op = "decode"
	OpTransport Op = "transport"
	OpClose     Op = "close"
)

// Error is the error type returned across package boundaries.
type Error struct {
	// Operation during which the error occurred
	Op Op

	// Component that generated the error (e.g., "store", "transport")
	Component Component

	// Kind of failure
	Kind Kind

	// Underlying error
	Err error

	// Whether the operation can be retried
	Retryable bool

	// Metadata for additional context
	Metadata map[string]interface{}
}

func (e *Error) Error() string {
	var msg string
	switch {
	case e.Op != "" && e.Component != "":
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	case e.Op != "":
		msg = fmt.Sprintf("%s operation failed", e.Op)
	case e.Component != "":
		msg = fmt.Sprintf("%s component failed", e.Component)
	default:
		msg = "operation failed"
	}

	if e.Kind != KindOther {
		msg += fmt.Sprintf(" [%s]", e.Kind)
	}

	if e.Err == nil {
		return msg
	}
	return msg + fmt.Sprintf(": %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds an *Error from its arguments. Recognised argument types are Op,
// Component, Kind, error and string; a string becomes a message that wraps
// the error argument, or the error itself when no error is given. If the
// wrapped error is itself an *Error, its Kind and Retryable flag are inherited
// unless overridden.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("call to errors.E with no arguments")
	}
	e := &Error{}
	var msg string
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Component:
			e.Component = a
		case Kind:
			e.Kind = a
		case string:
			msg = a
		case *Error:
			cp := *a
			e.Err = &cp
		case error:
			e.Err = a
		case nil:
		default:
			panic(fmt.Sprintf("unknown type %T, value %v in errors.E call", arg, arg))
		}
	}

	if msg != "" {
		if e.Err != nil {
			e.Err = fmt.Errorf("%s: %w", msg, e.Err)
		} else {
			e.Err = errors.New(msg)
		}
	}

	var inner *Error
	if errors.As(e.Err, &inner) {
		if e.Kind == KindOther {
			e.Kind = inner.Kind
		}
		e.Retryable = e.Retryable || inner.Retryable
	}
	return e
}

// New creates a new Error.
func New(op Op, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewWithComponent creates a new Error with component information.
func NewWithComponent(op Op, component Component, err error) *Error {
	return &Error{
		Op:        op,
		Component: component,
		Err:       err,
	}
}

// NewStorageError creates a retryable storage error.
func NewStorageError(op Op, cause error) *Error {
	return &Error{
		Op:        op,
		Component: "store",
		Kind:      KindInternal,
		Err:       cause,
		Retryable: true,
	}
}

// NewValidationError creates a validation error. Validation errors never mutate state and are not retryable.
func NewValidationError(op Op, cause error) *Error {
	return &Error{
		Op:   op,
		Kind: KindInvalid,
		Err:  cause,
	}
}

// NewNetworkError creates a connection-lost error.
func NewNetworkError(op Op, cause error) *Error {
	return &Error{
		Op:        op,
		Component: "transport",
		Kind:      KindConnectionLost,
		Err:       cause,
		Retryable: true,
	}
}

// KindOf returns the Kind of the first *Error in err's chain that carries one.
func KindOf(err error) Kind {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return KindOther
		}
		if e.Kind != KindOther {
			return e.Kind
		}
		err = e.Err
	}
	return KindOther
}

// Is reports whether err is an *Error of the given kind.
func Is(kind Kind, err error) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable checks if an error is a retryable Error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
