// Package errorsx defines the closed set of error kinds the core surfaces
// to callers, wrapping causes the way the wider example pack annotates
// error chains.
package errorsx

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the closed enumeration of error kinds the design names.
type Kind string

const (
	OutOfMemory Kind = "out_of_memory"
	ShapeMismatch Kind = "shape_mismatch"
	UnsupportedOpcode Kind = "unsupported_opcode"
	UnsupportedExtensionFunction Kind = "unsupported_extension_function"
	ExecutorFailure Kind = "executor_failure"
)

// Error is a typed, causal error surfaced by the core.
type Error struct {
	Kind Kind
	Op string // component/operation that raised it, e.g. "recorder.Record"
	cause error
}

// New creates an Error of the given kind with a formatted message, with no
// underlying cause.
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return Wrap(nil, kind, op, format, args...)
}

// Wrap creates an Error of the given kind, wrapping cause with pkg/errors so
// the original stack context survives through %+v.
func Wrap(cause error, kind Kind, op, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	var wrapped error
	if cause != nil {
		wrapped = errors.Wrap(cause, msg)
	} else {
		wrapped = errors.New(msg)
	}
	return &Error{Kind: kind, Op: op, cause: wrapped}
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.cause)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

// Cause returns the root cause via pkg/errors, for callers that want the
// innermost error rather than the wrapped chain.
func (e *Error) Cause() error { return errors.Cause(e.cause) }

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
