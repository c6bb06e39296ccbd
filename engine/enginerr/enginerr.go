// Package enginerr defines the typed error kinds the facade surfaces
// to callers per §7: a Kind enum plus an *Error carrying Kind,
// Message, and an optional wrapped Cause. Construction helpers keep
// the familiar fmt.Errorf("...: %w", err) wrapping idiom while giving
// callers a stable kind to switch on instead of string-matching.
package enginerr

import (
	"errors"
	"fmt"
)

// Kind classifies why a request failed.
type Kind string

const (
	// Unsupported means a missing platform capability (decompression
	// format, private filesystem, worker isolation) is required for
	// the requested path.
	Unsupported Kind = "unsupported"
	// InvalidInput means a malformed request (no file handle, unknown
	// operator, regex syntax error).
	InvalidInput Kind = "invalid_input"
	// ParseError means an unrecoverable decoding error or impossible
	// row shape was encountered while ingesting.
	ParseError Kind = "parse_error"
	// IOError means a disk read/write failure occurred; persistence
	// callers treat this as best-effort and re-queue the save.
	IOError Kind = "io_error"
	// NotReady means a query ran against an engine with no dataset
	// loaded.
	NotReady Kind = "not_ready"
	// CancelledByReload means an in-flight ingestion was pre-empted
	// by a newer loadFile call.
	CancelledByReload Kind = "cancelled_by_reload"
)

// Error is the typed error value returned at the facade boundary.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Unsupportedf builds an Unsupported error.
func Unsupportedf(format string, args ...any) *Error { return newErr(Unsupported, format, args...) }

// InvalidInputf builds an InvalidInput error.
func InvalidInputf(format string, args ...any) *Error { return newErr(InvalidInput, format, args...) }

// ParseErrorf builds a ParseError, optionally wrapping cause.
func ParseErrorf(cause error, format string, args ...any) *Error {
	return wrap(ParseError, cause, format, args...)
}

// IOErrorf builds an IOError, optionally wrapping cause.
func IOErrorf(cause error, format string, args ...any) *Error {
	return wrap(IOError, cause, format, args...)
}

// NotReadyf builds a NotReady error.
func NotReadyf(format string, args ...any) *Error { return newErr(NotReady, format, args...) }

// CancelledByReloadf builds a CancelledByReload error.
func CancelledByReloadf(format string, args ...any) *Error {
	return newErr(CancelledByReload, format, args...)
}

// Is reports whether err is an *Error of the given kind, per the
// errors.Is contract (used by callers that only care about kind).
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
