// Package qerr defines the structured errors returned to API callers.
//
// Every failure inside command execution carries a JSON-pointer style
// path locating the offending value in the caller's original request
// payload. Handlers raise errors with an empty path; the dispatcher and
// the bulk fan-out prepend field names and element indices on the way
// out, so a failure three levels deep inside nested bulk commands still
// reports a full path such as $.args[1].args[0].table.
package qerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Code classifies an error for status mapping and client handling.
type Code string

const (
	CodeParseFailed      Code = "parse-failed"
	CodeValidationFailed Code = "validation-failed"
	CodeNotExists        Code = "not-exists"
	CodeAlreadyExists    Code = "already-exists"
	CodeAlreadyTracked   Code = "already-tracked"
	CodeNotTracked       Code = "not-tracked"
	CodePermissionDenied Code = "permission-denied"
	CodePostgresError    Code = "postgres-error"
	CodeRemoteError      Code = "remote-error"
	CodeUnexpected       Code = "unexpected"
)

// Error is a structured command-execution error.
type Error struct {
	Code Code
	// Path segments from the request root down to the offending value,
	// not including the leading "$". The first segment is always "args"
	// once an error has crossed the dispatcher boundary.
	Path []Segment
	Msg  string
	// Internal carries the underlying cause; it is logged but never
	// rendered to the caller verbatim for store errors.
	Internal error
}

// Segment is one element of an error path: a field name or an index.
type Segment struct {
	Field string
	Index int
	// IsIndex distinguishes index 0 from an unset field segment.
	IsIndex bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.RenderPath(), e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Internal
}

// RenderPath renders the accumulated path as a JSON-pointer style
// dotted path rooted at $.
func (e *Error) RenderPath() string {
	var b strings.Builder
	b.WriteString("$")
	for _, s := range e.Path {
		if s.IsIndex {
			fmt.Fprintf(&b, "[%d]", s.Index)
		} else {
			b.WriteString(".")
			b.WriteString(s.Field)
		}
	}
	return b.String()
}

// MarshalJSON renders the wire form {"path":..., "error":..., "code":...}.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Path string `json:"path"`
		Err  string `json:"error"`
		Code Code   `json:"code"`
	}{
		Path: e.RenderPath(),
		Err:  e.Msg,
		Code: e.Code,
	})
}

// New creates an error with no path; the path accumulates as the error
// propagates out through WithField and WithIndex.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Newf creates a formatted error with no path.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an error under the given code with cause attached as
// the internal detail.
func Wrap(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Msg: msg, Internal: cause}
}

// Postgres wraps a store-level failure.
func Postgres(cause error) *Error {
	return &Error{Code: CodePostgresError, Msg: "postgres query error", Internal: cause}
}

// Internal flags an invariant violation. These are always fatal for the
// request and never retried.
func Internal(msg string) *Error {
	return &Error{Code: CodeUnexpected, Msg: msg}
}

// From coerces any error into a *Error, preserving structured errors
// as-is and wrapping everything else as unexpected.
func From(err error) *Error {
	var qe *Error
	if errors.As(err, &qe) {
		return qe
	}
	return &Error{Code: CodeUnexpected, Msg: err.Error(), Internal: err}
}

// WithField returns err with a field segment prepended to its path.
func WithField(err error, field string) *Error {
	qe := From(err)
	return &Error{
		Code:     qe.Code,
		Path:     append([]Segment{{Field: field}}, qe.Path...),
		Msg:      qe.Msg,
		Internal: qe.Internal,
	}
}

// WithIndex returns err with an index segment prepended to its path.
// Bulk execution uses this to pin failures to the offending element.
func WithIndex(err error, i int) *Error {
	qe := From(err)
	return &Error{
		Code:     qe.Code,
		Path:     append([]Segment{{Index: i, IsIndex: true}}, qe.Path...),
		Msg:      qe.Msg,
		Internal: qe.Internal,
	}
}

// CodeOf extracts the code from any error.
func CodeOf(err error) Code {
	return From(err).Code
}
