// Package errors defines the error taxonomy of the VOTable codec.
//
// Every failure the codec can produce carries one of the codes below, so
// callers can decide at which granularity to recover (usually: skip the
// current TABLE, keep the document).
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode identifies a class of codec failure.
type ErrorCode string

const (
	// ErrParse indicates malformed XML in the input document.
	ErrParse ErrorCode = "votable-parse-error"
	// ErrBadVOTable indicates structurally valid XML that is not a usable
	// VOTable (unknown table serialization, non-base64 stream, ...).
	ErrBadVOTable ErrorCode = "bad-votable"
	// ErrUnknownDatatype indicates a FIELD or PARAM declared a datatype
	// the codec does not know.
	ErrUnknownDatatype ErrorCode = "unknown-datatype"
	// ErrBadArraysize indicates an arraysize attribute that does not match
	// the VOTable grammar, or a variable dimension before the last one.
	ErrBadArraysize ErrorCode = "bad-arraysize"
	// ErrUnsupportedEncoding indicates no codec exists for a field's
	// (datatype, shape, format) combination.
	ErrUnsupportedEncoding ErrorCode = "unsupported-encoding"
	// ErrBadLiteral indicates a cell or binary value could not be
	// converted to its declared type. Fatal for the current table only.
	ErrBadLiteral ErrorCode = "bad-literal"
	// ErrTruncatedRecord indicates a binary stream ended in the middle of
	// a row, anywhere other than at the first field.
	ErrTruncatedRecord ErrorCode = "truncated-record"
	// ErrMissingNull indicates an encode of NULL for a field that has no
	// configured null representation in a format that needs one.
	ErrMissingNull ErrorCode = "missing-null-representation"
)

// Codec describes a codec failure with its code and optional field,
// offending value, and source location context.
//
//nolint:errname // public API name uses codec domain term.
type Codec struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   string
	Line    int
	Column  int
	Err     error
}

// Error formats the error with code, field, value and location context.
func (e *Codec) Error() string {
	if e == nil {
		return "codec <nil>"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	if e.Field != "" {
		b.WriteString(fmt.Sprintf(" (field %s)", e.Field))
	}
	if e.Value != "" {
		b.WriteString(fmt.Sprintf(" (value %q)", e.Value))
	}
	if e.Line > 0 && e.Column > 0 {
		b.WriteString(fmt.Sprintf(" at line %d, column %d", e.Line, e.Column))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying error, if any.
func (e *Codec) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New builds a Codec error from a code and message.
func New(code ErrorCode, msg string) *Codec {
	return &Codec{Code: code, Message: msg}
}

// Newf formats a message and builds a Codec error.
func Newf(code ErrorCode, format string, args ...any) *Codec {
	return &Codec{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a Codec error around an underlying cause.
func Wrap(code ErrorCode, msg string, err error) *Codec {
	return &Codec{Code: code, Message: msg, Err: err}
}

// BadLiteral builds the conversion failure for a field and raw value.
func BadLiteral(field, value string, err error) *Codec {
	return &Codec{Code: ErrBadLiteral, Message: "cannot convert literal", Field: field, Value: value, Err: err}
}

// CodeOf extracts the codec error code from err, or "" if err carries none.
func CodeOf(err error) ErrorCode {
	var ce *Codec
	if errors.As(err, &ce) && ce != nil {
		return ce.Code
	}
	return ""
}

// IsCode reports whether err carries the given codec error code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
