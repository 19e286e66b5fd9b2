package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type ErrorKind string

const (
	ErrKindNotFound          ErrorKind = "not_found"
	ErrKindStaleState        ErrorKind = "stale_state"
	ErrKindForbidden         ErrorKind = "forbidden"
	ErrKindFieldNotEditable  ErrorKind = "field_not_editable"
	ErrKindIllegalTransition ErrorKind = "illegal_transition"
	ErrKindUnknownTransition ErrorKind = "unknown_transition"
	ErrKindValidationFailed  ErrorKind = "validation_failed"
	ErrKindConflict          ErrorKind = "conflict"
	ErrKindInternal          ErrorKind = "internal"
)

// Error is the single error type crossing the engine boundary.
// Fields is keyed by field path and only set for validation_failed,
// field_not_editable and conflict.
type Error struct {
	Kind    ErrorKind
	Message string
	Fields  map[string][]string
	Err     error
}

var (
	ErrNotFound          = &Error{Kind: ErrKindNotFound}
	ErrStaleState        = &Error{Kind: ErrKindStaleState}
	ErrForbidden         = &Error{Kind: ErrKindForbidden}
	ErrFieldNotEditable  = &Error{Kind: ErrKindFieldNotEditable}
	ErrIllegalTransition = &Error{Kind: ErrKindIllegalTransition}
	ErrUnknownTransition = &Error{Kind: ErrKindUnknownTransition}
	ErrValidationFailed  = &Error{Kind: ErrKindValidationFailed}
	ErrConflict          = &Error{Kind: ErrKindConflict}
	ErrInternal          = &Error{Kind: ErrKindInternal}
)

func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps a programmer or infrastructure error.
func Internal(err error, msg string) *Error {
	return &Error{Kind: ErrKindInternal, Message: msg, Err: err}
}

func ValidationFailed(fields map[string][]string) *Error {
	return &Error{Kind: ErrKindValidationFailed, Message: summarize("validation failed", fields), Fields: fields}
}

func FieldsNotEditable(fields []string) *Error {
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	out := make(map[string][]string, len(sorted))
	for _, f := range sorted {
		out[f] = []string{"not editable"}
	}
	return &Error{
		Kind:    ErrKindFieldNotEditable,
		Message: "fields not editable: " + strings.Join(sorted, ", "),
		Fields:  out,
	}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so callers can use the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf classifies err; untyped errors are internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ErrKindInternal
}

func summarize(prefix string, fields map[string][]string) string {
	if len(fields) == 0 {
		return prefix
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(fields[k], "; "))
	}
	return prefix + ": " + strings.Join(parts, ", ")
}
