// Package apperr defines the error taxonomy shared by the engine services.
//
// Stores return driver errors or their own sentinels; services translate
// them into an *Error carrying one of the kinds below. Handlers map the kind
// to an HTTP status without inspecting messages.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a failure by what the caller can do about it.
type Kind string

const (
	KindValidation    Kind = "validation"    // malformed or missing input; correct and retry
	KindNotFound      Kind = "not_found"     // referenced team, assignment or code does not exist
	KindConflict      Kind = "conflict"      // a uniqueness invariant would be violated
	KindAuthorization Kind = "authorization" // role lacks the capability
	KindPersistence   Kind = "persistence"   // storage failure, surfaced verbatim
)

// Sentinels usable with errors.Is. Any *Error matches the sentinel of its kind.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrPersistence   = &Error{Kind: KindPersistence}
)

// Error is a classified engine failure.
type Error struct {
	Kind    Kind
	Op      string            // operation name, e.g. "teams.JoinTeam"
	Message string            // safe to show to the caller
	Fields  map[string]string // entity ids for diagnostics; never secrets
	Err     error             // underlying cause, if any
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(string(e.Kind))
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%s=%s", k, e.Fields[k])
		}
		b.WriteByte(']')
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict) works
// regardless of message or op.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// With returns a copy of e with an extra diagnostic field.
func (e *Error) With(key, value string) *Error {
	cp := *e
	cp.Fields = make(map[string]string, len(e.Fields)+1)
	for k, v := range e.Fields {
		cp.Fields[k] = v
	}
	cp.Fields[key] = value
	return &cp
}

func newErr(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

// Validation reports malformed or missing input.
func Validation(op, msg string) *Error { return newErr(KindValidation, op, msg, nil) }

// NotFound reports a missing referenced entity.
func NotFound(op, msg string) *Error { return newErr(KindNotFound, op, msg, nil) }

// Conflict reports a uniqueness violation.
func Conflict(op, msg string, err error) *Error { return newErr(KindConflict, op, msg, err) }

// Authorization reports a missing capability.
func Authorization(op, msg string) *Error { return newErr(KindAuthorization, op, msg, nil) }

// Persistence wraps a storage failure. The result is never nil; a nil err
// yields a persistence error without a cause.
func Persistence(op string, err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		// Already classified below us; keep the original kind.
		return ae
	}
	return newErr(KindPersistence, op, "storage operation failed", err)
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
