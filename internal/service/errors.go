package service

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable category of a booking failure.
type Kind string

const (
	KindValidation     Kind = "validation_error"
	KindNotFound       Kind = "not_found"
	KindQuotaExhausted Kind = "quota_exhausted"
	KindQuotaExceeded  Kind = "quota_exceeded"
	KindEventExpired   Kind = "event_expired"
)

// Class is the HTTP-style status class of a Kind.  Mapping a class to a wire
// status code is left to the transport.
type Class string

const (
	ClassBadRequest Class = "bad_request"
	ClassNotFound   Class = "not_found"
)

// Class returns the status class for k.
func (k Kind) Class() Class {
	if k == KindNotFound {
		return ClassNotFound
	}
	return ClassBadRequest
}

// Error is returned by every engine for rule violations.  Ref names the
// ticket code or booking id that triggered the failure so callers can retry
// with corrected input.  Storage failures are never wrapped in an Error.
type Error struct {
	Kind   Kind
	Ref    string
	Detail string
}

func (e *Error) Error() string { return e.Detail }

// Is reports whether target is the sentinel for e's kind, so callers can
// write errors.Is(err, service.ErrQuotaExceeded).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Ref == "" || t.Ref == e.Ref)
}

// Sentinels, one per kind.
var (
	ErrValidation     = &Error{Kind: KindValidation, Detail: "validation failed"}
	ErrNotFound       = &Error{Kind: KindNotFound, Detail: "not found"}
	ErrQuotaExhausted = &Error{Kind: KindQuotaExhausted, Detail: "quota exhausted"}
	ErrQuotaExceeded  = &Error{Kind: KindQuotaExceeded, Detail: "quota exceeded"}
	ErrEventExpired   = &Error{Kind: KindEventExpired, Detail: "event expired"}
)

func newError(kind Kind, ref, format string, args ...any) *Error {
	return &Error{Kind: kind, Ref: ref, Detail: fmt.Sprintf(format, args...)}
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
