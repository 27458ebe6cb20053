package auth

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that translate it into a response.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalid marks structurally unacceptable input (missing credentials,
	// a list that is not a list, an unknown renew token).
	KindInvalid
	KindBadRequest
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindConflict
	// KindNoChange is not a failure: the request was valid but had no effect.
	KindNoChange
	KindRateLimited
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindNoChange:
		return "no_change"
	case KindRateLimited:
		return "rate_limited"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the error type returned by the auth package and its stores.
type Error struct {
	Kind    Kind
	Message string
	// Data is optional structured detail, such as the missing permission list.
	Data any
	Err  error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// holds for every not-found error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidInput  = &Error{Kind: KindBadRequest, Message: "invalid input"}
	ErrNotAcceptable = &Error{Kind: KindInvalid, Message: "not acceptable"}
	ErrNotFound      = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict      = &Error{Kind: KindConflict, Message: "conflict"}
	ErrUnauthorized  = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrForbidden     = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrNoChange      = &Error{Kind: KindNoChange, Message: "no change"}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// DataOf returns the structured detail attached to err, if any.
func DataOf(err error) any {
	var e *Error
	if errors.As(err, &e) {
		return e.Data
	}
	return nil
}

// MessageOf returns a client-safe message for err. Causes wrapped inside
// an *Error are not exposed.
func MessageOf(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	if e.Err != nil {
		return e.Message
	}
	return err.Error()
}
