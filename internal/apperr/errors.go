// Package apperr defines the typed failures the core surfaces at its
// boundary, so callers can switch on a Kind instead of matching substrings
// in a wrapped error string.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure. Transport layers switch on Kind
// rather than inspecting error text.
type Kind int

const (
	// KindUnknown is never set explicitly; it is the zero value returned by
	// Classify for errors that did not originate in this package.
	KindUnknown Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindUnknownInstrument
	KindInsufficientFunds
	KindDuplicateInstrument
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindUnknownInstrument:
		return "unknown_instrument"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindDuplicateInstrument:
		return "duplicate_instrument"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a typed failure carrying a Kind, a human-readable message, and
// optionally a wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, apperr.New(kind, "")) style kind comparisons
// by comparing Kind alone, ignoring Message and Cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Classify reports the Kind of err, or KindUnknown if err is not (or does
// not wrap) an *Error. Transport layers use this to decide the HTTP status.
func Classify(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Unauthenticated(msg string) *Error     { return New(KindUnauthenticated, msg) }
func Forbidden(msg string) *Error           { return New(KindForbidden, msg) }
func NotFound(msg string) *Error            { return New(KindNotFound, msg) }
func UnknownInstrument(msg string) *Error   { return New(KindUnknownInstrument, msg) }
func InsufficientFunds(msg string) *Error   { return New(KindInsufficientFunds, msg) }
func DuplicateInstrument(msg string) *Error { return New(KindDuplicateInstrument, msg) }
func Validation(msg string) *Error          { return New(KindValidation, msg) }
