// Package fimoerr defines the error-kind catalog surfaced by the module
// core: a single concrete error type carrying a programmatic code, a
// message, free-form context, and an optional wrapped cause.
package fimoerr

import "fmt"

// Kind is a programmatic error code, stable across error messages.
type Kind string

const (
	NotFound            Kind = "NOT_FOUND"
	AlreadyPresent      Kind = "ALREADY_PRESENT"
	VersionIncompatible Kind = "VERSION_INCOMPATIBLE"
	AccessDenied        Kind = "ACCESS_DENIED"
	WouldCycle          Kind = "WOULD_CYCLE"
	InvalidState        Kind = "INVALID_STATE"
	LoadFailed          Kind = "LOAD_FAILED"
	Cancelled           Kind = "CANCELLED"
	Malformed           Kind = "MALFORMED"
)

// Error is the concrete error type returned by every public operation in
// the module core.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
	Cause   error
}

// New builds an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error that carries cause as its Unwrap target.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// With attaches a context key/value pair and returns the receiver for
// chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any, 1)
	}
	e.Context[key] = value
	return e
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, fimoerr.New(fimoerr.NotFound, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Of reports the Kind of err if it is (or wraps) a *Error, and ok=false
// otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if asError(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
