// Package ggerr defines the error-kind taxonomy shared by the object codec,
// the frame codec, the socket pool, the core bus and the IPC gateway. A
// single Kind travels across every layer boundary so that a bus "error"
// header or a gateway service-model-type string can be derived from the same
// value that Go code branches on with errors.Is/errors.As.
package ggerr

import "fmt"

// Kind is the wire-level error taxonomy from the specification's error
// handling design. Its int32 value is what crosses the bus "error" header.
type Kind int32

const (
	Ok Kind = iota
	Invalid
	Parse
	NoMem
	Range
	NoEntry
	Config
	Fatal
	Remote
	NotConnected
	Failure
)

func (k Kind) String() string {
	switch k {
	case Ok:
		return "ok"
	case Invalid:
		return "invalid"
	case Parse:
		return "parse"
	case NoMem:
		return "nomem"
	case Range:
		return "range"
	case NoEntry:
		return "noentry"
	case Config:
		return "config"
	case Fatal:
		return "fatal"
	case Remote:
		return "remote"
	case NotConnected:
		return "notconnected"
	case Failure:
		return "failure"
	default:
		return fmt.Sprintf("kind(%d)", int32(k))
	}
}

// Error wraps a Kind with a human-readable message. It is the one error type
// used across package boundaries in this module; errors originating from the
// standard library or third-party code are wrapped with New/Wrap before
// being returned to a caller that needs to inspect Kind.
type Error struct {
	Kind Kind
	Msg  string
	err  error // optional wrapped cause
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.err }

// Is supports errors.Is(err, SomeKind-typed sentinel) by comparing Kind when
// the target is itself an *Error with no message (a bare kind probe).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == ""
}

// New returns an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf returns an *Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and msg to a cause, preserving it for errors.Unwrap.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, err: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error, otherwise
// returns Failure. Used at the bus/gateway boundary to pick a wire code for
// an arbitrary Go error.
func KindOf(err error) Kind {
	if err == nil {
		return Ok
	}
	var e *Error
	if asError(err, &e) {
		return e.Kind
	}
	return Failure
}

// asError is a tiny errors.As shim kept local to avoid importing "errors"
// just for this one call site used twice.
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
