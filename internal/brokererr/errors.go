package brokererr

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind names one of the five error categories the debug broker
// distinguishes when deciding whether to retry, surface, or disconnect.
type Kind string

const (
	// KindConnection means the transport is down: socket closed
	// mid-request, connect refused. Callers should disconnect and
	// recreate the client before retrying at a higher level.
	KindConnection Kind = "ConnectionError"

	// KindProtocol means the wire reply was well-formed but indicated
	// failure (remote-debug "E..", machine-control "error" field, an
	// unexpected greeting). Never retried automatically.
	KindProtocol Kind = "ProtocolError"

	// KindTimeout means the wire stayed silent past the deadline.
	// Callers may retry with a longer bound.
	KindTimeout Kind = "TimeoutError"

	// KindNotSupported means the active backend cannot serve this
	// primitive at all, e.g. a session-based backend asked for a live
	// screenshot. Never falls back silently to another backend.
	KindNotSupported Kind = "NotSupported"

	// KindArgument means the caller supplied a bad address literal,
	// omitted a required config field, or sent malformed JSON.
	KindArgument Kind = "ArgumentError"
)

// Error is the structured error type returned by every package in
// this module that can fail in a way a caller needs to branch on.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Op      string `json:"op,omitempty"`
	Time    string `json:"time"`
	cause   error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is implements errors.Is by comparing kind, message, and op.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message && e.Op == t.Op
}

// MarshalJSON stamps a fresh timestamp at serialization time rather
// than reusing whatever Time held when the error was constructed.
func (e *Error) MarshalJSON() ([]byte, error) {
	type Alias Error
	return json.Marshal(&struct {
		*Alias
		Time string `json:"time"`
	}{
		Alias: (*Alias)(e),
		Time:  time.Now().Format(time.RFC3339),
	})
}

func newError(kind Kind, op, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Op:      op,
		Time:    time.Now().Format(time.RFC3339),
		cause:   cause,
	}
}

// Connection builds a ConnectionError.
func Connection(op, message string, cause error) *Error {
	return newError(KindConnection, op, message, cause)
}

// Protocol builds a ProtocolError, typically from a malformed or
// failure-indicating wire reply.
func Protocol(op, message string, details string) *Error {
	e := newError(KindProtocol, op, message, nil)
	e.Details = details
	return e
}

// Timeout builds a TimeoutError.
func Timeout(op, message string) *Error {
	return newError(KindTimeout, op, message, nil)
}

// NotSupported builds a NotSupported error for a primitive a backend
// cannot serve.
func NotSupported(op, message string) *Error {
	return newError(KindNotSupported, op, message, nil)
}

// Argument builds an ArgumentError for a bad literal or malformed
// request body.
func Argument(op, message string) *Error {
	return newError(KindArgument, op, message, nil)
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if be, ok := err.(*Error); ok {
			e = be
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}

// HTTPStatus maps a Kind to the status code the apiserver returns for
// it, per the broker's error-handling policy: ArgumentError is a 400,
// everything else surfaces as a 502/504/501/500 depending on kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindArgument:
		return 400
	case KindNotSupported:
		return 501
	case KindTimeout:
		return 504
	case KindConnection:
		return 502
	case KindProtocol:
		return 502
	default:
		return 500
	}
}
