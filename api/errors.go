// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error classification for wsrelay.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrTransportClosed = fmt.Errorf("transport is closed")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrNotSupported    = fmt.Errorf("operation not supported")
	ErrAlreadyRunning  = fmt.Errorf("already running")
)

// Kind classifies a failure by the scope it is fatal to.
type Kind int

const (
	KindUnknown Kind = iota
	// KindTransport is fatal to the single affected connection.
	KindTransport
	// KindProtocol is fatal to the connection attempt or connection.
	KindProtocol
	// KindApplication drops the message; the connection stays open.
	KindApplication
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindApplication:
		return "application"
	default:
		return "unknown"
	}
}

// Error represents a classified error with context.
type Error struct {
	Kind    Kind
	Op      string
	Err     error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg += " during " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if len(e.Context) > 0 {
		msg += fmt.Sprintf(" (context: %+v)", e.Context)
	}
	return msg
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.Err }

// NewError creates a new classified error.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// TransportError wraps err as a transport failure.
func TransportError(op string, err error) *Error { return NewError(KindTransport, op, err) }

// ProtocolError wraps err as a protocol failure.
func ProtocolError(op string, err error) *Error { return NewError(KindProtocol, op, err) }

// ApplicationError wraps err as an application failure.
func ApplicationError(op string, err error) *Error { return NewError(KindApplication, op, err) }

// KindOf returns the classification of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
