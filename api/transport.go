// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Defines the transport capability (stream connections and listeners) the
// runtime is built on, so that readiness polling can reach the OS handle.

package api

import "time"

// Conn abstracts a full-duplex stream connection.
type Conn interface {
	// Read receives up to len(p) bytes; io.EOF signals an orderly peer close.
	Read(p []byte) (n int, err error)

	// Write sends the whole buffer or returns an error.
	Write(p []byte) (n int, err error)

	// Close releases the underlying handle.
	Close() error

	// SetReadDeadline bounds the next Read; the zero value clears it.
	SetReadDeadline(t time.Time) error

	// RawFD returns the OS-level descriptor used for readiness polling.
	RawFD() (uintptr, error)

	// RemoteAddr describes the peer for diagnostics.
	RemoteAddr() string
}

// Listener accepts inbound connections.
type Listener interface {
	Accept() (Conn, error)
	Close() error
	Addr() string
	RawFD() (uintptr, error)
}
