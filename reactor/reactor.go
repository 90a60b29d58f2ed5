// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral event reactor interface for readiness multiplexing.

package reactor

import "time"

// WakeToken is the UserData reported when Wake interrupted a Wait.
const WakeToken = ^uintptr(0)

// EventReactor defines basic reactor operations across OS platforms.
// Register, Unregister and Wait belong to the loop goroutine; Wake may be
// called from anywhere.
type EventReactor interface {
	// Register adds fd to the read-readiness set.
	Register(fd uintptr, userData uintptr) error

	// Unregister removes fd from the set. Unknown descriptors are ignored.
	Unregister(fd uintptr) error

	// Wait blocks until at least one source is ready, Wake is called or the
	// timeout expires (negative blocks forever). Ready sources are written
	// to events in registration order.
	Wait(events []Event, timeout time.Duration) (n int, err error)

	// Wake interrupts a blocked or future Wait.
	Wake() error

	// Close cleans up resources.
	Close() error
}

// Event contains event information returned by Wait call.
type Event struct {
	Fd       uintptr // File descriptor.
	UserData uintptr // User-provided data.
	Hangup   bool    // Peer hung up or descriptor errored.
}
