// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

// ConnID identifies a connection for its whole lifetime. IDs are assigned in
// admission order and never reused within a process.
type ConnID uint64

// Role tells which side of the handshake a connection played.
type Role int

const (
	RoleServer Role = iota // accepted by a listener
	RoleClient             // dialed by this process
)

func (r Role) String() string {
	if r == RoleClient {
		return "client-side"
	}
	return "server-side"
}

// State enumerates the lifecycle of a connection.
type State int32

const (
	StateConnecting State = iota
	StateHandshaking
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
