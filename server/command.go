// File: server/command.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/momentics/wsrelay/api"
	core "github.com/momentics/wsrelay/core/protocol"
)

// CommandKind selects what the loop does with a posted Command.
type CommandKind int

const (
	// CmdBroadcast sends Payload to every open connection except From.
	CmdBroadcast CommandKind = iota
	// CmdReload calls Load on the loop goroutine and broadcasts the result.
	CmdReload
	// CmdShutdown closes every connection and ends Run.
	CmdShutdown
	// CmdCall runs Fn on the loop goroutine.
	CmdCall
)

func (k CommandKind) String() string {
	switch k {
	case CmdBroadcast:
		return "broadcast"
	case CmdReload:
		return "reload"
	case CmdShutdown:
		return "shutdown"
	case CmdCall:
		return "call"
	default:
		return "unknown"
	}
}

// Command is a request handed to the loop goroutine through the mailbox.
type Command struct {
	Kind CommandKind

	// Opcode of broadcast frames; the zero value means TEXT.
	Opcode  core.Opcode
	Payload []byte
	// From is skipped by CmdBroadcast; zero skips nobody.
	From api.ConnID

	Load func() ([]byte, error)
	Fn   func(rt *Runtime)
}

func (c Command) opcode() core.Opcode {
	if c.Opcode == core.OpcodeContinuation {
		return core.OpcodeText
	}
	return c.Opcode
}
