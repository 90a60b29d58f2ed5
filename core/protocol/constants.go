// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket wire protocol constants

package protocol

// Opcode is the 4-bit frame type tag.
type Opcode byte

const (
	OpcodeContinuation Opcode = 0x0
	OpcodeText         Opcode = 0x1
	OpcodeBinary       Opcode = 0x2

	// Control opcodes (>=0x8)
	OpcodeClose Opcode = 0x8
	OpcodePing  Opcode = 0x9
	OpcodePong  Opcode = 0xA
)

const (
	// Frame limit settings
	MaxPayloadLen     = 0xFFFF // 16-bit extended length is the ceiling
	MaxShortLen       = 125
	MaxFrameHeaderLen = 8 // 2 + 2 extended length + 4 mask key

	lenCode16 = 126
	lenCode64 = 127

	// Bit masks
	FinBit     = 0x80
	MaskBit    = 0x80
	opcodeMask = 0x0F
	lengthMask = 0x7F
)

// WebSocketGUID is appended to the client nonce before digesting.
const WebSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// IsControl reports whether op is a control opcode.
func (op Opcode) IsControl() bool { return op&0x8 != 0 }

// IsData reports whether op carries application data.
func (op Opcode) IsData() bool {
	return op == OpcodeText || op == OpcodeBinary || op == OpcodeContinuation
}

func (op Opcode) String() string {
	switch op {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	}
	return "unknown"
}
