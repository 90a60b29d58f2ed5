// File: core/protocol/frame_codec.go
// Package protocol implements the single-frame WebSocket codec.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frames are always sent with FIN set. Payload lengths above 65535 bytes are
// outside this codec's contract: callers reject them with CheckPayload before
// encoding, and decoding a 64-bit length code fails immediately.

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrIncompleteFrame means the buffer does not yet hold a whole frame.
	ErrIncompleteFrame = errors.New("incomplete frame")
	// ErrUnsupportedLength is returned for the 64-bit extended length code.
	ErrUnsupportedLength = errors.New("64-bit extended payload length not supported")
	// ErrPayloadTooLarge is returned by CheckPayload for payloads above MaxPayloadLen.
	ErrPayloadTooLarge = fmt.Errorf("payload exceeds %d bytes", MaxPayloadLen)
)

// Frame is a decoded WebSocket frame. Payload is always unmasked.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// CheckPayload validates that payload fits in a single frame.
func CheckPayload(payload []byte) error {
	if len(payload) > MaxPayloadLen {
		return fmt.Errorf("%w: %d", ErrPayloadTooLarge, len(payload))
	}
	return nil
}

// EncodeFrame returns a new unmasked frame carrying payload.
func EncodeFrame(opcode Opcode, payload []byte) []byte {
	return AppendFrame(make([]byte, 0, headerLen(len(payload), false)+len(payload)), opcode, payload)
}

// AppendFrame appends an unmasked FIN frame to dst.
// It panics if payload is longer than MaxPayloadLen.
func AppendFrame(dst []byte, opcode Opcode, payload []byte) []byte {
	dst = appendHeader(dst, opcode, len(payload), false)
	return append(dst, payload...)
}

// AppendMaskedFrame appends a masked FIN frame to dst using key.
// payload itself is left untouched.
func AppendMaskedFrame(dst []byte, opcode Opcode, payload []byte, key [4]byte) []byte {
	dst = appendHeader(dst, opcode, len(payload), true)
	dst = append(dst, key[:]...)
	start := len(dst)
	dst = append(dst, payload...)
	MaskPayload(dst[start:], key)
	return dst
}

func headerLen(n int, masked bool) int {
	h := 2
	if n > MaxShortLen {
		h += 2
	}
	if masked {
		h += 4
	}
	return h
}

func appendHeader(dst []byte, opcode Opcode, n int, masked bool) []byte {
	if n > MaxPayloadLen {
		panic(fmt.Sprintf("protocol: frame payload of %d bytes exceeds %d", n, MaxPayloadLen))
	}
	var maskBit byte
	if masked {
		maskBit = MaskBit
	}
	dst = append(dst, FinBit|byte(opcode)&opcodeMask)
	if n <= MaxShortLen {
		return append(dst, maskBit|byte(n))
	}
	dst = append(dst, maskBit|lenCode16)
	return binary.BigEndian.AppendUint16(dst, uint16(n))
}

// DecodeFrame parses one frame from the head of raw and returns it together
// with the number of bytes consumed. The returned payload is a fresh copy.
// If raw does not yet hold the whole frame, ErrIncompleteFrame is returned.
func DecodeFrame(raw []byte) (Frame, int, error) {
	if len(raw) < 2 {
		return Frame{}, 0, ErrIncompleteFrame
	}
	f := Frame{
		Fin:    raw[0]&FinBit != 0,
		Opcode: Opcode(raw[0] & opcodeMask),
		Masked: raw[1]&MaskBit != 0,
	}
	length := int(raw[1] & lengthMask)
	offset := 2

	switch length {
	case lenCode16:
		if len(raw) < offset+2 {
			return Frame{}, 0, ErrIncompleteFrame
		}
		length = int(binary.BigEndian.Uint16(raw[offset:]))
		offset += 2
	case lenCode64:
		return Frame{}, 0, ErrUnsupportedLength
	}

	if f.Masked {
		if len(raw) < offset+4 {
			return Frame{}, 0, ErrIncompleteFrame
		}
		copy(f.MaskKey[:], raw[offset:offset+4])
		offset += 4
	}

	end := offset + length
	if len(raw) < end {
		return Frame{}, 0, ErrIncompleteFrame
	}
	f.Payload = make([]byte, length)
	copy(f.Payload, raw[offset:end])
	if f.Masked {
		MaskPayload(f.Payload, f.MaskKey)
	}
	return f, end, nil
}

// MaskPayload XORs b in place with key; applying it twice restores b.
func MaskPayload(b []byte, key [4]byte) {
	for i := range b {
		b[i] ^= key[i&3]
	}
}
