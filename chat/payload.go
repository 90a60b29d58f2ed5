// Package chat implements the relay's message convention and dispatcher.
//
// A chat payload is a 4-byte big-endian name length, the sender name and
// then the message text. The relay rebroadcasts it as "name: message".
package chat

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformed reports a payload whose name prefix does not fit.
var ErrMalformed = errors.New("malformed chat payload")

const nameLenSize = 4

// EncodePayload builds a chat payload.
func EncodePayload(name, msg string) []byte {
	p := make([]byte, nameLenSize, nameLenSize+len(name)+len(msg))
	binary.BigEndian.PutUint32(p, uint32(len(name)))
	p = append(p, name...)
	return append(p, msg...)
}

// DecodePayload splits a chat payload into sender name and message.
func DecodePayload(p []byte) (name, msg string, err error) {
	if len(p) < nameLenSize {
		return "", "", fmt.Errorf("%w: %d bytes", ErrMalformed, len(p))
	}
	n := binary.BigEndian.Uint32(p)
	rest := p[nameLenSize:]
	if uint64(n) > uint64(len(rest)) {
		return "", "", fmt.Errorf("%w: name length %d exceeds %d remaining bytes", ErrMalformed, n, len(rest))
	}
	return string(rest[:n]), string(rest[n:]), nil
}

// FormatLine renders a decoded message the way receivers display it.
func FormatLine(name, msg string) string {
	return name + ": " + msg
}
