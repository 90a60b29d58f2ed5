package protocol

import (
	"github.com/momentics/wsrelay/core/digest"
	"github.com/momentics/wsrelay/core/textenc"
)

// AcceptKey derives the Sec-WebSocket-Accept value for a client nonce.
func AcceptKey(key string) string {
	sum := digest.Sum([]byte(key + WebSocketGUID))
	return textenc.EncodeToString(sum[:])
}
