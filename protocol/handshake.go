// File: protocol/handshake.go
// Package protocol implements the WebSocket handshake and connection
// lifecycle for wsrelay.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Both roles are one-shot: a single Read must deliver the whole header block.
// There is no retry and no streaming header parse.

package protocol

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/momentics/wsrelay/api"
	core "github.com/momentics/wsrelay/core/protocol"
	"github.com/momentics/wsrelay/core/textenc"
)

// Constants used for handshake processing.
const (
	HeaderUpgrade         = "Upgrade"
	HeaderSecWebSocketKey = "Sec-WebSocket-Key"
	HeaderSecWebSocketAcc = "Sec-WebSocket-Accept"
	StatusSwitching       = "101 Switching Protocols"

	// DefaultHandshakeBuffer bounds the single handshake read.
	DefaultHandshakeBuffer = 4096

	// FixedNonce is the RFC 6455 sample key, used when a deterministic
	// client key is requested.
	FixedNonce = "dGhlIHNhbXBsZSBub25jZQ=="
)

// Errors for handshake validation.
var (
	ErrEmptyHandshake = errors.New("no handshake data received")
	ErrMissingKey     = errors.New("missing Sec-WebSocket-Key header")
	ErrNotUpgrade     = errors.New("request is not a WebSocket upgrade")
	ErrBadStatus      = errors.New("handshake response is not 101 Switching Protocols")
	ErrMissingAccept  = errors.New("missing Sec-WebSocket-Accept header")
	ErrAcceptMismatch = errors.New("Sec-WebSocket-Accept does not match the expected key")
)

// Upgrade describes an inbound handshake request.
type Upgrade struct {
	Request  string // raw header block
	Path     string // request target from the request line
	Key      string // Sec-WebSocket-Key
	Leftover []byte // bytes received after the header block
}

// ServerHandshake performs the server role on tr: one read, key extraction,
// and the fixed 101 response. A request without a key that does not ask for
// a WebSocket upgrade fails with ErrNotUpgrade, one that does fails with
// ErrMissingKey. In both cases the returned Upgrade still carries the raw
// request so the caller may answer it as plain HTTP.
func ServerHandshake(tr api.Conn, bufSize int) (*Upgrade, error) {
	up, err := readHeaderBlock(tr, bufSize)
	if err != nil {
		return nil, err
	}
	up.Path = requestPath(up.Request)

	key, ok := core.ExtractHeader(up.Request, HeaderSecWebSocketKey)
	if !ok {
		if v, _ := core.ExtractHeader(up.Request, HeaderUpgrade); !strings.EqualFold(v, "websocket") {
			return up, api.ProtocolError("handshake", ErrNotUpgrade)
		}
		return up, api.ProtocolError("handshake", ErrMissingKey)
	}
	up.Key = key

	resp := "HTTP/1.1 " + StatusSwitching + "\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		HeaderSecWebSocketAcc + ": " + core.AcceptKey(key) + "\r\n\r\n"
	if _, err := tr.Write([]byte(resp)); err != nil {
		return up, api.TransportError("handshake response", err)
	}
	return up, nil
}

// IsPlainRequest reports whether err came from a request that cannot be
// upgraded but may still be answered as plain HTTP: one that does not ask
// for an upgrade, or one that does without a key.
func IsPlainRequest(err error) bool {
	return errors.Is(err, ErrNotUpgrade) || errors.Is(err, ErrMissingKey)
}

// ClientRequest parameterises the client role.
type ClientRequest struct {
	Host string // Host header, usually host:port
	Path string // request target; "/" when empty
	Key  string // nonce; NewNonce() when empty
}

// ClientHandshake performs the client role on tr and returns any bytes that
// followed the response header block.
func ClientHandshake(tr api.Conn, req ClientRequest, bufSize int) ([]byte, error) {
	if req.Path == "" {
		req.Path = "/"
	}
	if req.Key == "" {
		req.Key = NewNonce()
	}
	msg := "GET " + req.Path + " HTTP/1.1\r\n" +
		"Host: " + req.Host + "\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		HeaderSecWebSocketKey + ": " + req.Key + "\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"
	if _, err := tr.Write([]byte(msg)); err != nil {
		return nil, api.TransportError("handshake request", err)
	}

	resp, err := readHeaderBlock(tr, bufSize)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(core.StatusLine(resp.Request), StatusSwitching) {
		return nil, api.ProtocolError("handshake", ErrBadStatus).
			WithContext("status", core.StatusLine(resp.Request))
	}
	got, ok := core.ExtractHeader(resp.Request, HeaderSecWebSocketAcc)
	if !ok {
		return nil, api.ProtocolError("handshake", ErrMissingAccept)
	}
	if want := core.AcceptKey(req.Key); got != want {
		return nil, api.ProtocolError("handshake", ErrAcceptMismatch).
			WithContext("got", got).WithContext("want", want)
	}
	return resp.Leftover, nil
}

// NewNonce returns a fresh base64 client key built from the 16 random bytes
// of a version 4 UUID.
func NewNonce() string {
	id := uuid.New()
	return textenc.EncodeToString(id[:])
}

// readHeaderBlock performs the single handshake read and splits the header
// block from any trailing bytes.
func readHeaderBlock(tr api.Conn, bufSize int) (*Upgrade, error) {
	if bufSize <= 0 {
		bufSize = DefaultHandshakeBuffer
	}
	buf := make([]byte, bufSize)
	n, err := tr.Read(buf)
	if n <= 0 {
		if err == nil || errors.Is(err, io.EOF) {
			err = ErrEmptyHandshake
		}
		return nil, api.TransportError("handshake read", err)
	}
	raw := buf[:n]
	up := &Upgrade{Request: string(raw)}
	if end := core.HeaderEnd(raw); end >= 0 {
		up.Request = string(raw[:end])
		if end < n {
			up.Leftover = append([]byte(nil), raw[end:]...)
		}
	}
	return up, nil
}

// requestPath returns the target of an HTTP request line, or "/".
func requestPath(block string) string {
	parts := strings.Fields(core.StatusLine(block))
	if len(parts) >= 2 {
		return parts[1]
	}
	return "/"
}

// String is used in diagnostics.
func (u *Upgrade) String() string {
	return fmt.Sprintf("upgrade %s key=%q", u.Path, u.Key)
}
