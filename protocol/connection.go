// File: protocol/connection.go
// Package protocol implements the core WebSocket connection handling.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Conn owns one negotiated transport: it tracks the lifecycle state,
// buffers partial frames between reads and serializes writes.

package protocol

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/wsrelay/api"
	core "github.com/momentics/wsrelay/core/protocol"
	"github.com/momentics/wsrelay/pool"
)

// DefaultReadBuffer is the size of a single receive call.
const DefaultReadBuffer = 4096

var frameBuffers = pool.NewBytePool(DefaultReadBuffer, core.MaxFrameHeaderLen+core.MaxPayloadLen)

// ConnOptions tune a Conn.
type ConnOptions struct {
	// ReadBufferSize bounds each Read; DefaultReadBuffer when zero.
	ReadBufferSize int
	// MaskOutgoing masks every outgoing frame. Client-role connections should
	// set it; the legacy chat client did not.
	MaskOutgoing bool
	// DiscardPartial drops bytes that do not complete a frame within one
	// read instead of keeping them for the next read.
	DiscardPartial bool
	// Leftover seeds the receive buffer with bytes that arrived together
	// with the handshake.
	Leftover []byte
}

// Conn is a WebSocket connection over an api.Conn.
type Conn struct {
	id    api.ConnID
	role  api.Role
	tr    api.Conn
	opts  ConnOptions
	state atomic.Int32

	rbuf    []byte
	pending []byte

	wmu sync.Mutex

	closeOnce sync.Once
	closeErr  error

	framesIn  atomic.Int64
	framesOut atomic.Int64
}

// NewConn wraps tr in state connecting.
func NewConn(id api.ConnID, role api.Role, tr api.Conn, opts ConnOptions) *Conn {
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = DefaultReadBuffer
	}
	c := &Conn{
		id:   id,
		role: role,
		tr:   tr,
		opts: opts,
		rbuf: make([]byte, opts.ReadBufferSize),
	}
	if len(opts.Leftover) > 0 {
		c.pending = append(c.pending, opts.Leftover...)
	}
	c.state.Store(int32(api.StateConnecting))
	return c
}

// AcceptOptions configure Accept.
type AcceptOptions struct {
	Conn             ConnOptions
	HandshakeBuffer  int
	HandshakeTimeout time.Duration
	// PlainRequest, when set, answers requests that cannot be upgraded
	// (see IsPlainRequest) before the transport is closed.
	PlainRequest func(tr api.Conn, up *Upgrade)
}

// Accept runs the server handshake on tr. On success the connection is
// open; on failure tr has been released and the error is returned.
func Accept(id api.ConnID, tr api.Conn, opts AcceptOptions) (*Conn, error) {
	c := NewConn(id, api.RoleServer, tr, opts.Conn)
	c.setState(api.StateHandshaking)
	if opts.HandshakeTimeout > 0 {
		tr.SetReadDeadline(time.Now().Add(opts.HandshakeTimeout))
	}
	up, err := ServerHandshake(tr, opts.HandshakeBuffer)
	if err != nil {
		if IsPlainRequest(err) && opts.PlainRequest != nil {
			opts.PlainRequest(tr, up)
		}
		c.Close()
		return nil, err
	}
	if opts.HandshakeTimeout > 0 {
		tr.SetReadDeadline(time.Time{})
	}
	if len(up.Leftover) > 0 {
		c.pending = append(c.pending, up.Leftover...)
	}
	c.setState(api.StateOpen)
	return c, nil
}

// DialOptions configure Connect.
type DialOptions struct {
	Conn             ConnOptions
	Request          ClientRequest
	HandshakeBuffer  int
	HandshakeTimeout time.Duration
}

// Connect runs the client handshake on an already connected tr.
func Connect(id api.ConnID, tr api.Conn, opts DialOptions) (*Conn, error) {
	c := NewConn(id, api.RoleClient, tr, opts.Conn)
	c.setState(api.StateHandshaking)
	if opts.HandshakeTimeout > 0 {
		tr.SetReadDeadline(time.Now().Add(opts.HandshakeTimeout))
	}
	leftover, err := ClientHandshake(tr, opts.Request, opts.HandshakeBuffer)
	if err != nil {
		c.Close()
		return nil, err
	}
	if opts.HandshakeTimeout > 0 {
		tr.SetReadDeadline(time.Time{})
	}
	c.pending = append(c.pending, leftover...)
	c.setState(api.StateOpen)
	return c, nil
}

func (c *Conn) ID() api.ConnID     { return c.id }
func (c *Conn) Role() api.Role     { return c.role }
func (c *Conn) RemoteAddr() string { return c.tr.RemoteAddr() }

// State returns the current lifecycle state.
func (c *Conn) State() api.State { return api.State(c.state.Load()) }

func (c *Conn) setState(s api.State) { c.state.Store(int32(s)) }

// RawFD exposes the transport descriptor for readiness polling.
func (c *Conn) RawFD() (uintptr, error) { return c.tr.RawFD() }

// Buffered reports whether complete or partial frame bytes are pending.
func (c *Conn) Buffered() int { return len(c.pending) }

// FramesIn and FramesOut count decoded and written frames.
func (c *Conn) FramesIn() int64  { return c.framesIn.Load() }
func (c *Conn) FramesOut() int64 { return c.framesOut.Load() }

// ReadFrames performs one receive and appends every complete frame now
// available to dst. A zero-length receive or a read error is a transport
// error; an unsupported length code is a protocol error. Frames decoded
// before a protocol error are still returned.
func (c *Conn) ReadFrames(dst []core.Frame) ([]core.Frame, error) {
	n, err := c.tr.Read(c.rbuf)
	if n <= 0 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return dst, api.TransportError("receive", err).WithContext("conn", c.id)
	}
	c.pending = append(c.pending, c.rbuf[:n]...)
	return c.decodePending(dst)
}

// DecodeBuffered decodes frames already held in the receive buffer (for
// example bytes that arrived with the handshake) without reading.
func (c *Conn) DecodeBuffered(dst []core.Frame) ([]core.Frame, error) {
	if len(c.pending) == 0 {
		return dst, nil
	}
	return c.decodePending(dst)
}

func (c *Conn) decodePending(dst []core.Frame) ([]core.Frame, error) {
	off := 0
	for off < len(c.pending) {
		f, used, err := core.DecodeFrame(c.pending[off:])
		if errors.Is(err, core.ErrIncompleteFrame) {
			break
		}
		if err != nil {
			c.pending = c.pending[:0]
			return dst, api.ProtocolError("decode", err).WithContext("conn", c.id)
		}
		off += used
		c.framesIn.Add(1)
		dst = append(dst, f)
	}
	if c.opts.DiscardPartial {
		c.pending = c.pending[:0]
		return dst, nil
	}
	rest := copy(c.pending, c.pending[off:])
	c.pending = c.pending[:rest]
	return dst, nil
}

// WriteMessage frames payload with opcode and sends it. Payloads above the
// 16-bit length limit are rejected without touching the transport.
func (c *Conn) WriteMessage(opcode core.Opcode, payload []byte) error {
	if err := core.CheckPayload(payload); err != nil {
		return api.ApplicationError("send", err).WithContext("conn", c.id)
	}
	if s := c.State(); s != api.StateOpen {
		return api.TransportError("send", fmt.Errorf("%w: connection %s", api.ErrTransportClosed, s))
	}

	buf := frameBuffers.GetBuffer(core.MaxFrameHeaderLen + len(payload))
	defer frameBuffers.PutBuffer(buf)
	if c.opts.MaskOutgoing {
		var key [4]byte
		if _, err := rand.Read(key[:]); err != nil {
			return fmt.Errorf("mask key: %w", err)
		}
		*buf = core.AppendMaskedFrame(*buf, opcode, payload, key)
	} else {
		*buf = core.AppendFrame(*buf, opcode, payload)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.tr.Write(*buf); err != nil {
		return api.TransportError("send", err).WithContext("conn", c.id)
	}
	c.framesOut.Add(1)
	return nil
}

// WriteText sends a TEXT frame.
func (c *Conn) WriteText(payload []byte) error {
	return c.WriteMessage(core.OpcodeText, payload)
}

// WriteClose sends an empty CLOSE frame and moves the connection to
// closing. The peer's acknowledgement is not awaited.
func (c *Conn) WriteClose() error {
	err := c.WriteMessage(core.OpcodeClose, nil)
	c.state.CompareAndSwap(int32(api.StateOpen), int32(api.StateClosing))
	return err
}

// Close releases the transport exactly once and leaves the connection in
// state closed. Later calls return the first result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.setState(api.StateClosing)
		c.wmu.Lock()
		c.closeErr = c.tr.Close()
		c.wmu.Unlock()
		c.setState(api.StateClosed)
	})
	return c.closeErr
}
