// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable transports, listeners and a reactor
// whose readiness is driven by the test instead of the OS.

package fake

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/momentics/wsrelay/api"
)

// Network hands out descriptors and wakes the fake reactor whenever a
// source becomes ready.
type Network struct {
	mu      sync.Mutex
	nextFD  uintptr
	sources map[uintptr]source
	notify  chan struct{}
}

type source interface {
	ready() bool
}

// NewNetwork creates an empty fake network.
func NewNetwork() *Network {
	return &Network{
		nextFD:  100,
		sources: make(map[uintptr]source),
		notify:  make(chan struct{}, 1),
	}
}

func (n *Network) add(s source) uintptr {
	n.mu.Lock()
	defer n.mu.Unlock()
	fd := n.nextFD
	n.nextFD++
	n.sources[fd] = s
	return fd
}

func (n *Network) isReady(fd uintptr) (ready, known bool) {
	n.mu.Lock()
	s, ok := n.sources[fd]
	n.mu.Unlock()
	if !ok {
		return false, false
	}
	return s.ready(), true
}

func (n *Network) signal() {
	select {
	case n.notify <- struct{}{}:
	default:
	}
}

// Conn is a fake api.Conn. Reads are served from chunks queued with Feed;
// writes are captured.
type Conn struct {
	net    *Network
	fd     uintptr
	remote string

	mu         sync.Mutex
	recv       [][]byte
	peerClosed bool
	readErr    error
	writeErr   error
	written    bytes.Buffer
	writes     int
	closed     bool
	closeCount int
}

var _ api.Conn = (*Conn)(nil)

// NewConn creates a connection registered on n.
func (n *Network) NewConn(remote string) *Conn {
	c := &Conn{net: n, remote: remote}
	c.fd = n.add(c)
	return c
}

func (c *Conn) ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && (len(c.recv) > 0 || c.peerClosed || c.readErr != nil)
}

// Feed queues data to be returned by a later Read; each Feed is delivered
// by one Read when the caller's buffer is large enough.
func (c *Conn) Feed(data []byte) {
	c.mu.Lock()
	c.recv = append(c.recv, append([]byte(nil), data...))
	c.mu.Unlock()
	c.net.signal()
}

// HangUp makes the next Read report an orderly peer close.
func (c *Conn) HangUp() {
	c.mu.Lock()
	c.peerClosed = true
	c.mu.Unlock()
	c.net.signal()
}

// SetReadError makes the next Read fail with err.
func (c *Conn) SetReadError(err error) {
	c.mu.Lock()
	c.readErr = err
	c.mu.Unlock()
	c.net.signal()
}

// SetWriteError makes every Write fail with err.
func (c *Conn) SetWriteError(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, api.ErrTransportClosed
	}
	if len(c.recv) > 0 {
		n := copy(p, c.recv[0])
		if n < len(c.recv[0]) {
			c.recv[0] = c.recv[0][n:]
		} else {
			c.recv = c.recv[1:]
		}
		return n, nil
	}
	if c.readErr != nil {
		return 0, c.readErr
	}
	return 0, io.EOF
}

func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, api.ErrTransportClosed
	}
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.writes++
	return c.written.Write(p)
}

func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.closeCount++
	c.mu.Unlock()
	return nil
}

func (c *Conn) SetReadDeadline(time.Time) error { return nil }
func (c *Conn) RawFD() (uintptr, error)         { return c.fd, nil }
func (c *Conn) RemoteAddr() string              { return c.remote }

// Written returns a copy of every byte written so far.
func (c *Conn) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.written.Bytes()...)
}

// ResetWritten discards captured writes.
func (c *Conn) ResetWritten() {
	c.mu.Lock()
	c.written.Reset()
	c.mu.Unlock()
}

// CloseCount returns how many times Close was called.
func (c *Conn) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCount
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Listener is a fake api.Listener fed with Enqueue.
type Listener struct {
	net *Network
	fd  uintptr

	mu      sync.Mutex
	pending []*Conn
	closed  bool
}

var _ api.Listener = (*Listener)(nil)

// NewListener creates a listener registered on n.
func (n *Network) NewListener() *Listener {
	l := &Listener{net: n}
	l.fd = n.add(l)
	return l
}

func (l *Listener) ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.closed && len(l.pending) > 0
}

// Enqueue makes c the next accepted connection.
func (l *Listener) Enqueue(c *Conn) {
	l.mu.Lock()
	l.pending = append(l.pending, c)
	l.mu.Unlock()
	l.net.signal()
}

func (l *Listener) Accept() (api.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, api.ErrTransportClosed
	}
	if len(l.pending) == 0 {
		return nil, io.EOF
	}
	c := l.pending[0]
	l.pending = l.pending[1:]
	return c, nil
}

func (l *Listener) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

func (l *Listener) Addr() string            { return "fake:0" }
func (l *Listener) RawFD() (uintptr, error) { return l.fd, nil }
