// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package transport adapts Go network connections to api.Conn.
package transport

import (
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/momentics/wsrelay/api"
)

// NetConn implements api.Conn over a net.Conn.
type NetConn struct {
	conn net.Conn
}

// NewNetConn wraps conn.
func NewNetConn(conn net.Conn) *NetConn {
	return &NetConn{conn: conn}
}

// Read receives bytes from the peer.
func (n *NetConn) Read(buf []byte) (int, error) {
	return n.conn.Read(buf)
}

// Write sends buf in full.
func (n *NetConn) Write(buf []byte) (int, error) {
	return n.conn.Write(buf)
}

// Close the connection.
func (n *NetConn) Close() error {
	return n.conn.Close()
}

func (n *NetConn) SetReadDeadline(t time.Time) error {
	return n.conn.SetReadDeadline(t)
}

func (n *NetConn) RemoteAddr() string {
	if a := n.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

// RawFD returns the socket descriptor for readiness polling.
func (n *NetConn) RawFD() (uintptr, error) {
	return RawFD(n.conn)
}

// Unwrap returns the wrapped net.Conn.
func (n *NetConn) Unwrap() net.Conn { return n.conn }

// RawFD extracts the OS descriptor from anything implementing syscall.Conn.
func RawFD(v any) (uintptr, error) {
	sc, ok := v.(syscall.Conn)
	if !ok {
		return 0, fmt.Errorf("%w: %T exposes no descriptor", api.ErrNotSupported, v)
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd uintptr
	if err := rc.Control(func(f uintptr) { fd = f }); err != nil {
		return 0, err
	}
	return fd, nil
}
