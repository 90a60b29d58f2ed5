// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package tcp

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/momentics/wsrelay/api"
	"github.com/momentics/wsrelay/transport"
)

// Listener wraps a TCP listening socket.
type Listener struct {
	ln *net.TCPListener
}

var _ api.Listener = (*Listener)(nil)

// Listen opens a TCP listening socket on addr (e.g. ":8080").
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp listen failed: %w", err)
	}
	return &Listener{ln: ln.(*net.TCPListener)}, nil
}

// Accept returns the next inbound connection.
func (l *Listener) Accept() (api.Conn, error) {
	conn, err := l.ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	conn.SetNoDelay(true)
	return transport.NewNetConn(conn), nil
}

// Close stops listening.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Addr returns the bound address, useful with ":0".
func (l *Listener) Addr() string {
	return l.ln.Addr().String()
}

// RawFD returns the listening socket descriptor.
func (l *Listener) RawFD() (uintptr, error) {
	return transport.RawFD(l.ln)
}

// Dial connects to addr, giving up after timeout when it is positive.
func Dial(ctx context.Context, addr string, timeout time.Duration) (api.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp connect %s: %w", addr, err)
	}
	return transport.NewNetConn(conn), nil
}
