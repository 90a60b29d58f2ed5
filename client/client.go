// File: client/client.go
// Package client connects to a relay server and runs the client-role loop.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The client reuses the server runtime without a listener: the single
// negotiated connection is admitted before Run, inbound frames go to the
// dispatcher and outbound messages are posted as broadcasts.

package client

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/momentics/wsrelay/api"
	"github.com/momentics/wsrelay/control"
	"github.com/momentics/wsrelay/protocol"
	"github.com/momentics/wsrelay/server"
	"github.com/momentics/wsrelay/transport/tcp"
)

// ClientConfig holds the connection parameters.
type ClientConfig struct {
	control.Config
	// Dispatcher receives every non-empty data frame from the server.
	Dispatcher server.Dispatcher
	Logger     *log.Logger
	Metrics    *control.MetricsRegistry
}

// serverConnID identifies the only connection a client runtime serves.
const serverConnID api.ConnID = 1

// Client is a connected, negotiated relay client.
type Client struct {
	cfg  ClientConfig
	rt   *server.Runtime
	conn *protocol.Conn
}

// Dial connects to cfg.ServerAddr and performs the opening handshake.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[client] ", log.LstdFlags)
	}

	tr, err := tcp.Dial(ctx, cfg.ServerAddr, cfg.DialTimeout)
	if err != nil {
		return nil, err
	}
	cfg.Logger.Printf("Connected to %s", cfg.ServerAddr)

	req := protocol.ClientRequest{Host: cfg.ServerAddr, Path: cfg.Path}
	if cfg.FixedKey {
		req.Key = protocol.FixedNonce
	}
	conn, err := protocol.Connect(serverConnID, tr, protocol.DialOptions{
		Conn: protocol.ConnOptions{
			ReadBufferSize: cfg.ReadBufferSize,
			MaskOutgoing:   cfg.MaskOutgoing,
			DiscardPartial: cfg.DiscardPartial,
		},
		Request:          req,
		HandshakeBuffer:  cfg.HandshakeBufferSize,
		HandshakeTimeout: cfg.HandshakeTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("handshake with %s: %w", cfg.ServerAddr, err)
	}
	cfg.Logger.Printf("Handshake successful.")

	rt, err := server.New(
		server.WithDispatcher(cfg.Dispatcher),
		server.WithLogger(cfg.Logger),
		server.WithMetrics(cfg.Metrics),
		server.WithStopWhenEmpty(),
	)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := rt.Admit(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &Client{cfg: cfg, rt: rt, conn: conn}, nil
}

// Runtime exposes the loop, for posting commands.
func (c *Client) Runtime() *server.Runtime { return c.rt }

// Conn returns the negotiated connection.
func (c *Client) Conn() *protocol.Conn { return c.conn }

// Run serves the connection until the server disconnects, Close is called
// or ctx is cancelled. A CLOSE frame is sent to the server on the way out
// when the connection is still open.
func (c *Client) Run(ctx context.Context) error { return c.rt.Run(ctx) }

// Send posts payload as one TEXT frame to the server. Safe from any
// goroutine.
func (c *Client) Send(payload []byte) error {
	return c.rt.Post(server.Command{Kind: server.CmdBroadcast, Payload: payload})
}

// Close asks the loop to send CLOSE and stop.
func (c *Client) Close() error { return c.rt.Shutdown() }
