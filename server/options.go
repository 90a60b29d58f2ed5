// File: server/options.go
// Package server defines functional options for the Runtime.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"log"

	"github.com/momentics/wsrelay/api"
	"github.com/momentics/wsrelay/control"
	"github.com/momentics/wsrelay/protocol"
	"github.com/momentics/wsrelay/reactor"
)

// Option customizes runtime initialization.
type Option func(*Runtime)

// WithListener makes the runtime accept and negotiate inbound connections.
// Without a listener the runtime only serves connections passed to Admit.
func WithListener(l api.Listener) Option {
	return func(rt *Runtime) { rt.listener = l }
}

// WithReactor supplies the readiness source. The runtime creates and owns a
// platform reactor when none is given.
func WithReactor(rx reactor.EventReactor) Option {
	return func(rt *Runtime) { rt.rx = rx }
}

// WithDispatcher sets the handler for inbound data frames.
func WithDispatcher(d Dispatcher) Option {
	return func(rt *Runtime) { rt.dispatch = d }
}

// WithLogger replaces the default "[server] " logger.
func WithLogger(l *log.Logger) Option {
	return func(rt *Runtime) { rt.logger = l }
}

// WithMetrics attaches a metrics registry.
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(rt *Runtime) { rt.metrics = m }
}

// WithAcceptOptions sets the handshake and per-connection settings applied
// to accepted connections.
func WithAcceptOptions(o protocol.AcceptOptions) Option {
	return func(rt *Runtime) { rt.accept = o }
}

// WithStopWhenEmpty ends Run once the last connection is removed. The
// client role uses it to exit when the server goes away.
func WithStopWhenEmpty() Option {
	return func(rt *Runtime) { rt.stopWhenEmpty = true }
}

// WithOpenHook is called on the loop goroutine after a connection is admitted.
func WithOpenHook(fn func(rt *Runtime, c *protocol.Conn)) Option {
	return func(rt *Runtime) { rt.onOpen = fn }
}

// WithCloseHook is called on the loop goroutine after a connection has been
// removed and closed.
func WithCloseHook(fn func(rt *Runtime, c *protocol.Conn)) Option {
	return func(rt *Runtime) { rt.onClose = fn }
}

// WithConfig maps the shared configuration onto accept options.
func WithConfig(cfg *control.Config) Option {
	return func(rt *Runtime) { rt.applyConfig(cfg) }
}

// WithConfigStore applies the store's current snapshot and follows later
// updates: each reload is handed to the loop, and connections accepted
// after it use the new handshake and buffer settings.
func WithConfigStore(cs *control.ConfigStore) Option {
	return func(rt *Runtime) {
		rt.applyConfig(cs.Snapshot())
		cs.OnReload(func(cfg *control.Config) {
			err := rt.Post(Command{Kind: CmdCall, Fn: func(rt *Runtime) {
				rt.applyConfig(cfg)
				rt.logger.Printf("config reloaded")
			}})
			if err != nil {
				rt.logger.Printf("config reload: %v", err)
			}
		})
	}
}

// WithPlainRequest answers requests that are not WebSocket upgrades, for
// example with an HTML page, before their transport is closed.
func WithPlainRequest(fn func(tr api.Conn, up *protocol.Upgrade)) Option {
	return func(rt *Runtime) { rt.accept.PlainRequest = fn }
}
