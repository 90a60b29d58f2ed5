// File: server/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/momentics/wsrelay/api"
	"github.com/momentics/wsrelay/protocol"
)

// ErrDuplicateConn is returned by Add for an ID that is already registered.
var ErrDuplicateConn = errors.New("connection already registered")

// Registry maps open connections by ID and remembers admission order.
// Reads are safe from any goroutine; the runtime is the only writer.
type Registry struct {
	mu    sync.RWMutex
	conns map[api.ConnID]*protocol.Conn
	order []api.ConnID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[api.ConnID]*protocol.Conn)}
}

// Add registers an open connection.
func (r *Registry) Add(c *protocol.Conn) error {
	if c == nil {
		return api.ErrInvalidArgument
	}
	if s := c.State(); s != api.StateOpen {
		return fmt.Errorf("%w: connection %d is %s", api.ErrInvalidArgument, c.ID(), s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.conns[c.ID()]; dup {
		return fmt.Errorf("%w: %d", ErrDuplicateConn, c.ID())
	}
	r.conns[c.ID()] = c
	r.order = append(r.order, c.ID())
	return nil
}

// Remove unregisters id and returns the connection it held.
func (r *Registry) Remove(id api.ConnID) (*protocol.Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	delete(r.conns, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return c, true
}

// Get looks up a registered connection.
func (r *Registry) Get(id api.ConnID) (*protocol.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// IDs returns a snapshot of the registered IDs in admission order.
func (r *Registry) IDs() []api.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]api.ConnID(nil), r.order...)
}
