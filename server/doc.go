// Package server
// Author: momentics <momentics@gmail.com>
//
// Connection registry and the single-goroutine relay runtime.
//
// One loop goroutine owns every connection: it waits on the reactor, then
// serves the ready listener (accept, handshake, admit), the ready
// connections (read, decode, dispatch) and finally the command mailbox that
// other goroutines post to. Connections found dead during a pass are removed
// once the pass ends, so broadcasts never observe a half-removed entry.
package server
