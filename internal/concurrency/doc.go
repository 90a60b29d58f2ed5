// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for the relay event loop. The loop goroutine owns
// all connection state; other goroutines reach it only through a Mailbox
// whose wake hook interrupts the reactor wait.
package concurrency
