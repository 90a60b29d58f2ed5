// File: internal/concurrency/mailbox.go
// Package concurrency holds the cross-goroutine hand-off used by the event loop.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"errors"
	"sync"

	"github.com/eapache/queue"
)

// ErrMailboxClosed is returned by Post after Close.
var ErrMailboxClosed = errors.New("mailbox closed")

// Mailbox is an unbounded FIFO that many goroutines post to and a single
// loop goroutine drains. Every successful Post calls the wake hook so the
// loop's blocking wait returns.
type Mailbox[T any] struct {
	mu     sync.Mutex
	q      *queue.Queue
	wake   func() error
	closed bool
}

// NewMailbox creates a mailbox; wake may be nil.
func NewMailbox[T any](wake func() error) *Mailbox[T] {
	return &Mailbox[T]{q: queue.New(), wake: wake}
}

// Post enqueues v and wakes the consumer.
func (m *Mailbox[T]) Post(v T) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMailboxClosed
	}
	m.q.Add(v)
	m.mu.Unlock()
	if m.wake != nil {
		return m.wake()
	}
	return nil
}

// Drain appends every queued item to buf in FIFO order and returns it.
func (m *Mailbox[T]) Drain(buf []T) []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.q.Length() > 0 {
		buf = append(buf, m.q.Remove().(T))
	}
	return buf
}

// Len returns the number of queued items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q.Length()
}

// Close rejects further posts. Items already queued remain drainable.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}
