// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"sync"
	"time"

	"github.com/momentics/wsrelay/reactor"
)

// Reactor implements reactor.EventReactor over a Network: a registered
// descriptor is ready while its fake source has data, a pending accept or a
// hang-up.
type Reactor struct {
	net *Network

	mu       sync.Mutex
	order    []uintptr
	userData map[uintptr]uintptr
	woken    bool
	waits    int
}

var _ reactor.EventReactor = (*Reactor)(nil)

// NewReactor creates a reactor observing n.
func (n *Network) NewReactor() *Reactor {
	return &Reactor{net: n, userData: make(map[uintptr]uintptr)}
}

func (r *Reactor) Register(fd uintptr, userData uintptr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.userData[fd]; !ok {
		r.order = append(r.order, fd)
	}
	r.userData[fd] = userData
	return nil
}

func (r *Reactor) Unregister(fd uintptr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.userData[fd]; !ok {
		return nil
	}
	delete(r.userData, fd)
	for i, v := range r.order {
		if v == fd {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *Reactor) collect(events []reactor.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	if r.woken && n < len(events) {
		r.woken = false
		events[n] = reactor.Event{UserData: reactor.WakeToken}
		n++
	}
	for _, fd := range r.order {
		if n == len(events) {
			break
		}
		if ready, known := r.net.isReady(fd); ready || !known {
			events[n] = reactor.Event{Fd: fd, UserData: r.userData[fd], Hangup: !known}
			n++
		}
	}
	return n
}

func (r *Reactor) Wait(events []reactor.Event, timeout time.Duration) (int, error) {
	r.mu.Lock()
	r.waits++
	r.mu.Unlock()

	var deadline <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}
	for {
		if n := r.collect(events); n > 0 {
			return n, nil
		}
		select {
		case <-r.net.notify:
		case <-deadline:
			return 0, nil
		}
	}
}

func (r *Reactor) Wake() error {
	r.mu.Lock()
	r.woken = true
	r.mu.Unlock()
	r.net.signal()
	return nil
}

func (r *Reactor) Close() error { return nil }

// Waits returns how many times Wait was entered.
func (r *Reactor) Waits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waits
}
