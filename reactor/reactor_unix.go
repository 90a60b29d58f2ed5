//go:build unix

// File: reactor/reactor_unix.go
// Author: momentics <momentics@gmail.com>
//
// poll(2)-based reactor with a self-pipe for cross-goroutine wakeups.

package reactor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

type pollReactor struct {
	fds      []unix.PollFd // index 0 is the wake pipe
	userData []uintptr
	index    map[int32]int

	// mu guards the wake pipe against Wake racing Close.
	mu           sync.Mutex
	wakeR, wakeW int
	closed       bool
}

// NewReactor constructs a poll-based EventReactor.
func NewReactor() (EventReactor, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, fmt.Errorf("reactor pipe: %w", err)
	}
	for _, fd := range p {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return nil, fmt.Errorf("reactor pipe nonblock: %w", err)
		}
		unix.CloseOnExec(fd)
	}
	r := &pollReactor{
		wakeR: p[0],
		wakeW: p[1],
		index: make(map[int32]int),
	}
	r.fds = append(r.fds, unix.PollFd{Fd: int32(p[0]), Events: unix.POLLIN})
	r.userData = append(r.userData, WakeToken)
	return r, nil
}

func (r *pollReactor) Register(fd uintptr, userData uintptr) error {
	key := int32(fd)
	if _, ok := r.index[key]; ok {
		return fmt.Errorf("reactor: fd %d already registered", fd)
	}
	r.index[key] = len(r.fds)
	r.fds = append(r.fds, unix.PollFd{Fd: key, Events: unix.POLLIN})
	r.userData = append(r.userData, userData)
	return nil
}

func (r *pollReactor) Unregister(fd uintptr) error {
	key := int32(fd)
	i, ok := r.index[key]
	if !ok {
		return nil
	}
	// Preserve registration order for the remaining descriptors.
	r.fds = append(r.fds[:i], r.fds[i+1:]...)
	r.userData = append(r.userData[:i], r.userData[i+1:]...)
	delete(r.index, key)
	for j := i; j < len(r.fds); j++ {
		r.index[r.fds[j].Fd] = j
	}
	return nil
}

func (r *pollReactor) Wait(events []Event, timeout time.Duration) (int, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	for i := range r.fds {
		r.fds[i].Revents = 0
	}
	_, err := unix.Poll(r.fds, ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("poll: %w", err)
	}

	n := 0
	for i := range r.fds {
		rev := r.fds[i].Revents
		if rev == 0 {
			continue
		}
		if i == 0 {
			r.drainWake()
		}
		if n == len(events) {
			break
		}
		events[n] = Event{
			Fd:       uintptr(r.fds[i].Fd),
			UserData: r.userData[i],
			Hangup:   rev&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0,
		}
		n++
	}
	return n, nil
}

func (r *pollReactor) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(r.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (r *pollReactor) Wake() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	_, err := unix.Write(r.wakeW, []byte{1})
	if err == unix.EAGAIN {
		// Pipe already full: a wakeup is pending.
		return nil
	}
	return err
}

// Close releases the wake pipe. Wake is a no-op afterwards.
func (r *pollReactor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return errors.Join(unix.Close(r.wakeR), unix.Close(r.wakeW))
}
