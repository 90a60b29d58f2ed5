//go:build unix

package reactor

import (
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func newPipe(t *testing.T) (r, w int) {
	t.Helper()
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		unix.Close(p[0])
		unix.Close(p[1])
	})
	return p[0], p[1]
}

func TestWaitReportsReadySourcesInOrder(t *testing.T) {
	rx, err := NewReactor()
	if err != nil {
		t.Fatal(err)
	}
	defer rx.Close()

	r1, w1 := newPipe(t)
	r2, w2 := newPipe(t)
	r3, _ := newPipe(t)
	for i, fd := range []int{r1, r2, r3} {
		if err := rx.Register(uintptr(fd), uintptr(i+1)); err != nil {
			t.Fatal(err)
		}
	}
	unix.Write(w2, []byte("b"))
	unix.Write(w1, []byte("a"))

	events := make([]Event, 8)
	n, err := rx.Wait(events, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || events[0].UserData != 1 || events[1].UserData != 2 {
		t.Fatalf("events = %+v", events[:n])
	}
}

func TestWaitTimeoutAndWake(t *testing.T) {
	rx, err := NewReactor()
	if err != nil {
		t.Fatal(err)
	}
	defer rx.Close()

	events := make([]Event, 4)
	n, err := rx.Wait(events, 10*time.Millisecond)
	if err != nil || n != 0 {
		t.Fatalf("idle wait: n=%d err=%v", n, err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		rx.Wake()
	}()
	n, err = rx.Wait(events, -1)
	if err != nil || n != 1 || events[0].UserData != WakeToken {
		t.Fatalf("wake wait: n=%d err=%v events=%+v", n, err, events[:n])
	}

	// The pipe was drained, so the next wait times out again.
	n, _ = rx.Wait(events, 10*time.Millisecond)
	if n != 0 {
		t.Fatalf("wake not drained, n=%d", n)
	}
}

func TestUnregisterKeepsOrder(t *testing.T) {
	rx, err := NewReactor()
	if err != nil {
		t.Fatal(err)
	}
	defer rx.Close()

	r1, w1 := newPipe(t)
	r2, w2 := newPipe(t)
	r3, w3 := newPipe(t)
	rx.Register(uintptr(r1), 1)
	rx.Register(uintptr(r2), 2)
	rx.Register(uintptr(r3), 3)
	if err := rx.Register(uintptr(r2), 9); err == nil {
		t.Fatal("duplicate registration accepted")
	}
	rx.Unregister(uintptr(r2))
	rx.Unregister(12345)

	unix.Write(w1, []byte("x"))
	unix.Write(w2, []byte("x"))
	unix.Write(w3, []byte("x"))

	events := make([]Event, 8)
	n, _ := rx.Wait(events, time.Second)
	if n != 2 || events[0].UserData != 1 || events[1].UserData != 3 {
		t.Fatalf("events = %+v", events[:n])
	}
}

func TestWakeAfterCloseIsNoop(t *testing.T) {
	rx, err := NewReactor()
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if err := rx.Wake(); err != nil {
					t.Errorf("wake: %v", err)
					return
				}
			}
		}()
	}
	time.Sleep(5 * time.Millisecond)
	if err := rx.Close(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	close(stop)
	wg.Wait()

	if err := rx.Wake(); err != nil {
		t.Fatalf("wake after close: %v", err)
	}
	if err := rx.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
