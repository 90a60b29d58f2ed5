//go:build unix

package client

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/momentics/wsrelay/api"
	"github.com/momentics/wsrelay/chat"
	"github.com/momentics/wsrelay/control"
	core "github.com/momentics/wsrelay/core/protocol"
	"github.com/momentics/wsrelay/protocol"
	"github.com/momentics/wsrelay/server"
	"github.com/momentics/wsrelay/transport/tcp"
)

var quiet = log.New(io.Discard, "", 0)

type inbox struct {
	mu   sync.Mutex
	msgs []string
}

func (in *inbox) dispatch(_ *server.Runtime, _ api.ConnID, f core.Frame) {
	in.mu.Lock()
	in.msgs = append(in.msgs, string(f.Payload))
	in.mu.Unlock()
}

func (in *inbox) wait(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		in.mu.Lock()
		got := append([]string(nil), in.msgs...)
		in.mu.Unlock()
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out with %v", got)
		}
		time.Sleep(time.Millisecond)
	}
}

func testConfig(addr string) ClientConfig {
	cfg := control.DefaultConfig()
	cfg.ServerAddr = addr
	cfg.HandshakeTimeout = 2 * time.Second
	return ClientConfig{Config: *cfg, Logger: quiet}
}

// gorilla servers reject unmasked client frames, so this exercises the
// masking default.
func TestClientAgainstGorillaEchoServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			kind, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(kind, append([]byte("echo: "), msg...)); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	in := &inbox{}
	cfg := testConfig(strings.TrimPrefix(srv.URL, "http://"))
	cfg.Dispatcher = in.dispatch
	c, err := Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	if err := c.Send([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	if got := in.wait(t, 1); got[0] != "echo: ping" {
		t.Errorf("got %v", got)
	}
	c.Close()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestClientsChatThroughRelay(t *testing.T) {
	ln, err := tcp.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	relay := chat.NewRelay(chat.RelayConfig{Logger: quiet})
	rt, err := server.New(server.WithListener(ln), server.WithDispatcher(relay.Dispatch), server.WithLogger(quiet))
	if err != nil {
		t.Fatal(err)
	}
	go rt.Run(context.Background())
	defer func() {
		rt.Shutdown()
		<-rt.Done()
	}()

	dial := func(mask bool, in *inbox) *Client {
		cfg := testConfig(ln.Addr())
		cfg.MaskOutgoing = mask
		cfg.Dispatcher = in.dispatch
		c, err := Dial(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Dial: %v", err)
		}
		go c.Run(context.Background())
		return c
	}

	aliceIn, bobIn := &inbox{}, &inbox{}
	alice := dial(true, aliceIn)
	// Unmasked frames from the legacy client are still accepted.
	bob := dial(false, bobIn)
	deadline := time.Now().Add(2 * time.Second)
	for rt.Len() != 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	alice.Send(chat.EncodePayload("alice", "hi bob"))
	if got := bobIn.wait(t, 1); got[0] != "alice: hi bob" {
		t.Errorf("bob got %v", got)
	}
	bob.Send(chat.EncodePayload("bob", "hi alice"))
	if got := aliceIn.wait(t, 1); got[0] != "bob: hi alice" {
		t.Errorf("alice got %v", got)
	}

	// Server shutdown ends the client loops.
	rt.Shutdown()
	for _, c := range []*Client{alice, bob} {
		select {
		case <-c.Runtime().Done():
		case <-time.After(2 * time.Second):
			t.Fatal("client did not stop after server shutdown")
		}
	}
}

func TestDialRejectsWrongAccept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, _ := w.(http.Hijacker)
		conn, buf, err := hj.Hijack()
		if err != nil {
			return
		}
		defer conn.Close()
		buf.WriteString("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: bogus\r\n\r\n")
		buf.Flush()
	}))
	defer srv.Close()

	_, err := Dial(context.Background(), testConfig(strings.TrimPrefix(srv.URL, "http://")))
	if !errors.Is(err, protocol.ErrAcceptMismatch) {
		t.Fatalf("got %v", err)
	}
}
