//go:build unix

package server

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/momentics/wsrelay/transport/tcp"
)

func TestRelayWithGorillaClients(t *testing.T) {
	ln, err := tcp.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	rt, err := New(WithListener(ln), WithDispatcher(relayExceptSender), WithLogger(quiet))
	if err != nil {
		t.Fatal(err)
	}
	errc := make(chan error, 1)
	go func() { errc <- rt.Run(context.Background()) }()

	url := "ws://" + ln.Addr() + "/"
	a, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial a: %v", err)
	}
	defer a.Close()
	b, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial b: %v", err)
	}
	defer b.Close()
	waitFor(t, "both admitted", func() bool { return rt.Len() == 2 })

	if err := a.WriteMessage(websocket.TextMessage, []byte("hello from a")); err != nil {
		t.Fatal(err)
	}
	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, msg, err := b.ReadMessage()
	if err != nil {
		t.Fatalf("b read: %v", err)
	}
	if kind != websocket.TextMessage || string(msg) != "hello from a" {
		t.Errorf("b got %d %q", kind, msg)
	}

	rt.Shutdown()
	if err := <-errc; err != nil {
		t.Fatalf("Run: %v", err)
	}
	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := a.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNoStatusReceived) {
		t.Errorf("a expected close frame, got %v", err)
	}
}
