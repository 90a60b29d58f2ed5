package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/momentics/wsrelay/api"
	core "github.com/momentics/wsrelay/core/protocol"
	"github.com/momentics/wsrelay/fake"
)

func openConn(t *testing.T, opts ConnOptions) (*Conn, *fake.Conn) {
	t.Helper()
	n := fake.NewNetwork()
	tr := n.NewConn("peer")
	tr.Feed([]byte(upgradeRequest))
	c, err := Accept(1, tr, AcceptOptions{Conn: opts})
	if err != nil {
		t.Fatal(err)
	}
	tr.ResetWritten()
	return c, tr
}

func TestAcceptOpensConnection(t *testing.T) {
	c, _ := openConn(t, ConnOptions{})
	if c.State() != api.StateOpen || c.Role() != api.RoleServer || c.ID() != 1 {
		t.Fatalf("state=%s role=%s id=%d", c.State(), c.Role(), c.ID())
	}
}

func TestAcceptFailureReleasesTransport(t *testing.T) {
	n := fake.NewNetwork()
	tr := n.NewConn("peer")
	tr.Feed([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))

	var served *Upgrade
	_, err := Accept(2, tr, AcceptOptions{PlainRequest: func(_ api.Conn, up *Upgrade) { served = up }})
	if !errors.Is(err, ErrNotUpgrade) {
		t.Fatalf("err = %v", err)
	}
	if served == nil {
		t.Fatal("plain request hook not called")
	}
	if tr.CloseCount() != 1 {
		t.Fatalf("transport closed %d times", tr.CloseCount())
	}
}

func TestAcceptServesUpgradeWithoutKeyAsPlainRequest(t *testing.T) {
	n := fake.NewNetwork()
	tr := n.NewConn("browser")
	tr.Feed([]byte("GET / HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\n\r\n"))

	served := false
	_, err := Accept(3, tr, AcceptOptions{PlainRequest: func(api.Conn, *Upgrade) { served = true }})
	if !errors.Is(err, ErrMissingKey) {
		t.Fatalf("err = %v", err)
	}
	if !served {
		t.Fatal("page not served for an upgrade request without a key")
	}
	if tr.CloseCount() != 1 {
		t.Fatalf("transport closed %d times", tr.CloseCount())
	}
}

func TestReadFramesBuffersPartialFrames(t *testing.T) {
	c, tr := openConn(t, ConnOptions{})
	frame := core.AppendMaskedFrame(nil, core.OpcodeText, []byte("split across reads"), [4]byte{1, 2, 3, 4})

	tr.Feed(frame[:5])
	got, err := c.ReadFrames(nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("first read: %v frames, err %v", len(got), err)
	}
	if c.Buffered() != 5 {
		t.Fatalf("buffered %d", c.Buffered())
	}
	second := append(frame[5:], core.EncodeFrame(core.OpcodeText, []byte("next"))...)
	tr.Feed(second)
	got, err = c.ReadFrames(nil)
	if err != nil || len(got) != 2 {
		t.Fatalf("second read: %d frames, err %v", len(got), err)
	}
	if string(got[0].Payload) != "split across reads" || string(got[1].Payload) != "next" {
		t.Fatalf("payloads %q %q", got[0].Payload, got[1].Payload)
	}
	if c.Buffered() != 0 || c.FramesIn() != 2 {
		t.Fatalf("buffered=%d framesIn=%d", c.Buffered(), c.FramesIn())
	}
}

func TestReadFramesDiscardPartialMode(t *testing.T) {
	c, tr := openConn(t, ConnOptions{DiscardPartial: true})
	frame := core.EncodeFrame(core.OpcodeText, []byte("lost"))
	tr.Feed(frame[:3])
	if got, _ := c.ReadFrames(nil); len(got) != 0 {
		t.Fatal("partial frame decoded")
	}
	tr.Feed(frame[3:])
	if got, _ := c.ReadFrames(nil); len(got) != 0 {
		t.Fatal("discarded prefix was kept")
	}
	if c.Buffered() != 0 {
		t.Fatalf("buffered %d", c.Buffered())
	}
}

func TestReadFramesErrors(t *testing.T) {
	c, tr := openConn(t, ConnOptions{})
	tr.Feed([]byte{0x81, 127, 0, 0, 0, 0, 0, 0, 0, 1, 'x'})
	_, err := c.ReadFrames(nil)
	if !errors.Is(err, core.ErrUnsupportedLength) || api.KindOf(err) != api.KindProtocol {
		t.Fatalf("err = %v", err)
	}

	tr.HangUp()
	_, err = c.ReadFrames(nil)
	if api.KindOf(err) != api.KindTransport {
		t.Fatalf("hang-up err = %v", err)
	}
}

func TestLeftoverIsDecodedWithoutRead(t *testing.T) {
	n := fake.NewNetwork()
	tr := n.NewConn("peer")
	tr.Feed(append([]byte(upgradeRequest), core.EncodeFrame(core.OpcodeText, []byte("hi"))...))
	c, err := Accept(3, tr, AcceptOptions{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.DecodeBuffered(nil)
	if err != nil || len(got) != 1 || string(got[0].Payload) != "hi" {
		t.Fatalf("got %v err %v", got, err)
	}
}

func TestWriteMessageUnmaskedAndMasked(t *testing.T) {
	c, tr := openConn(t, ConnOptions{})
	if err := c.WriteText([]byte("plain")); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(tr.Written(), core.EncodeFrame(core.OpcodeText, []byte("plain"))) {
		t.Fatalf("wrote % x", tr.Written())
	}

	m, mtr := openConn(t, ConnOptions{MaskOutgoing: true})
	if err := m.WriteText([]byte("secret")); err != nil {
		t.Fatal(err)
	}
	f, _, err := core.DecodeFrame(mtr.Written())
	if err != nil || !f.Masked || string(f.Payload) != "secret" {
		t.Fatalf("masked frame %+v err %v", f, err)
	}
}

func TestWriteMessageRejectsOversizedPayload(t *testing.T) {
	c, tr := openConn(t, ConnOptions{})
	err := c.WriteText(make([]byte, core.MaxPayloadLen+1))
	if !errors.Is(err, core.ErrPayloadTooLarge) || api.KindOf(err) != api.KindApplication {
		t.Fatalf("err = %v", err)
	}
	if len(tr.Written()) != 0 {
		t.Fatal("oversized payload reached the transport")
	}
}

func TestCloseReleasesTransportOnce(t *testing.T) {
	c, tr := openConn(t, ConnOptions{})
	if err := c.WriteClose(); err != nil {
		t.Fatal(err)
	}
	if c.State() != api.StateClosing {
		t.Fatalf("state after close frame %s", c.State())
	}
	if !bytes.Equal(tr.Written(), []byte{0x88, 0x00}) {
		t.Fatalf("close frame % x", tr.Written())
	}
	c.Close()
	c.Close()
	if tr.CloseCount() != 1 || c.State() != api.StateClosed {
		t.Fatalf("closes=%d state=%s", tr.CloseCount(), c.State())
	}
	if err := c.WriteText([]byte("late")); api.KindOf(err) != api.KindTransport {
		t.Fatalf("write after close: %v", err)
	}
}
