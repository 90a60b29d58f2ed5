package protocol_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/momentics/wsrelay/core/protocol"
)

func TestEncodeDecodeFrame(t *testing.T) {
	payload := []byte("hello")
	data := protocol.EncodeFrame(protocol.OpcodeText, payload)
	if data[0] != 0x81 || data[1] != byte(len(payload)) {
		t.Fatalf("unexpected header % x", data[:2])
	}
	got, n, err := protocol.DecodeFrame(data)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(data) {
		t.Errorf("consumed %d of %d bytes", n, len(data))
	}
	if !got.Fin || got.Opcode != protocol.OpcodeText || got.Masked {
		t.Errorf("unexpected metadata %+v", got)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Error("Payload mismatch")
	}
}

func TestEncodeEmptyCloseFrame(t *testing.T) {
	data := protocol.EncodeFrame(protocol.OpcodeClose, nil)
	if !bytes.Equal(data, []byte{0x88, 0x00}) {
		t.Fatalf("close frame = % x", data)
	}
}

func TestExtendedLengthField(t *testing.T) {
	for _, n := range []int{126, 127, 1000, 65535} {
		payload := bytes.Repeat([]byte{'x'}, n)
		data := protocol.EncodeFrame(protocol.OpcodeBinary, payload)
		if data[1] != 126 {
			t.Fatalf("len %d: length code %d, want 126", n, data[1])
		}
		if got := binary.BigEndian.Uint16(data[2:4]); int(got) != n {
			t.Fatalf("len %d: extended field %d", n, got)
		}
		f, consumed, err := protocol.DecodeFrame(data)
		if err != nil {
			t.Fatalf("len %d: %v", n, err)
		}
		if consumed != 4+n || !bytes.Equal(f.Payload, payload) {
			t.Fatalf("len %d: decode mismatch", n)
		}
	}
}

func TestShortLengthBoundary(t *testing.T) {
	data := protocol.EncodeFrame(protocol.OpcodeText, bytes.Repeat([]byte{'a'}, 125))
	if data[1] != 125 || len(data) != 127 {
		t.Fatalf("125-byte payload encoded with header % x", data[:2])
	}
}

func TestAppendFrameRejectsOversizedPayload(t *testing.T) {
	big := make([]byte, protocol.MaxPayloadLen+1)
	if err := protocol.CheckPayload(big); !errors.Is(err, protocol.ErrPayloadTooLarge) {
		t.Fatalf("CheckPayload = %v", err)
	}
	if err := protocol.CheckPayload(big[:protocol.MaxPayloadLen]); err != nil {
		t.Fatalf("CheckPayload at limit = %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for oversized payload")
		}
	}()
	protocol.AppendFrame(nil, protocol.OpcodeText, big)
}

func TestDecodeMaskedFrame(t *testing.T) {
	key := [4]byte{0x37, 0xfa, 0x21, 0x3d}
	// RFC 6455 section 5.7: masked "Hello".
	raw := []byte{0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58}
	f, n, err := protocol.DecodeFrame(raw)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(raw) || !f.Masked || f.MaskKey != key {
		t.Fatalf("unexpected frame %+v (n=%d)", f, n)
	}
	if string(f.Payload) != "Hello" {
		t.Fatalf("payload %q", f.Payload)
	}

	enc := protocol.AppendMaskedFrame(nil, protocol.OpcodeText, []byte("Hello"), key)
	if !bytes.Equal(enc, raw) {
		t.Fatalf("masked encode % x, want % x", enc, raw)
	}
}

func TestAppendMaskedFrameLeavesPayloadIntact(t *testing.T) {
	payload := []byte("keep me")
	protocol.AppendMaskedFrame(nil, protocol.OpcodeText, payload, [4]byte{1, 2, 3, 4})
	if string(payload) != "keep me" {
		t.Fatalf("payload mutated to %q", payload)
	}
}

func TestDecodeRejects64BitLength(t *testing.T) {
	raw := []byte{0x82, 127, 0, 0, 0, 0, 0, 0, 0, 5, 'a', 'b', 'c', 'd', 'e'}
	if _, _, err := protocol.DecodeFrame(raw); !errors.Is(err, protocol.ErrUnsupportedLength) {
		t.Fatalf("err = %v, want ErrUnsupportedLength", err)
	}
	// Fails even before the extended field arrives.
	if _, _, err := protocol.DecodeFrame(raw[:2]); !errors.Is(err, protocol.ErrUnsupportedLength) {
		t.Fatalf("short err = %v", err)
	}
}

func TestDecodeIncomplete(t *testing.T) {
	full := protocol.AppendMaskedFrame(nil, protocol.OpcodeText, bytes.Repeat([]byte{'z'}, 300), [4]byte{9, 8, 7, 6})
	for _, cut := range []int{0, 1, 2, 3, 4, 7, 8, len(full) - 1} {
		if _, n, err := protocol.DecodeFrame(full[:cut]); !errors.Is(err, protocol.ErrIncompleteFrame) || n != 0 {
			t.Errorf("cut %d: n=%d err=%v", cut, n, err)
		}
	}
}

func TestDecodeConsumesOnlyFirstFrame(t *testing.T) {
	raw := protocol.EncodeFrame(protocol.OpcodeText, []byte("one"))
	raw = protocol.AppendFrame(raw, protocol.OpcodeText, []byte("two"))
	f, n, err := protocol.DecodeFrame(raw)
	if err != nil || string(f.Payload) != "one" {
		t.Fatalf("first frame %q, %v", f.Payload, err)
	}
	f, _, err = protocol.DecodeFrame(raw[n:])
	if err != nil || string(f.Payload) != "two" {
		t.Fatalf("second frame %q, %v", f.Payload, err)
	}
}

func TestFrameRoundTripProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.MaxSize = protocol.MaxShortLen
	properties := gopter.NewProperties(parameters)

	properties.Property("short unmasked payloads round-trip", prop.ForAll(
		func(p []byte) bool {
			f, n, err := protocol.DecodeFrame(protocol.EncodeFrame(protocol.OpcodeText, p))
			return err == nil && n == len(p)+2 && bytes.Equal(f.Payload, p)
		},
		gen.SliceOf(gen.UInt8()).SuchThat(func(b []byte) bool { return len(b) <= protocol.MaxShortLen }),
	))

	properties.Property("extended payloads carry a 16-bit length and round-trip", prop.ForAll(
		func(n int, fill byte) bool {
			p := bytes.Repeat([]byte{fill}, n)
			data := protocol.EncodeFrame(protocol.OpcodeBinary, p)
			if data[1] != 126 || int(binary.BigEndian.Uint16(data[2:])) != n {
				return false
			}
			f, _, err := protocol.DecodeFrame(data)
			return err == nil && bytes.Equal(f.Payload, p)
		},
		gen.IntRange(126, protocol.MaxPayloadLen),
		gen.UInt8(),
	))

	properties.Property("masked payloads decode to the original bytes", prop.ForAll(
		func(p []byte, k0, k1, k2, k3 byte) bool {
			key := [4]byte{k0, k1, k2, k3}
			f, _, err := protocol.DecodeFrame(protocol.AppendMaskedFrame(nil, protocol.OpcodeBinary, p, key))
			return err == nil && f.Masked && f.MaskKey == key && bytes.Equal(f.Payload, p)
		},
		gen.SliceOf(gen.UInt8()),
		gen.UInt8(), gen.UInt8(), gen.UInt8(), gen.UInt8(),
	))

	properties.TestingRun(t)
}
