package chat

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestEncodePayloadLayout(t *testing.T) {
	got := EncodePayload("bob", "hey")
	want := []byte{0, 0, 0, 3, 'b', 'o', 'b', 'h', 'e', 'y'}
	if string(got) != string(want) {
		t.Fatalf("got %v", got)
	}
}

func TestDecodePayload(t *testing.T) {
	cases := []struct {
		in      []byte
		name    string
		msg     string
		wantErr bool
	}{
		{in: []byte{0, 0, 0, 5, 'a', 'l', 'i', 'c', 'e', 'h', 'i'}, name: "alice", msg: "hi"},
		{in: []byte{0, 0, 0, 0, 'x'}, name: "", msg: "x"},
		{in: []byte{0, 0, 0, 2, 'a', 'b'}, name: "ab", msg: ""},
		{in: nil, wantErr: true},
		{in: []byte{0, 0, 1}, wantErr: true},
		{in: []byte{0, 0, 0, 9, 'a'}, wantErr: true},
		{in: []byte{0xFF, 0xFF, 0xFF, 0xFF}, wantErr: true},
	}
	for _, tc := range cases {
		name, msg, err := DecodePayload(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("%v: expected ErrMalformed, got %v", tc.in, err)
			}
			continue
		}
		if err != nil || name != tc.name || msg != tc.msg {
			t.Errorf("%v: got %q %q %v", tc.in, name, msg, err)
		}
	}
}

func TestPayloadProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("decode inverts encode", prop.ForAll(
		func(name, msg string) bool {
			n, m, err := DecodePayload(EncodePayload(name, msg))
			return err == nil && n == name && m == msg
		},
		gen.AnyString(), gen.AnyString(),
	))

	properties.Property("truncated prefixes are rejected", prop.ForAll(
		func(name string) bool {
			p := EncodePayload(name+"!", "")
			_, _, err := DecodePayload(p[:len(p)-1])
			return errors.Is(err, ErrMalformed)
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
