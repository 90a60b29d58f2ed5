// File: core/digest/digest.go
// Package digest implements the 160-bit Merkle–Damgård digest used for
// WebSocket accept-key derivation.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The engine is a pure function of its input and carries no shared state.
// New returns a streaming hash.Hash so callers can plug it wherever a
// standard hash is expected.

package digest

import (
	"encoding/binary"
	"hash"
	"math/bits"
)

const (
	// Size is the digest length in bytes.
	Size = 20
	// BlockSize is the compression block length in bytes.
	BlockSize = 64
)

const (
	init0 = 0x67452301
	init1 = 0xEFCDAB89
	init2 = 0x98BADCFE
	init3 = 0x10325476
	init4 = 0xC3D2E1F0
)

// Round constants, one per 20-round stage.
const (
	k0 = 0x5A827999
	k1 = 0x6ED9EBA1
	k2 = 0x8F1BBCDC
	k3 = 0xCA62C1D6
)

// Sum returns the digest of data.
func Sum(data []byte) [Size]byte {
	var d engine
	d.Reset()
	d.Write(data)
	return d.checkSum()
}

// New returns a streaming digest.
func New() hash.Hash {
	d := new(engine)
	d.Reset()
	return d
}

// engine holds the five state words and the partially filled block.
type engine struct {
	h   [5]uint32
	x   [BlockSize]byte
	nx  int
	len uint64
}

func (d *engine) Reset() {
	d.h = [5]uint32{init0, init1, init2, init3, init4}
	d.nx = 0
	d.len = 0
}

func (d *engine) Size() int      { return Size }
func (d *engine) BlockSize() int { return BlockSize }

func (d *engine) Write(p []byte) (int, error) {
	n := len(p)
	d.len += uint64(n)
	if d.nx > 0 {
		c := copy(d.x[d.nx:], p)
		d.nx += c
		if d.nx == BlockSize {
			block(&d.h, d.x[:])
			d.nx = 0
		}
		p = p[c:]
	}
	for len(p) >= BlockSize {
		block(&d.h, p[:BlockSize])
		p = p[BlockSize:]
	}
	if len(p) > 0 {
		d.nx = copy(d.x[:], p)
	}
	return n, nil
}

// Sum appends the digest of the data written so far to in. The receiver is
// not modified.
func (d *engine) Sum(in []byte) []byte {
	d0 := *d
	sum := d0.checkSum()
	return append(in, sum[:]...)
}

// checkSum pads the message (0x80, zeros up to 56 mod 64, 64-bit big-endian
// bit length) and emits the state words big-endian.
func (d *engine) checkSum() [Size]byte {
	bitLen := d.len << 3

	var tmp [BlockSize + 8]byte
	tmp[0] = 0x80
	var pad int
	if d.len%BlockSize < 56 {
		pad = int(56 - d.len%BlockSize)
	} else {
		pad = int(BlockSize + 56 - d.len%BlockSize)
	}
	binary.BigEndian.PutUint64(tmp[pad:], bitLen)
	d.Write(tmp[:pad+8])

	if d.nx != 0 {
		panic("digest: padding left a partial block")
	}

	var out [Size]byte
	for i, w := range d.h {
		binary.BigEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// block runs the 80-round compression over one 64-byte chunk.
func block(h *[5]uint32, p []byte) {
	var w [80]uint32
	for i := 0; i < 16; i++ {
		w[i] = binary.BigEndian.Uint32(p[i*4:])
	}
	for i := 16; i < 80; i++ {
		w[i] = bits.RotateLeft32(w[i-3]^w[i-8]^w[i-14]^w[i-16], 1)
	}

	a, b, c, d, e := h[0], h[1], h[2], h[3], h[4]
	for i := 0; i < 80; i++ {
		var f, k uint32
		switch {
		case i < 20:
			f = (b & c) | (^b & d)
			k = k0
		case i < 40:
			f = b ^ c ^ d
			k = k1
		case i < 60:
			f = (b & c) | (b & d) | (c & d)
			k = k2
		default:
			f = b ^ c ^ d
			k = k3
		}
		t := bits.RotateLeft32(a, 5) + f + e + k + w[i]
		e = d
		d = c
		c = bits.RotateLeft32(b, 30)
		b = a
		a = t
	}

	h[0] += a
	h[1] += b
	h[2] += c
	h[3] += d
	h[4] += e
}
