// File: core/textenc/textenc.go
// Package textenc renders binary values as printable text for HTTP headers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package textenc

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

const padChar = '='

// EncodedLen returns the length of the padded encoding of n source bytes.
func EncodedLen(n int) int {
	return (n + 2) / 3 * 4
}

// Encode writes the padded encoding of src into dst, which must hold at
// least EncodedLen(len(src)) bytes.
func Encode(dst, src []byte) {
	di, si := 0, 0
	n := len(src) / 3 * 3
	for si < n {
		v := uint(src[si])<<16 | uint(src[si+1])<<8 | uint(src[si+2])
		dst[di+0] = alphabet[v>>18&0x3F]
		dst[di+1] = alphabet[v>>12&0x3F]
		dst[di+2] = alphabet[v>>6&0x3F]
		dst[di+3] = alphabet[v&0x3F]
		si += 3
		di += 4
	}

	switch len(src) - si {
	case 1:
		v := uint(src[si]) << 16
		dst[di+0] = alphabet[v>>18&0x3F]
		dst[di+1] = alphabet[v>>12&0x3F]
		dst[di+2] = padChar
		dst[di+3] = padChar
	case 2:
		v := uint(src[si])<<16 | uint(src[si+1])<<8
		dst[di+0] = alphabet[v>>18&0x3F]
		dst[di+1] = alphabet[v>>12&0x3F]
		dst[di+2] = alphabet[v>>6&0x3F]
		dst[di+3] = padChar
	}
}

// EncodeToString returns the padded encoding of src.
func EncodeToString(src []byte) string {
	buf := make([]byte, EncodedLen(len(src)))
	Encode(buf, src)
	return string(buf)
}
