// File: core/protocol/header.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"bytes"
	"strings"
)

var headerTerminator = []byte("\r\n\r\n")

// ExtractHeader returns the value of field name in a raw CRLF-separated
// header block. Matching is a case-sensitive search for name+":" within a
// line; the value is the text after the line's first colon with leading
// blanks and trailing CR, LF and blanks removed. ok is false when the field
// is absent or its value is empty.
func ExtractHeader(block, name string) (value string, ok bool) {
	if block == "" || name == "" {
		return "", false
	}
	search := name + ":"
	for _, line := range strings.Split(block, "\n") {
		if !strings.Contains(line, search) {
			continue
		}
		colon := strings.IndexByte(line, ':')
		v := strings.TrimLeft(line[colon+1:], " \t")
		v = strings.TrimRight(v, " \t\r\n")
		if v != "" {
			return v, true
		}
	}
	return "", false
}

// StatusLine returns the first line of block without its line terminator.
func StatusLine(block string) string {
	if i := strings.IndexByte(block, '\n'); i >= 0 {
		block = block[:i]
	}
	return strings.TrimRight(block, "\r")
}

// HeaderEnd returns the index just past the blank line terminating the
// header block, or -1 if block holds no complete header.
func HeaderEnd(block []byte) int {
	if i := bytes.Index(block, headerTerminator); i >= 0 {
		return i + 4
	}
	return -1
}
