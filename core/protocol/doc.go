// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Implements the pure WebSocket wire logic (RFC 6455 subset) for wsrelay.
//
// Includes:
//   - Single-frame encoding with 7-bit and 16-bit length fields
//   - Frame decoding with masking and incomplete-frame detection
//   - Raw header-block field extraction for the upgrade handshake
//   - Accept-key derivation over the in-tree digest and text encoder
//
// Nothing here touches the network; package github.com/momentics/wsrelay/protocol
// drives these primitives over a transport.
package protocol
