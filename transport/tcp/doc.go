// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp provides the TCP listen/accept/connect capability for wsrelay.
// Handshakes and framing live above it; this layer only hands out api.Conn
// values whose descriptors can be polled for readiness.
package tcp
