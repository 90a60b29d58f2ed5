// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness reactor that drives wsrelay's single
// event loop: one wait over the listener, every open connection and a wake
// pipe fed by the command mailbox.
package reactor
