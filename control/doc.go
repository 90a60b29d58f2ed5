// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime metrics and status introspection for the relay
// binaries.
//
// Provides concurrent-safe state handling primitives including:
//   - Config defaults, YAML overlay and validation
//   - A live config snapshot with reload listeners
//   - Counters and gauges updated by the event loop
//   - Debug probes and an HTTP status endpoint
package control
