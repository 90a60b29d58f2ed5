// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics collector for system-level monitoring.
// Exposes counters in a thread-safe map with dynamic registration.

package control

import (
	"sync"
	"time"
)

// Metric names maintained by the relay runtime.
const (
	MetricConnectionsOpen   = "connections_open"
	MetricConnectionsTotal  = "connections_total"
	MetricHandshakesFailed  = "handshakes_failed"
	MetricFramesIn          = "frames_in"
	MetricFramesOut         = "frames_out"
	MetricMalformedMessages = "malformed_messages"
	MetricBroadcasts        = "broadcasts"
)

// MetricsRegistry holds mutable and read-only metrics.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]any
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metrics: make(map[string]any),
	}
}

// Set sets or updates a metric key.
func (mr *MetricsRegistry) Set(key string, value any) {
	mr.mu.Lock()
	mr.metrics[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Add increments an int64 counter, creating it at zero. A nil registry is
// a no-op so components can run without metrics.
func (mr *MetricsRegistry) Add(key string, delta int64) {
	if mr == nil {
		return
	}
	mr.mu.Lock()
	v, _ := mr.metrics[key].(int64)
	mr.metrics[key] = v + delta
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Inc is Add(key, 1).
func (mr *MetricsRegistry) Inc(key string) { mr.Add(key, 1) }

// Counter returns the int64 value of key, zero when unset.
func (mr *MetricsRegistry) Counter(key string) int64 {
	if mr == nil {
		return 0
	}
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	v, _ := mr.metrics[key].(int64)
	return v
}

// GetSnapshot returns the latest metrics.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.metrics))
	for k, v := range mr.metrics {
		out[k] = v
	}
	return out
}

// UpdatedAt reports the time of the last change.
func (mr *MetricsRegistry) UpdatedAt() time.Time {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.updated
}
