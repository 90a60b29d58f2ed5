// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Relay configuration: defaults, YAML overlay and a thread-safe live store
// with reload propagation.

package control

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the server, client and monitor.
type Config struct {
	ListenAddr string `yaml:"listen_addr"` // TCP bind address for wsserver and wsmonitor
	ServerAddr string `yaml:"server_addr"` // host:port wsclient dials
	Path       string `yaml:"path"`        // request target sent by the client
	StatusAddr string `yaml:"status_addr"` // optional HTTP status endpoint; empty disables it

	HistoryPath   string `yaml:"history_path"`   // optional sqlite chat history; empty disables it
	HistoryReplay int    `yaml:"history_replay"` // stored messages sent to a client on join

	ReadBufferSize      int           `yaml:"read_buffer_size"`      // bytes per receive call
	HandshakeBufferSize int           `yaml:"handshake_buffer_size"` // bytes for the single handshake read
	HandshakeTimeout    time.Duration `yaml:"handshake_timeout"`     // read deadline while negotiating
	DialTimeout         time.Duration `yaml:"dial_timeout"`

	MaskOutgoing   bool `yaml:"mask_outgoing"`   // client frames carry a mask key
	DiscardPartial bool `yaml:"discard_partial"` // drop incomplete frames at the end of a read
	FixedKey       bool `yaml:"fixed_key"`       // client sends the RFC sample key instead of a nonce

	MonitorDebounce time.Duration `yaml:"monitor_debounce"` // coalesces bursts of file events
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:          ":8080",
		ServerAddr:          "127.0.0.1:8080",
		Path:                "/",
		ReadBufferSize:      4096,
		HandshakeBufferSize: 4096,
		HandshakeTimeout:    10 * time.Second,
		DialTimeout:         5 * time.Second,
		HistoryReplay:       10,
		MaskOutgoing:        true,
		MonitorDebounce:     50 * time.Millisecond,
	}
}

// ErrInvalidConfig marks a rejected configuration value.
var ErrInvalidConfig = errors.New("invalid config")

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.ReadBufferSize <= 0:
		return fmt.Errorf("%w: read_buffer_size must be positive", ErrInvalidConfig)
	case c.HandshakeBufferSize < 256:
		return fmt.Errorf("%w: handshake_buffer_size must be at least 256", ErrInvalidConfig)
	case c.HandshakeTimeout < 0, c.DialTimeout < 0, c.MonitorDebounce < 0:
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	case c.HistoryReplay < 0:
		return fmt.Errorf("%w: history_replay must not be negative", ErrInvalidConfig)
	case c.Path == "" || c.Path[0] != '/':
		return fmt.Errorf("%w: path must start with '/'", ErrInvalidConfig)
	}
	return nil
}

// Clone returns an independent copy.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// LoadConfig overlays the YAML file at path on DefaultConfig. An empty path
// returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := ParseConfig(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes YAML into cfg, keeping fields the document omits.
func ParseConfig(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg.Validate()
}

// ConfigStore keeps the live Config snapshot and notifies listeners when it
// is replaced.
type ConfigStore struct {
	mu        sync.RWMutex
	config    *Config
	listeners []func(*Config)
}

// NewConfigStore initializes a store holding cfg (DefaultConfig when nil).
func NewConfigStore(cfg *Config) *ConfigStore {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &ConfigStore{config: cfg.Clone()}
}

// Snapshot returns a copy of the current config.
func (cs *ConfigStore) Snapshot() *Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.config.Clone()
}

// Update applies fn to a copy of the current config, validates it and, on
// success, publishes it and invokes every listener synchronously.
func (cs *ConfigStore) Update(fn func(*Config)) error {
	cs.mu.Lock()
	next := cs.config.Clone()
	fn(next)
	if err := next.Validate(); err != nil {
		cs.mu.Unlock()
		return err
	}
	cs.config = next
	listeners := slices.Clone(cs.listeners)
	cs.mu.Unlock()

	for _, l := range listeners {
		l(next.Clone())
	}
	return nil
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func(*Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
