// Package lrdconf loads bridge options from a TOML file and can watch
// the file for changes, applying the runtime-mutable options to a
// running bridge.
package lrdconf

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/toras9000/lrdbridge/pkg/lrdnet"
)

// Config is the on-disk configuration of a bridge. Durations are
// expressed in milliseconds, matching the option names the bridge
// publishes. Zero values select the bridge defaults.
type Config struct {
	// Listen is the accept endpoint, host:port.
	Listen string `toml:"listen"`

	// WebSocket switches the acceptor to the WebSocket form, serving
	// upgrades at WebSocketPath (default "/").
	WebSocket     bool   `toml:"websocket"`
	WebSocketPath string `toml:"websocket_path"`

	AcceptIntervalMS          int64 `toml:"accept_interval_ms"`
	BridgeTimeoutMS           int64 `toml:"bridge_timeout_ms"`
	OutgoingCacheBytes        int   `toml:"outgoing_cache_bytes"`
	PauseWriterThresholdBytes int   `toml:"pause_writer_threshold_bytes"`
	SendBufferBytes           int   `toml:"send_buffer_bytes"`
	RecvBufferBytes           int   `toml:"recv_buffer_bytes"`

	AcceptBackoffFactor float64 `toml:"accept_backoff_factor"`
	MaxAcceptIntervalMS int64   `toml:"max_accept_interval_ms"`

	// Debug enables debug-level logging and HTTP request logging on
	// the WebSocket upgrade endpoint.
	Debug bool `toml:"debug"`
}

// Load reads path as TOML. A missing file yields the zero Config (all
// bridge defaults) rather than an error, so a config file is optional.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("lrdconf: reading %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("lrdconf: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// BridgeOptions converts the file values to the bridge's option
// record. Construction-time clamping of minimums happens in the
// bridge, not here.
func (c *Config) BridgeOptions() *lrdnet.BridgeOptions {
	return &lrdnet.BridgeOptions{
		AcceptInterval:       time.Duration(c.AcceptIntervalMS) * time.Millisecond,
		BridgeTimeout:        time.Duration(c.BridgeTimeoutMS) * time.Millisecond,
		OutgoingCacheBytes:   c.OutgoingCacheBytes,
		PauseWriterThreshold: c.PauseWriterThresholdBytes,
		SendBufferBytes:      c.SendBufferBytes,
		RecvBufferBytes:      c.RecvBufferBytes,
		AcceptBackoffFactor:  c.AcceptBackoffFactor,
		MaxAcceptInterval:    time.Duration(c.MaxAcceptIntervalMS) * time.Millisecond,
	}
}

// Apply pushes the runtime-mutable options onto a running bridge.
// Zero values leave the bridge's current setting untouched.
func (c *Config) Apply(b *lrdnet.Bridge) {
	if c.AcceptIntervalMS != 0 {
		b.SetAcceptInterval(time.Duration(c.AcceptIntervalMS) * time.Millisecond)
	}
	if c.BridgeTimeoutMS != 0 {
		b.SetBridgeTimeout(time.Duration(c.BridgeTimeoutMS) * time.Millisecond)
	}
}
