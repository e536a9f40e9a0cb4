// Package config loads canvasbridge.jsonc: one JSONC file carrying the MCP
// server address, the relay settings, and the bridge reconnect policy.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the unified configuration file format for canvasbridge.jsonc.
type Config struct {
	Server ServerSection `json:"server"`
	Relay  RelaySection  `json:"relay"`
	Bridge BridgeSection `json:"bridge"`
	Log    LogSection    `json:"log"`
}

// ServerSection configures the agent-facing MCP server.
type ServerSection struct {
	Address string `json:"address"`
}

// RelaySection configures the websocket relay.
type RelaySection struct {
	// URL is where bridge clients dial the relay.
	URL string `json:"url"`

	// Address is the relay's own listen address.
	Address string `json:"address"`

	// RateLimit is frames per second per connection; 0 disables limiting.
	RateLimit float64 `json:"rate_limit"`

	// RateBurst is the per-connection burst allowance.
	RateBurst int `json:"rate_burst"`

	// MaxFrameKB bounds incoming frame size in kilobytes.
	MaxFrameKB int `json:"max_frame_kb"`
}

// BridgeSection configures connection and dispatch behavior.
type BridgeSection struct {
	AutoReconnect        bool `json:"auto_reconnect"`
	ReconnectInitialMS   int  `json:"reconnect_initial_ms"`
	ReconnectMaxMS       int  `json:"reconnect_max_ms"`
	MaxReconnectAttempts int  `json:"max_reconnect_attempts"`
	CommandTimeoutSec    int  `json:"command_timeout_sec"`
	PingIntervalSec      int  `json:"ping_interval_sec"`
}

// LogSection configures logging output.
type LogSection struct {
	Directory string `json:"directory"`
	JSON      bool   `json:"json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerSection{Address: ":8093"},
		Relay: RelaySection{
			URL:        "ws://localhost:3055/ws",
			Address:    ":3055",
			RateLimit:  200,
			RateBurst:  400,
			MaxFrameKB: 4096,
		},
		Bridge: BridgeSection{
			AutoReconnect:        true,
			ReconnectInitialMS:   1000,
			ReconnectMaxMS:       30000,
			MaxReconnectAttempts: 0,
			CommandTimeoutSec:    60,
			PingIntervalSec:      30,
		},
		Log: LogSection{Directory: "logs"},
	}
}

// FindPath returns the path to canvasbridge.jsonc using precedence:
// 1. configDir/canvasbridge.jsonc (if configDir specified)
// 2. ./config/canvasbridge.jsonc (project-local)
// 3. ~/.canvasbridge/config/canvasbridge.jsonc (user global)
func FindPath(configDir string) (string, error) {
	if configDir != "" {
		path := filepath.Join(configDir, "canvasbridge.jsonc")
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("canvasbridge.jsonc not found in %s", configDir)
		}
		if abs, err := filepath.Abs(path); err == nil {
			return abs, nil
		}
		return path, nil
	}

	candidates := []string{
		filepath.Join("config", "canvasbridge.jsonc"),
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".canvasbridge", "config", "canvasbridge.jsonc"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs, nil
			}
			return path, nil
		}
	}

	return "", fmt.Errorf("canvasbridge.jsonc not found; tried: %v", candidates)
}

// LoadFile parses one canvasbridge.jsonc file, filling unset fields from the
// defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(StripComments(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Load resolves the config path (empty configDir means the search order in
// FindPath) and parses it. A missing file yields the defaults rather than an
// error when no explicit directory was given.
func Load(configDir string) (*Config, error) {
	path, err := FindPath(configDir)
	if err != nil {
		if configDir != "" {
			return nil, err
		}
		return Default(), nil
	}
	return LoadFile(path)
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.Address == "" {
		cfg.Server.Address = def.Server.Address
	}
	if cfg.Relay.URL == "" {
		cfg.Relay.URL = def.Relay.URL
	}
	if cfg.Relay.Address == "" {
		cfg.Relay.Address = def.Relay.Address
	}
	if cfg.Relay.RateBurst <= 0 {
		cfg.Relay.RateBurst = def.Relay.RateBurst
	}
	if cfg.Relay.MaxFrameKB <= 0 {
		cfg.Relay.MaxFrameKB = def.Relay.MaxFrameKB
	}
	if cfg.Bridge.ReconnectInitialMS <= 0 {
		cfg.Bridge.ReconnectInitialMS = def.Bridge.ReconnectInitialMS
	}
	if cfg.Bridge.ReconnectMaxMS <= 0 {
		cfg.Bridge.ReconnectMaxMS = def.Bridge.ReconnectMaxMS
	}
	if cfg.Bridge.CommandTimeoutSec <= 0 {
		cfg.Bridge.CommandTimeoutSec = def.Bridge.CommandTimeoutSec
	}
	if cfg.Log.Directory == "" {
		cfg.Log.Directory = def.Log.Directory
	}
}

// ReconnectInitial returns the initial backoff as a duration.
func (b BridgeSection) ReconnectInitial() time.Duration {
	return time.Duration(b.ReconnectInitialMS) * time.Millisecond
}

// ReconnectMax returns the backoff cap as a duration.
func (b BridgeSection) ReconnectMax() time.Duration {
	return time.Duration(b.ReconnectMaxMS) * time.Millisecond
}

// CommandTimeout returns the default command timeout as a duration.
func (b BridgeSection) CommandTimeout() time.Duration {
	return time.Duration(b.CommandTimeoutSec) * time.Second
}

// PingInterval returns the keepalive cadence as a duration.
func (b BridgeSection) PingInterval() time.Duration {
	return time.Duration(b.PingIntervalSec) * time.Second
}

// MaxFrameSize returns the frame limit in bytes.
func (r RelaySection) MaxFrameSize() int64 {
	return int64(r.MaxFrameKB) * 1024
}
