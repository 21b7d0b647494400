package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Washdeck console.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Fleet     FleetConfig     `yaml:"fleet"`
	Session   SessionConfig   `yaml:"session"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// FleetConfig contains connection settings for the fleet server.
type FleetConfig struct {
	// BaseURL is the HTTP base URL of the fleet REST API (e.g. "http://localhost:8000").
	BaseURL string `yaml:"base_url"`

	// WSURL is the websocket base URL for the per-device push channels
	// (e.g. "ws://localhost:8000"). Defaults to BaseURL with the scheme
	// switched to ws/wss when empty.
	WSURL string `yaml:"ws_url"`

	// Timeout is the per-request timeout for REST calls (seconds).
	Timeout int `yaml:"timeout"`
}

// SessionConfig contains settings for the persisted operator session.
type SessionConfig struct {
	// DatabasePath is the filesystem path to the SQLite session database.
	DatabasePath string `yaml:"database_path"`

	// WALMode enables Write-Ahead Logging for the session database.
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int `yaml:"busy_timeout"`

	// Username and Password are optional operator credentials used by the
	// headless console when no persisted session exists. Prefer setting
	// these via WASHDECK_SESSION_USERNAME / WASHDECK_SESSION_PASSWORD.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ChannelsConfig contains settings for the per-device push channels.
type ChannelsConfig struct {
	// HandshakeTimeout is the websocket dial timeout (seconds).
	HandshakeTimeout int `yaml:"handshake_timeout"`

	// MaxMessageSize is the maximum inbound message size in bytes.
	MaxMessageSize int `yaml:"max_message_size"`
}

// TelemetryConfig contains InfluxDB usage-telemetry settings.
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: WASHDECK_SECTION_KEY
// For example: WASHDECK_FLEET_BASE_URL, WASHDECK_SESSION_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Fleet: FleetConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 10,
		},
		Session: SessionConfig{
			DatabasePath: "./data/washdeck.db",
			WALMode:      true,
			BusyTimeout:  5,
		},
		Channels: ChannelsConfig{
			HandshakeTimeout: 10,
			MaxMessageSize:   4096,
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WASHDECK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Fleet
	if v := os.Getenv("WASHDECK_FLEET_BASE_URL"); v != "" {
		cfg.Fleet.BaseURL = v
	}
	if v := os.Getenv("WASHDECK_FLEET_WS_URL"); v != "" {
		cfg.Fleet.WSURL = v
	}

	// Session
	if v := os.Getenv("WASHDECK_SESSION_DATABASE_PATH"); v != "" {
		cfg.Session.DatabasePath = v
	}
	if v := os.Getenv("WASHDECK_SESSION_USERNAME"); v != "" {
		cfg.Session.Username = v
	}
	if v := os.Getenv("WASHDECK_SESSION_PASSWORD"); v != "" {
		cfg.Session.Password = v
	}

	// Telemetry
	if v := os.Getenv("WASHDECK_TELEMETRY_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Telemetry.Enabled = enabled
		}
	}
	if v := os.Getenv("WASHDECK_TELEMETRY_URL"); v != "" {
		cfg.Telemetry.URL = v
	}
	if v := os.Getenv("WASHDECK_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}

	// Logging
	if v := os.Getenv("WASHDECK_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Fleet validation
	if c.Fleet.BaseURL == "" {
		errs = append(errs, "fleet.base_url is required")
	} else if !strings.HasPrefix(c.Fleet.BaseURL, "http://") && !strings.HasPrefix(c.Fleet.BaseURL, "https://") {
		errs = append(errs, "fleet.base_url must start with http:// or https://")
	}
	if c.Fleet.WSURL != "" && !strings.HasPrefix(c.Fleet.WSURL, "ws://") && !strings.HasPrefix(c.Fleet.WSURL, "wss://") {
		errs = append(errs, "fleet.ws_url must start with ws:// or wss://")
	}
	if c.Fleet.Timeout <= 0 {
		errs = append(errs, "fleet.timeout must be positive")
	}

	// Session validation
	if c.Session.DatabasePath == "" {
		errs = append(errs, "session.database_path is required")
	}

	// Channels validation
	if c.Channels.HandshakeTimeout <= 0 {
		errs = append(errs, "channels.handshake_timeout must be positive")
	}
	if c.Channels.MaxMessageSize <= 0 {
		errs = append(errs, "channels.max_message_size must be positive")
	}

	// Telemetry validation (only when enabled)
	if c.Telemetry.Enabled {
		if c.Telemetry.URL == "" {
			errs = append(errs, "telemetry.url is required when telemetry is enabled")
		}
		if c.Telemetry.Bucket == "" {
			errs = append(errs, "telemetry.bucket is required when telemetry is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// FleetWSURL returns the websocket base URL for push channels, deriving it
// from the REST base URL when ws_url is not set explicitly.
func (c *Config) FleetWSURL() string {
	if c.Fleet.WSURL != "" {
		return c.Fleet.WSURL
	}
	switch {
	case strings.HasPrefix(c.Fleet.BaseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.Fleet.BaseURL, "https://")
	case strings.HasPrefix(c.Fleet.BaseURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.Fleet.BaseURL, "http://")
	default:
		return c.Fleet.BaseURL
	}
}

// GetFleetTimeout returns the fleet REST timeout as a Duration.
func (c *Config) GetFleetTimeout() time.Duration {
	return time.Duration(c.Fleet.Timeout) * time.Second
}
