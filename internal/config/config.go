// Package config loads client configuration from JSON files. All fields
// are pointers so a partial file can override just the settings it names;
// the Get* accessors supply defaults for everything left unset.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/radarlink/internal/session"
	"github.com/banshee-data/radarlink/internal/transport"
)

// ClientConfig is the root configuration for the radarlink client.
type ClientConfig struct {
	// Transport selection. Exactly one of SerialPort or TCPAddr applies;
	// the command line may override both.
	SerialPort *string `json:"serial_port,omitempty"`
	TCPAddr    *string `json:"tcp_addr,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty"`

	// Result queue behaviour.
	QueueCapacity *int    `json:"queue_capacity,omitempty"`
	BlockOnFull   *string `json:"block_on_full,omitempty"` // duration string like "250ms"

	// Command/poll timing.
	PollInterval   *string `json:"poll_interval,omitempty"`   // duration string like "100ms"
	CommandTimeout *string `json:"command_timeout,omitempty"` // duration string like "2s"

	// Session holds the measurement configuration applied on Configure.
	Session *session.SessionConfig `json:"session,omitempty"`
}

func ptrInt(v int) *int          { return &v }
func ptrString(v string) *string { return &v }

// Empty returns a ClientConfig with every field unset.
func Empty() *ClientConfig {
	return &ClientConfig{}
}

// Load reads a ClientConfig from a JSON file. Fields omitted from the
// file stay nil, so partial configs are safe.
func Load(path string) (*ClientConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings that can be rejected without a register
// map: durations must parse, and the transport selection must not be
// ambiguous. The session config itself is validated by the session,
// against the compiled schema, on Configure.
func (c *ClientConfig) Validate() error {
	if c.SerialPort != nil && c.TCPAddr != nil {
		return fmt.Errorf("serial_port and tcp_addr are mutually exclusive")
	}
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}
	if c.QueueCapacity != nil && *c.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1, got %d", *c.QueueCapacity)
	}
	for name, v := range map[string]*string{
		"block_on_full":   c.BlockOnFull,
		"poll_interval":   c.PollInterval,
		"command_timeout": c.CommandTimeout,
	} {
		if v == nil {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}
	return nil
}

// GetBaudRate returns the configured baud rate, or the serial default.
func (c *ClientConfig) GetBaudRate() int {
	if c.BaudRate != nil {
		return *c.BaudRate
	}
	return transport.DefaultBaudRate
}

// SessionOptions maps the tuning fields onto session options; unset
// fields take the session defaults.
func (c *ClientConfig) SessionOptions() *session.Options {
	opts := &session.Options{}
	if c.QueueCapacity != nil {
		opts.QueueCapacity = *c.QueueCapacity
	}
	// Validate() has already established these parse
	if c.BlockOnFull != nil {
		opts.BlockOnFull, _ = time.ParseDuration(*c.BlockOnFull)
	}
	if c.PollInterval != nil {
		opts.PollInterval, _ = time.ParseDuration(*c.PollInterval)
	}
	if c.CommandTimeout != nil {
		opts.CommandTimeout, _ = time.ParseDuration(*c.CommandTimeout)
	}
	return opts
}
