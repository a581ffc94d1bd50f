// Package config loads photobooth.yaml. Every value is optional: missing
// fields keep their defaults, and CLI flags override whatever the file says.
package config

import (
	"fmt"
	"time"

	"github.com/chronologos/photobooth/internal/camera"
	"github.com/chronologos/photobooth/internal/protocol"
	"github.com/chronologos/photobooth/internal/transport"
)

// Config is the root of photobooth.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig configures the camera device.
type ServerConfig struct {
	Listen        string      `yaml:"listen"`
	IdleTimeout   Duration    `yaml:"idle_timeout"`
	WriteTimeout  Duration    `yaml:"write_timeout"`
	Backend       string      `yaml:"backend"` // "still" or "synthetic"
	Still         StillConfig `yaml:"still"`
	PowerOff      []string    `yaml:"power_off"`
	AllowPowerOff *bool       `yaml:"allow_power_off,omitempty"`
}

// StillConfig configures the rpicam-still backend.
type StillConfig struct {
	Command string            `yaml:"command"`
	Main    camera.Resolution `yaml:"main"`
	Preview camera.Resolution `yaml:"preview"`
	Args    []string          `yaml:"args,omitempty"`
	TempDir string            `yaml:"temp_dir"`
}

// ClientConfig configures the controller.
type ClientConfig struct {
	Host              string   `yaml:"host"`
	Port              int      `yaml:"port"`
	Timeout           Duration `yaml:"timeout"`
	CaptureTimeout    Duration `yaml:"capture_timeout"`
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
	IdleThreshold     Duration `yaml:"idle_threshold"`
	OutputDir         string   `yaml:"output_dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	BackendStill     = "still"
	BackendSynthetic = "synthetic"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:       transport.DefaultListenAddr,
			IdleTimeout:  Duration{30 * time.Second},
			WriteTimeout: Duration{60 * time.Second},
			Backend:      BackendStill,
			Still: StillConfig{
				Command: "rpicam-still",
				Main:    camera.DefaultMainResolution,
				Preview: camera.DefaultPreviewResolution,
			},
		},
		Client: ClientConfig{
			Host:              "raspberrypi.local",
			Port:              protocol.DefaultPort,
			Timeout:           Duration{10 * time.Second},
			CaptureTimeout:    Duration{60 * time.Second},
			HeartbeatInterval: Duration{1 * time.Second},
			IdleThreshold:     Duration{5 * time.Second},
			OutputDir:         ".",
		},
		Log: LogConfig{Level: "info"},
	}
}

// PowerOffAllowed reports whether POWER_OFF may shut the host down.
// Defaults to true, matching the booth's original behavior.
func (s ServerConfig) PowerOffAllowed() bool {
	return s.AllowPowerOff == nil || *s.AllowPowerOff
}

// Validate checks values that would otherwise fail deep inside the server
// or client.
func (c *Config) Validate() error {
	switch c.Server.Backend {
	case BackendStill, BackendSynthetic:
	default:
		return fmt.Errorf("server.backend: unknown backend %q (want %q or %q)",
			c.Server.Backend, BackendStill, BackendSynthetic)
	}
	if c.Client.Port <= 0 || c.Client.Port > 65535 {
		return fmt.Errorf("client.port: %d out of range", c.Client.Port)
	}
	for name, d := range map[string]Duration{
		"server.idle_timeout":       c.Server.IdleTimeout,
		"server.write_timeout":      c.Server.WriteTimeout,
		"client.timeout":            c.Client.Timeout,
		"client.capture_timeout":    c.Client.CaptureTimeout,
		"client.heartbeat_interval": c.Client.HeartbeatInterval,
		"client.idle_threshold":     c.Client.IdleThreshold,
	} {
		if d.Duration <= 0 {
			return fmt.Errorf("%s: must be positive", name)
		}
	}
	return nil
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "1m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration in time.Duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}
