package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/chronologos/photobooth/internal/client"
	"github.com/chronologos/photobooth/internal/config"
	"github.com/chronologos/photobooth/internal/logging"
	"github.com/chronologos/photobooth/internal/protocol"
)

const (
	exitCaptureFailed = 1
	exitConnection    = 2
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to photobooth.yaml",
			EnvVars: []string{"PHOTOBOOTH_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "log format: json or console (default: console on a terminal)",
		},
	}
}

// clientFlags are shared by every command that talks to a device.
func clientFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Aliases: []string{"H"},
			Usage:   "camera device hostname or IP (default raspberrypi.local)",
			EnvVars: []string{"PHOTOBOOTH_HOST"},
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   fmt.Sprintf("camera device port (default %d)", protocol.DefaultPort),
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "connect and keepalive timeout",
		},
		&cli.DurationFlag{
			Name:  "capture-timeout",
			Usage: "how long to wait for an image",
		},
	}
}

// loadConfig reads --config and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	return cfg, nil
}

// applyClientFlags overrides cfg.Client with any client flags given.
func applyClientFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet("host") {
		cfg.Client.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Client.Port = c.Int("port")
	}
	if c.IsSet("timeout") {
		cfg.Client.Timeout.Duration = c.Duration("timeout")
	}
	if c.IsSet("capture-timeout") {
		cfg.Client.CaptureTimeout.Duration = c.Duration("capture-timeout")
	}
	return cfg.Validate()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: logging.Format(cfg.Log.Format),
	})
}

func newClient(cfg config.ClientConfig, logger *zap.Logger) *client.Client {
	return client.New(client.Config{
		Timeout:           cfg.Timeout.Duration,
		CaptureTimeout:    cfg.CaptureTimeout.Duration,
		HeartbeatInterval: cfg.HeartbeatInterval.Duration,
		IdleThreshold:     cfg.IdleThreshold.Duration,
	}, logger)
}

// parseKind maps a capture argument to a kind. Empty means preview.
func parseKind(s string) (protocol.Kind, error) {
	switch s {
	case "", "preview":
		return protocol.KindPreview, nil
	case "main":
		return protocol.KindMain, nil
	default:
		return protocol.KindNone, fmt.Errorf("unknown capture kind %q (want main or preview)", s)
	}
}
