package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/chronologos/photobooth/internal/client"
	"github.com/chronologos/photobooth/internal/protocol"
)

func captureCommand() *cli.Command {
	return &cli.Command{
		Name:      "capture",
		Usage:     "Capture one image from the camera device and save it",
		ArgsUsage: "[main|preview]",
		Flags: append(clientFlags(),
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"o"},
				Usage:   "directory to save the image in",
			},
		),
		Action: captureAction,
	}
}

func captureAction(c *cli.Context) error {
	kind, err := parseKind(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := applyClientFlags(c, cfg); err != nil {
		return err
	}
	if c.IsSet("output-dir") {
		cfg.Client.OutputDir = c.String("output-dir")
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cl := newClient(cfg.Client, logger)
	defer cl.Close()

	if err := cl.Connect(ctx, cfg.Client.Host, cfg.Client.Port); err != nil {
		return cli.Exit(err.Error(), exitConnection)
	}
	path, err := captureToFile(ctx, cl, kind, cfg.Client.OutputDir, time.Now())
	if err != nil {
		return captureExit(err)
	}
	fmt.Fprintln(c.App.Writer, path)
	return nil
}

// captureToFile requests one image and writes it to dir.
func captureToFile(ctx context.Context, cl *client.Client, kind protocol.Kind, dir string, now time.Time) (string, error) {
	img, err := cl.RequestCapture(ctx, kind)
	if err != nil {
		return "", err
	}
	return saveImage(dir, kind, img, now)
}

// saveImage writes img as <dir>/<kind>-<timestamp>.jpg and returns the path.
func saveImage(dir string, kind protocol.Kind, img []byte, now time.Time) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	name := fmt.Sprintf("%s-%s.jpg", kind, now.Format("20060102-150405.000"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}
	return path, nil
}

// captureExit maps a capture error to the command's exit code.
func captureExit(err error) error {
	switch {
	case errors.Is(err, client.ErrCaptureFailed):
		return cli.Exit(err.Error(), exitCaptureFailed)
	case errors.Is(err, client.ErrConnectionLost), errors.Is(err, client.ErrNotConnected):
		return cli.Exit(err.Error(), exitConnection)
	default:
		return cli.Exit(err.Error(), 1)
	}
}

func powerOffCommand() *cli.Command {
	return &cli.Command{
		Name:   "power-off",
		Usage:  "Shut down the camera device",
		Flags:  clientFlags(),
		Action: powerOffAction,
	}
}

func powerOffAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := applyClientFlags(c, cfg); err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cl := newClient(cfg.Client, logger)
	defer cl.Close()

	if err := cl.Connect(c.Context, cfg.Client.Host, cfg.Client.Port); err != nil {
		return cli.Exit(err.Error(), exitConnection)
	}
	if err := cl.PowerOff(c.Context); err != nil {
		return cli.Exit(err.Error(), exitConnection)
	}
	fmt.Fprintf(c.App.Writer, "power off sent to %s\n", cfg.Client.Host)
	return nil
}
