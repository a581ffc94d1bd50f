// Package power turns the camera device off when a controller asks for it.
package power

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Controller powers off the host.
type Controller interface {
	PowerOff(ctx context.Context) error
}

// DefaultCommand is run by Command when no argv is configured.
var DefaultCommand = []string{"sudo", "shutdown", "now"}

type commandStarter func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Command powers off by running an external command.
type Command struct {
	argv  []string
	log   *zap.Logger
	start commandStarter
}

// NewCommand returns a Controller running argv, or DefaultCommand if empty.
func NewCommand(argv []string, logger *zap.Logger) *Command {
	if len(argv) == 0 {
		argv = DefaultCommand
	}
	return &Command{
		argv:  argv,
		log:   logger.With(zap.String("component", "power")),
		start: runCommand,
	}
}

func (c *Command) PowerOff(ctx context.Context) error {
	c.log.Info("powering off", zap.String("command", strings.Join(c.argv, " ")))
	if err := c.start(ctx, c.argv[0], c.argv[1:]...); err != nil {
		c.log.Error("power off failed", zap.Error(err))
		return fmt.Errorf("%s: %w", c.argv[0], err)
	}
	return nil
}

// Disabled refuses to power off. Used when the server runs on a machine
// that must not be shut down by a controller.
type Disabled struct {
	Log *zap.Logger
}

func (d Disabled) PowerOff(context.Context) error {
	if d.Log != nil {
		d.Log.Warn("power off requested but disabled")
	}
	return fmt.Errorf("power off disabled")
}
