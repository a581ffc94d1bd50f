package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chronologos/photobooth/internal/camera"
	"github.com/chronologos/photobooth/internal/config"
	"github.com/chronologos/photobooth/internal/power"
	"github.com/chronologos/photobooth/internal/server"
	"github.com/chronologos/photobooth/internal/session"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the capture server on the camera device",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "listen address (default 0.0.0.0:8888)",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "capture backend: still (rpicam-still) or synthetic",
			},
			&cli.DurationFlag{
				Name:  "idle-timeout",
				Usage: "drop controllers silent for this long",
			},
			&cli.BoolFlag{
				Name:  "no-power-off",
				Usage: "refuse POWER_OFF requests",
			},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("listen") {
		cfg.Server.Listen = c.String("listen")
	}
	if c.IsSet("backend") {
		cfg.Server.Backend = c.String("backend")
	}
	if c.IsSet("idle-timeout") {
		cfg.Server.IdleTimeout.Duration = c.Duration("idle-timeout")
	}
	if c.Bool("no-power-off") {
		allow := false
		cfg.Server.AllowPowerOff = &allow
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	srv := server.New(server.Config{
		Addr: cfg.Server.Listen,
		Session: session.Config{
			IdleTimeout:  cfg.Server.IdleTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
		},
	}, newBackend(cfg.Server, logger), newPowerController(cfg.Server, logger), logger)

	logger.Info("starting photobooth server",
		zap.String("listen", cfg.Server.Listen),
		zap.String("backend", cfg.Server.Backend),
		zap.Bool("power_off", cfg.Server.PowerOffAllowed()),
	)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		srv.Stop()
		return nil
	})
	return g.Wait()
}

func newBackend(cfg config.ServerConfig, logger *zap.Logger) camera.Backend {
	if cfg.Backend == config.BackendSynthetic {
		return camera.NewSynthetic()
	}
	return camera.NewStill(camera.StillConfig{
		Command: cfg.Still.Command,
		Main:    cfg.Still.Main,
		Preview: cfg.Still.Preview,
		Args:    cfg.Still.Args,
		TempDir: cfg.Still.TempDir,
	}, logger)
}

func newPowerController(cfg config.ServerConfig, logger *zap.Logger) power.Controller {
	if !cfg.PowerOffAllowed() {
		return power.Disabled{Log: logger}
	}
	return power.NewCommand(cfg.PowerOff, logger)
}
