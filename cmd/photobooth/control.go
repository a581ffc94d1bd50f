package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/chronologos/photobooth/internal/client"
	"github.com/chronologos/photobooth/internal/protocol"
)

const controlHelp = `commands:
  main        capture a full-resolution image
  preview     capture a preview image
  connect     reconnect to the device
  status      show the connection state
  power-off   shut down the device
  quit        exit`

func controlCommand() *cli.Command {
	return &cli.Command{
		Name:  "control",
		Usage: "Interactive controller on one persistent connection",
		Flags: append(clientFlags(),
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"o"},
				Usage:   "directory to save images in",
			},
		),
		Action: controlAction,
	}
}

func controlAction(c *cli.Context) error {
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

	ctl := &controller{
		client: cl,
		host:   cfg.Client.Host,
		port:   cfg.Client.Port,
		dir:    cfg.Client.OutputDir,
		out:    &lockedWriter{w: c.App.Writer},
		prompt: isTerminal(os.Stdin),
	}
	return ctl.run(ctx, os.Stdin)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// lockedWriter serializes writes from the input loop and the
// lost-connection callback, which runs on the heartbeat goroutine.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type controller struct {
	client *client.Client
	host   string
	port   int
	dir    string
	out    io.Writer
	prompt bool
}

// run connects, then executes one command per input line until quit, EOF
// or ctx is cancelled.
func (ctl *controller) run(ctx context.Context, in io.Reader) error {
	ctl.client.OnLostConnection(func(err error) {
		fmt.Fprintf(ctl.out, "connection lost: %v (type connect to retry)\n", err)
	})
	ctl.connect(ctx)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		if ctl.prompt {
			fmt.Fprintf(ctl.out, "[%s] > ", ctl.client.State())
		}
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = l
		}
		if quit := ctl.exec(ctx, line); quit {
			return nil
		}
	}
}

// exec runs one command line. It returns true when the loop should end.
func (ctl *controller) exec(ctx context.Context, line string) bool {
	switch line {
	case "":
	case "main", "preview":
		kind, _ := parseKind(line)
		ctl.capture(ctx, kind)
	case "connect":
		ctl.connect(ctx)
	case "status":
		fmt.Fprintf(ctl.out, "%s:%d %s\n", ctl.host, ctl.port, ctl.client.State())
	case "power-off":
		if err := ctl.client.PowerOff(ctx); err != nil {
			fmt.Fprintf(ctl.out, "power off: %v\n", err)
			return false
		}
		fmt.Fprintln(ctl.out, "power off sent")
		return true
	case "quit", "exit", "q":
		return true
	case "help", "?":
		fmt.Fprintln(ctl.out, controlHelp)
	default:
		fmt.Fprintf(ctl.out, "unknown command %q (type help)\n", line)
	}
	return false
}

func (ctl *controller) connect(ctx context.Context) {
	if err := ctl.client.Connect(ctx, ctl.host, ctl.port); err != nil {
		fmt.Fprintf(ctl.out, "connect failed: %v\n", err)
		return
	}
	fmt.Fprintf(ctl.out, "connected to %s:%d\n", ctl.host, ctl.port)
}

func (ctl *controller) capture(ctx context.Context, kind protocol.Kind) {
	path, err := captureToFile(ctx, ctl.client, kind, ctl.dir, time.Now())
	switch {
	case errors.Is(err, client.ErrCaptureFailed):
		fmt.Fprintf(ctl.out, "%s capture failed on device, try again\n", kind)
	case errors.Is(err, client.ErrNotConnected):
		fmt.Fprintln(ctl.out, "not connected (type connect)")
	case err != nil:
		// Connection loss is reported by the callback.
		if !errors.Is(err, client.ErrConnectionLost) {
			fmt.Fprintf(ctl.out, "%s capture: %v\n", kind, err)
		}
	default:
		fmt.Fprintf(ctl.out, "saved %s\n", path)
	}
}
