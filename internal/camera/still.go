package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// Sensor resolutions used by the booth's camera module.
var (
	DefaultMainResolution    = Resolution{Width: 8000, Height: 6000}
	DefaultPreviewResolution = Resolution{Width: 2312, Height: 1736}
)

// DefaultStillArgs are passed to rpicam-still after the size flags.
var DefaultStillArgs = []string{"-n", "--immediate", "--autofocus-on-capture", "--denoise", "cdn_off"}

// runner executes a command and waits for it. Swapped in tests.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCombined(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// StillConfig configures the rpicam-still backend.
type StillConfig struct {
	Command string     // default "rpicam-still"
	Main    Resolution // default 8000x6000
	Preview Resolution // default 2312x1736
	Args    []string   // default DefaultStillArgs
	TempDir string     // default os.TempDir()
}

// Still captures images by running rpicam-still into a temporary file.
// There is one sensor, so captures are serialized across sessions: a capture
// queued behind another session's slow capture waits its turn, and that wait
// counts against the requesting controller's CaptureTimeout. Only captures
// queue; keepalives and other sessions' reads are never held up.
type Still struct {
	cfg StillConfig
	log *zap.Logger
	run runner
	mu  sync.Mutex
}

// NewStill creates a Still backend, filling defaults for empty fields.
func NewStill(cfg StillConfig, logger *zap.Logger) *Still {
	if cfg.Command == "" {
		cfg.Command = "rpicam-still"
	}
	if cfg.Main.Width == 0 || cfg.Main.Height == 0 {
		cfg.Main = DefaultMainResolution
	}
	if cfg.Preview.Width == 0 || cfg.Preview.Height == 0 {
		cfg.Preview = DefaultPreviewResolution
	}
	if cfg.Args == nil {
		cfg.Args = DefaultStillArgs
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return &Still{
		cfg: cfg,
		log: logger.With(zap.String("component", "camera")),
		run: runCombined,
	}
}

func (s *Still) CaptureMain(ctx context.Context) ([]byte, error) {
	return s.capture(ctx, "main", s.cfg.Main)
}

func (s *Still) CapturePreview(ctx context.Context) ([]byte, error) {
	return s.capture(ctx, "preview", s.cfg.Preview)
}

func (s *Still) capture(ctx context.Context, kind string, res Resolution) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.CreateTemp(s.cfg.TempDir, "photobooth-"+kind+"-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	args := []string{
		"-o", path,
		"--width", strconv.Itoa(res.Width),
		"--height", strconv.Itoa(res.Height),
	}
	args = append(args, s.cfg.Args...)

	s.log.Debug("running capture", zap.String("kind", kind), zap.String("command", s.cfg.Command), zap.Strings("args", args))
	if out, err := s.run(ctx, s.cfg.Command, args...); err != nil {
		s.log.Warn("capture command failed",
			zap.String("kind", kind),
			zap.Error(err),
			zap.ByteString("output", out),
		)
		return nil, fmt.Errorf("%s %s: %w", filepath.Base(s.cfg.Command), kind, err)
	}

	img, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	return Check(img, nil)
}
