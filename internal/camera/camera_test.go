package camera

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"os"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// fakeStill returns a runner that writes payload to the -o path and records
// the arguments it was called with.
func fakeStill(t *testing.T, payload []byte, runErr error, calls *[][]string) runner {
	t.Helper()
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, append([]string{name}, args...))
		if runErr != nil {
			return []byte("sensor busy"), runErr
		}
		i := slices.Index(args, "-o")
		if i < 0 || i+1 >= len(args) {
			t.Fatalf("missing -o in %v", args)
		}
		if err := os.WriteFile(args[i+1], payload, 0o600); err != nil {
			t.Fatal(err)
		}
		return nil, nil
	}
}

func TestStillCaptureMain(t *testing.T) {
	var calls [][]string
	s := NewStill(StillConfig{TempDir: t.TempDir()}, zaptest.NewLogger(t))
	s.run = fakeStill(t, []byte("jpeg-main"), nil, &calls)

	img, err := s.CaptureMain(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(img) != "jpeg-main" {
		t.Fatalf("got %q", img)
	}
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	args := calls[0]
	if args[0] != "rpicam-still" {
		t.Fatalf("command = %q", args[0])
	}
	for _, want := range []string{"8000", "6000", "--immediate", "--autofocus-on-capture", "cdn_off"} {
		if !slices.Contains(args, want) {
			t.Fatalf("args %v missing %q", args, want)
		}
	}
}

func TestStillCapturePreviewResolution(t *testing.T) {
	var calls [][]string
	s := NewStill(StillConfig{TempDir: t.TempDir()}, zaptest.NewLogger(t))
	s.run = fakeStill(t, []byte("jpeg-preview"), nil, &calls)

	if _, err := s.CapturePreview(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(calls[0], "2312") || !slices.Contains(calls[0], "1736") {
		t.Fatalf("preview args wrong: %v", calls[0])
	}
}

func TestStillCommandFailure(t *testing.T) {
	var calls [][]string
	s := NewStill(StillConfig{TempDir: t.TempDir()}, zaptest.NewLogger(t))
	s.run = fakeStill(t, nil, errors.New("exit status 1"), &calls)

	if _, err := s.CaptureMain(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestStillEmptyOutputIsFailure(t *testing.T) {
	var calls [][]string
	s := NewStill(StillConfig{TempDir: t.TempDir()}, zaptest.NewLogger(t))
	s.run = fakeStill(t, []byte{}, nil, &calls)

	if _, err := s.CaptureMain(context.Background()); !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
}

func TestStillRemovesTempFile(t *testing.T) {
	dir := t.TempDir()
	var calls [][]string
	s := NewStill(StillConfig{TempDir: dir}, zaptest.NewLogger(t))
	s.run = fakeStill(t, []byte("x"), nil, &calls)

	if _, err := s.CaptureMain(context.Background()); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp dir not cleaned: %v", entries)
	}
}

func TestStillSerializesCaptures(t *testing.T) {
	s := NewStill(StillConfig{TempDir: t.TempDir()}, zaptest.NewLogger(t))
	var inFlight, maxInFlight atomic.Int32
	s.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		n := inFlight.Add(1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		i := slices.Index(args, "-o")
		return nil, os.WriteFile(args[i+1], []byte("img"), 0o600)
	}

	done := make(chan struct{})
	for range 4 {
		go func() {
			s.CapturePreview(context.Background())
			done <- struct{}{}
		}()
	}
	for range 4 {
		<-done
	}
	if maxInFlight.Load() != 1 {
		t.Fatalf("captures overlapped: max in flight %d", maxInFlight.Load())
	}
}

func TestSyntheticProducesJPEG(t *testing.T) {
	s := NewSynthetic()
	s.Main = Resolution{Width: 64, Height: 48}

	img, err := s.CaptureMain(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		t.Fatalf("not a JPEG: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 48 {
		t.Fatalf("got %dx%d", cfg.Width, cfg.Height)
	}

	prev, err := s.CapturePreview(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(prev) == 0 {
		t.Fatal("empty preview")
	}
}

func TestSyntheticCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSynthetic().CapturePreview(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

func TestStaticBackend(t *testing.T) {
	s := NewStatic([]byte("main"), nil)

	img, err := s.CaptureMain(context.Background())
	if err != nil || string(img) != "main" {
		t.Fatalf("main = %q, %v", img, err)
	}
	if _, err := s.CapturePreview(context.Background()); !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage for nil preview, got %v", err)
	}

	boom := errors.New("boom")
	s.SetMain([]byte("ignored"), boom)
	if _, err := s.CaptureMain(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	main, preview := s.Calls()
	if main != 2 || preview != 1 {
		t.Fatalf("calls = %d/%d", main, preview)
	}
}

func TestStaticDelayHonoursContext(t *testing.T) {
	s := NewStatic([]byte("main"), nil)
	s.SetDelay(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.CaptureMain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
