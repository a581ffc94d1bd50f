package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/chronologos/photobooth/internal/camera"
	"github.com/chronologos/photobooth/internal/client"
	"github.com/chronologos/photobooth/internal/power"
	"github.com/chronologos/photobooth/internal/protocol"
	"github.com/chronologos/photobooth/internal/server"
)

func startDevice(t *testing.T, backend camera.Backend) *server.Server {
	t.Helper()
	s := server.New(server.Config{Addr: "127.0.0.1:0"}, backend, power.Disabled{}, zaptest.NewLogger(t))
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	select {
	case <-s.Ready:
	case err := <-done:
		t.Fatalf("server exited: %v", err)
	}
	t.Cleanup(func() {
		s.Stop()
		<-done
	})
	return s
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	if err := app.Run([]string{"photobooth", "version"}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "photobooth dev") {
		t.Fatalf("version output = %q", out.String())
	}
}

func TestCaptureCommandSavesImage(t *testing.T) {
	dev := startDevice(t, camera.NewStatic([]byte("main-jpeg"), []byte("preview-jpeg")))
	dir := t.TempDir()

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run([]string{"photobooth", "--log-level", "error",
		"capture", "--host", "127.0.0.1", "--port", strconv.Itoa(dev.Port), "-o", dir, "main"})
	if err != nil {
		t.Fatal(err)
	}

	path := strings.TrimSpace(out.String())
	if filepath.Dir(path) != dir || !strings.HasPrefix(filepath.Base(path), "main-") {
		t.Fatalf("unexpected path %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "main-jpeg" {
		t.Fatalf("saved %q", data)
	}
}

func TestControllerSession(t *testing.T) {
	backend := camera.NewStatic([]byte("main-jpeg"), []byte("preview-jpeg"))
	dev := startDevice(t, backend)
	dir := t.TempDir()

	cl := client.New(client.Config{}, zap.NewNop())
	defer cl.Close()

	var out bytes.Buffer
	ctl := &controller{
		client: cl,
		host:   "127.0.0.1",
		port:   dev.Port,
		dir:    dir,
		out:    &lockedWriter{w: &out},
	}
	in := strings.NewReader("preview\nmain\nstatus\nbogus\n\nquit\n")
	if err := ctl.run(context.Background(), in); err != nil {
		t.Fatal(err)
	}

	got := out.String()
	for _, want := range []string{"connected to 127.0.0.1", "saved ", "connected\n", `unknown command "bogus"`} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("saved %d files, want 2", len(entries))
	}
}

func TestControllerReportsCaptureFailure(t *testing.T) {
	backend := camera.NewStatic([]byte("main-jpeg"), []byte("preview-jpeg"))
	backend.SetPreview(nil, errors.New("sensor busy"))
	dev := startDevice(t, backend)

	cl := client.New(client.Config{}, zap.NewNop())
	defer cl.Close()

	var out bytes.Buffer
	ctl := &controller{client: cl, host: "127.0.0.1", port: dev.Port, dir: t.TempDir(), out: &lockedWriter{w: &out}}
	if err := ctl.run(context.Background(), strings.NewReader("preview\nstatus\n")); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if !strings.Contains(got, "preview capture failed on device") {
		t.Fatalf("output = %q", got)
	}
	if !strings.Contains(got, "127.0.0.1:"+strconv.Itoa(dev.Port)+" connected") {
		t.Fatalf("link should stay up after a device failure: %q", got)
	}
}

func TestSaveImage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	now := time.Date(2024, 5, 1, 13, 4, 5, 0, time.UTC)
	path, err := saveImage(dir, protocol.KindPreview, []byte{0xff, 0xd8}, now)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "preview-20240501-130405.000.jpg" {
		t.Fatalf("path = %q", path)
	}
}

func TestParseKind(t *testing.T) {
	cases := map[string]protocol.Kind{
		"":        protocol.KindPreview,
		"preview": protocol.KindPreview,
		"main":    protocol.KindMain,
	}
	for in, want := range cases {
		got, err := parseKind(in)
		if err != nil || got != want {
			t.Errorf("parseKind(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := parseKind("MAIN"); err == nil {
		t.Error("expected error for MAIN")
	}
}

func TestCaptureExitCodes(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{client.ErrCaptureFailed, exitCaptureFailed},
		{client.ErrConnectionLost, exitConnection},
		{client.ErrNotConnected, exitConnection},
		{errors.New("disk full"), 1},
	}
	for _, tc := range cases {
		var ec cli.ExitCoder
		if !errors.As(captureExit(tc.err), &ec) || ec.ExitCode() != tc.code {
			t.Errorf("captureExit(%v) code = %v, want %d", tc.err, ec, tc.code)
		}
	}
}
