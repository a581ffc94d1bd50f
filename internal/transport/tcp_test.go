package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/chronologos/photobooth/internal/protocol"
)

// setupTCPConnPair creates a TCP listener and dials into it, returning both sides.
func setupTCPConnPair(t *testing.T) (serverConn, clientConn *Conn, cleanup func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ln, err := Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	serverDone := make(chan *Conn, 1)
	serverErr := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		serverDone <- conn
	}()

	cc, err := Dial(ctx, "127.0.0.1", ln.Port(), 2*time.Second)
	if err != nil {
		ln.Close()
		t.Fatalf("TCP dial: %v", err)
	}

	var sc *Conn
	select {
	case sc = <-serverDone:
	case err := <-serverErr:
		cc.Close()
		ln.Close()
		t.Fatalf("server accept: %v", err)
	case <-ctx.Done():
		cc.Close()
		ln.Close()
		t.Fatal("timeout waiting for server accept")
	}

	return sc, cc, func() {
		sc.Close()
		cc.Close()
		ln.Close()
	}
}

func TestTCPFrameExchange(t *testing.T) {
	serverConn, clientConn, cleanup := setupTCPConnPair(t)
	defer cleanup()

	if err := clientConn.WriteCommand(protocol.CmdCapturePreview, time.Second); err != nil {
		t.Fatalf("write command: %v", err)
	}
	payload, err := serverConn.ReadFrame(time.Second)
	if err != nil {
		t.Fatalf("read command: %v", err)
	}
	if protocol.ParseCommand(payload) != protocol.CmdCapturePreview {
		t.Fatalf("unexpected command %q", payload)
	}

	image := bytes.Repeat([]byte{0xab}, 12345)
	if err := serverConn.WriteFrame(image, time.Second); err != nil {
		t.Fatalf("write image: %v", err)
	}
	got, err := clientConn.ReadFrame(time.Second)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if !bytes.Equal(got, image) {
		t.Fatalf("got %d bytes, want %d", len(got), len(image))
	}
}

func TestTCPReadTimeout(t *testing.T) {
	serverConn, _, cleanup := setupTCPConnPair(t)
	defer cleanup()

	start := time.Now()
	_, err := serverConn.ReadFrame(50 * time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Fatalf("expected net timeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout took %v", time.Since(start))
	}
}

func TestTCPPeerCloseIsErrClosed(t *testing.T) {
	serverConn, clientConn, cleanup := setupTCPConnPair(t)
	defer cleanup()

	clientConn.Close()
	_, err := serverConn.ReadFrame(time.Second)
	if err != protocol.ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestTCPCloseUnblocksRead(t *testing.T) {
	serverConn, _, cleanup := setupTCPConnPair(t)
	defer cleanup()

	errCh := make(chan error, 1)
	go func() {
		_, err := serverConn.ReadFrame(0)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	serverConn.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, net.ErrClosed) {
			t.Fatalf("expected net.ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not unblock read")
	}
}

func TestTCPCommandAndResult(t *testing.T) {
	serverConn, clientConn, cleanup := setupTCPConnPair(t)
	defer cleanup()

	go clientConn.WriteCommand(protocol.CmdCapturePreview, time.Second)
	cmd, raw, err := serverConn.ReadCommand(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if cmd != protocol.CmdCapturePreview || string(raw) != "CAPTURE_PREVIEW" {
		t.Fatalf("got %v %q", cmd, raw)
	}

	go serverConn.WriteResult(nil, time.Second)
	payload, err := clientConn.ReadFrame(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := protocol.DecodeResult(payload); ok {
		t.Fatal("nil result must decode as failure")
	}
}

func TestTCPCloseIdempotent(t *testing.T) {
	_, clientConn, cleanup := setupTCPConnPair(t)
	defer cleanup()

	if err := clientConn.Close(); err != nil {
		t.Fatal(err)
	}
	clientConn.Close()
}

func TestDialRefused(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Port()
	ln.Close()

	if _, err := Dial(context.Background(), "127.0.0.1", port, time.Second); err == nil {
		t.Fatal("expected dial error on closed port")
	}
}

func TestDialEmptyHost(t *testing.T) {
	if _, err := Dial(context.Background(), "", 8888, time.Second); err == nil {
		t.Fatal("expected error for empty host")
	}
}

func TestAcceptAfterCloseFails(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := ln.Accept()
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	ln.Close()
	select {
	case err := <-done:
		if !errors.Is(err, net.ErrClosed) {
			t.Fatalf("expected net.ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Accept not unblocked by Close")
	}
}
