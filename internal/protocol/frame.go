package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrClosed means the peer closed the stream cleanly between frames.
	ErrClosed = errors.New("connection closed")
	// ErrTruncated means the stream ended in the middle of a frame.
	ErrTruncated     = errors.New("frame truncated")
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// WriteFrame writes the 8-byte length header followed by payload.
//
// The header and payload are written separately so a multi-megabyte image is
// never copied into an intermediate buffer. A failed write leaves the stream
// in an unknown state; callers must drop the connection rather than retry.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	var header [HeaderSize]byte
	binary.BigEndian.PutUint64(header[:], uint64(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrame reads one frame of at most MaxFrameSize bytes from r and returns
// its payload. See ReadFrameLimit.
func ReadFrame(r io.Reader) ([]byte, error) {
	return ReadFrameLimit(r, MaxFrameSize)
}

// ReadFrameLimit reads one frame from r and returns its payload. A header
// announcing more than limit bytes fails with ErrFrameTooLarge before the
// payload is allocated.
//
// It returns ErrClosed if r reached EOF before any header byte, and an error
// wrapping ErrTruncated if r ended after the frame started. A partial payload
// is never returned.
func ReadFrameLimit(r io.Reader, limit int) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, ErrClosed
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, fmt.Errorf("%w: short header", ErrTruncated)
		default:
			return nil, err
		}
	}

	n := binary.BigEndian.Uint64(header[:])
	if n > uint64(limit) {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, n, limit)
	}

	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: want %d payload bytes", ErrTruncated, n)
			}
			return nil, err
		}
	}
	return payload, nil
}
