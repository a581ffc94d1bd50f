// Package camera defines the capture backend consumed by the server and its
// implementations: the rpicam-still driver, a synthetic JPEG generator for
// running without sensor hardware, and a deterministic fixture for tests.
package camera

import (
	"context"
	"errors"
)

// ErrNoImage is returned when a backend produced zero bytes without an error.
var ErrNoImage = errors.New("backend produced no image")

// Backend produces encoded images. Implementations must be safe for
// concurrent use by multiple sessions.
type Backend interface {
	// CaptureMain captures a full-resolution image.
	CaptureMain(ctx context.Context) ([]byte, error)
	// CapturePreview captures a low-resolution preview image.
	CapturePreview(ctx context.Context) ([]byte, error)
}

// Resolution is a capture size in pixels.
type Resolution struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Check normalizes a backend result so an empty image is always an error.
func Check(img []byte, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	if len(img) == 0 {
		return nil, ErrNoImage
	}
	return img, nil
}
