package camera

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Static is a deterministic backend that returns fixed payloads. A nil
// payload or a non-nil error makes that capture kind fail. Delay, if set,
// is applied before each capture and honours context cancellation.
type Static struct {
	mu         sync.Mutex
	main       []byte
	preview    []byte
	mainErr    error
	previewErr error
	delay      time.Duration

	mainCalls    atomic.Int64
	previewCalls atomic.Int64
}

// NewStatic returns a Static backend serving the given images.
func NewStatic(main, preview []byte) *Static {
	return &Static{main: main, preview: preview}
}

// SetMain replaces the main payload and error.
func (s *Static) SetMain(img []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.main, s.mainErr = img, err
}

// SetPreview replaces the preview payload and error.
func (s *Static) SetPreview(img []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preview, s.previewErr = img, err
}

// SetDelay makes every capture block for d.
func (s *Static) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Calls returns how many main and preview captures were requested.
func (s *Static) Calls() (main, preview int64) {
	return s.mainCalls.Load(), s.previewCalls.Load()
}

func (s *Static) CaptureMain(ctx context.Context) ([]byte, error) {
	s.mainCalls.Add(1)
	s.mu.Lock()
	img, err, d := s.main, s.mainErr, s.delay
	s.mu.Unlock()
	return s.finish(ctx, d, img, err)
}

func (s *Static) CapturePreview(ctx context.Context) ([]byte, error) {
	s.previewCalls.Add(1)
	s.mu.Lock()
	img, err, d := s.preview, s.previewErr, s.delay
	s.mu.Unlock()
	return s.finish(ctx, d, img, err)
}

func (s *Static) finish(ctx context.Context, d time.Duration, img []byte, err error) ([]byte, error) {
	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return Check(img, err)
}
