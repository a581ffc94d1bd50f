package camera

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
)

// Synthetic renders solid-color JPEGs. It lets the server run on a machine
// without a camera module.
type Synthetic struct {
	Main    Resolution
	Preview Resolution
}

// NewSynthetic returns the stand-in backend: 1920x1080 red main frames and
// 640x480 blue previews.
func NewSynthetic() *Synthetic {
	return &Synthetic{
		Main:    Resolution{Width: 1920, Height: 1080},
		Preview: Resolution{Width: 640, Height: 480},
	}
}

func (s *Synthetic) CaptureMain(ctx context.Context) ([]byte, error) {
	return solidJPEG(ctx, s.Main, color.RGBA{R: 255, A: 255}, 95)
}

func (s *Synthetic) CapturePreview(ctx context.Context) ([]byte, error) {
	return solidJPEG(ctx, s.Preview, color.RGBA{B: 255, A: 255}, 80)
}

func solidJPEG(ctx context.Context, res Resolution, c color.Color, quality int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, res.Width, res.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return Check(buf.Bytes(), nil)
}
