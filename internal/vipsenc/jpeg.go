// Package vipsenc encodes previews through libvips. vips.Startup must have
// been called before use.
package vipsenc

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/cshum/vipsgen/vips"
)

// JPEGEncoder downsamples an oversampled raster with Lanczos3 and exports it
// as JPEG.
type JPEGEncoder struct {
	Quality int
}

func NewJPEGEncoder(quality int) *JPEGEncoder {
	if quality <= 0 {
		quality = 82
	}
	return &JPEGEncoder{Quality: quality}
}

func (e *JPEGEncoder) Format() string      { return "jpeg" }
func (e *JPEGEncoder) ContentType() string { return "image/jpeg" }
func (e *JPEGEncoder) Oversample() int     { return 2 }

func (e *JPEGEncoder) Encode(img image.Image, size int) ([]byte, error) {
	// Hand the raster to vips as a lossless PNG.
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to stage raster: %w", err)
	}

	vimg, err := vips.NewPngloadBuffer(buf.Bytes(), vips.DefaultPngloadBufferOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to load raster: %w", err)
	}
	defer vimg.Close()

	if w := vimg.Width(); w != size {
		resizeOpts := vips.DefaultResizeOptions()
		resizeOpts.Kernel = vips.KernelLanczos3
		if err := vimg.Resize(float64(size)/float64(w), resizeOpts); err != nil {
			return nil, fmt.Errorf("failed to resize: %w", err)
		}
	}

	jpegOpts := vips.DefaultJpegsaveBufferOptions()
	jpegOpts.Q = e.Quality
	jpegOpts.Interlace = false

	return vimg.JpegsaveBuffer(jpegOpts)
}
