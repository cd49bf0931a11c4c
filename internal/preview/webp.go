package preview

import (
	"bytes"
	"image"

	"github.com/gen2brain/webp"
)

// WebPEncoder writes previews with the pure-Go (WASM-backed) WebP encoder.
type WebPEncoder struct {
	Quality  int
	Lossless bool
}

func NewWebPEncoder(quality int) *WebPEncoder {
	if quality <= 0 {
		quality = 85
	}
	return &WebPEncoder{Quality: quality}
}

func (e *WebPEncoder) Format() string      { return "webp" }
func (e *WebPEncoder) ContentType() string { return "image/webp" }
func (e *WebPEncoder) Oversample() int     { return 1 }

func (e *WebPEncoder) Encode(img image.Image, size int) ([]byte, error) {
	var buf bytes.Buffer
	opts := webp.Options{
		Lossless: e.Lossless,
		Quality:  e.Quality,
	}
	if err := webp.Encode(&buf, img, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
