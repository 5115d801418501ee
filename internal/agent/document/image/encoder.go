// Package image encodes page rasters for embedding into PDF pages.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

var ErrEmptyImage = errors.New("empty image")

// JPEGEncoder encodes rasters as baseline JPEG, which PDF embeds as DCTDecode.
type JPEGEncoder struct{}

func NewJPEGEncoder() *JPEGEncoder {
	return &JPEGEncoder{}
}

// Encode encodes img at quality in (0,1].
func (e *JPEGEncoder) Encode(img image.Image, quality float64) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality(quality))); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// JPEGQuality maps a 0..1 fraction to the 1..100 JPEG scale.
func JPEGQuality(q float64) int {
	v := int(math.Round(q * 100))
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}
