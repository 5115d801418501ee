// Package render rasterizes PDF pages.
package render

import (
	"image"
)

// PointsPerInch is the PDF user space resolution.
const PointsPerInch = 72.0

// Renderer opens documents for rasterization.
type Renderer interface {
	Open(data []byte) (Document, error)
}

// Document is an open, renderable PDF. Page indexes are zero based.
type Document interface {
	NumPage() int
	// PageSize returns the page size in points.
	PageSize(index int) (width, height float64, err error)
	// Render rasterizes a page at scale x 72 DPI.
	Render(index int, scale float64) (image.Image, error)
	Close() error
}
