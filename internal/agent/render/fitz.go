package render

import (
	"errors"
	"fmt"
	"image"

	fitz "github.com/gen2brain/go-fitz"
)

// ErrPageOutOfRange is returned for page indexes outside the document.
var ErrPageOutOfRange = errors.New("page index out of range")

// FitzRenderer renders through MuPDF.
type FitzRenderer struct{}

func NewFitzRenderer() *FitzRenderer {
	return &FitzRenderer{}
}

var openFitz = func(data []byte) (fitzDocument, error) {
	return fitz.NewFromMemory(data)
}

type fitzDocument interface {
	NumPage() int
	Bound(pageNumber int) (image.Rectangle, error)
	ImageDPI(pageNumber int, dpi float64) (*image.RGBA, error)
	Close() error
}

func (r *FitzRenderer) Open(data []byte) (Document, error) {
	doc, err := openFitz(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return &fitzDoc{doc: doc}, nil
}

type fitzDoc struct {
	doc fitzDocument
}

func (d *fitzDoc) NumPage() int {
	return d.doc.NumPage()
}

func (d *fitzDoc) PageSize(index int) (float64, float64, error) {
	if index < 0 || index >= d.doc.NumPage() {
		return 0, 0, fmt.Errorf("%w: %d", ErrPageOutOfRange, index)
	}
	b, err := d.doc.Bound(index)
	if err != nil {
		return 0, 0, fmt.Errorf("page bounds: %w", err)
	}
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return 0, 0, fmt.Errorf("page %d has empty bounds %v", index+1, b)
	}
	return float64(b.Dx()), float64(b.Dy()), nil
}

func (d *fitzDoc) Render(index int, scale float64) (image.Image, error) {
	if index < 0 || index >= d.doc.NumPage() {
		return nil, fmt.Errorf("%w: %d", ErrPageOutOfRange, index)
	}
	if scale <= 0 {
		return nil, fmt.Errorf("invalid render scale %v", scale)
	}
	img, err := d.doc.ImageDPI(index, PointsPerInch*scale)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", index+1, err)
	}
	return img, nil
}

func (d *fitzDoc) Close() error {
	return d.doc.Close()
}
