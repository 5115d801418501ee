package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/feichai0017/pdfshift/internal/compress"
)

var (
	ErrNoPages         = compress.ErrNoPages
	ErrEmptyPage       = errors.New("empty page image")
	ErrInvalidPageSize = errors.New("invalid page size")
)

type pageImage struct {
	jpeg          []byte
	width, height float64
}

// Assembler builds an image-only document, one full-bleed JPEG per page.
type Assembler struct {
	pages []pageImage
}

func NewAssembler() *Assembler {
	return &Assembler{}
}

// AddPage appends a page of width x height points showing jpeg.
func (a *Assembler) AddPage(jpeg []byte, width, height float64) error {
	if len(jpeg) == 0 {
		return ErrEmptyPage
	}
	if width <= 0 || height <= 0 || math.IsNaN(width) || math.IsNaN(height) {
		return fmt.Errorf("%w: %vx%v", ErrInvalidPageSize, width, height)
	}
	a.pages = append(a.pages, pageImage{jpeg: jpeg, width: width, height: height})
	return nil
}

func (a *Assembler) Pages() int {
	return len(a.pages)
}

// Bytes serializes the pages added so far. Consecutive pages of equal size
// are imported in one pass.
func (a *Assembler) Bytes() ([]byte, error) {
	if len(a.pages) == 0 {
		return nil, ErrNoPages
	}

	var doc []byte
	for start := 0; start < len(a.pages); {
		end := start + 1
		for end < len(a.pages) && sameSize(a.pages[start], a.pages[end]) {
			end++
		}

		imgs := make([]io.Reader, 0, end-start)
		for _, p := range a.pages[start:end] {
			imgs = append(imgs, bytes.NewReader(p.jpeg))
		}

		// a nil *bytes.Reader inside the interface would not be nil
		var rs io.ReadSeeker
		if doc != nil {
			rs = bytes.NewReader(doc)
		}

		var buf bytes.Buffer
		if err := api.ImportImages(rs, &buf, imgs, fullBleed(a.pages[start]), NewConfiguration()); err != nil {
			return nil, fmt.Errorf("import pages %d-%d: %w", start+1, end, err)
		}
		doc = buf.Bytes()
		start = end
	}

	return StripAndSerialize(doc)
}

// fullBleed scales the image to cover a page of the original size.
func fullBleed(p pageImage) *pdfcpu.Import {
	imp := pdfcpu.DefaultImportConfig()
	imp.PageDim = &types.Dim{Width: p.width, Height: p.height}
	imp.PageSize = ""
	imp.UserDim = true
	imp.InpUnit = types.POINTS
	imp.Pos = types.Center
	imp.Scale = 1.0
	imp.ScaleAbs = false
	return imp
}

func sameSize(a, b pageImage) bool {
	const eps = 0.01
	return math.Abs(a.width-b.width) < eps && math.Abs(a.height-b.height) < eps
}
