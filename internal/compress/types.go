package compress

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/feichai0017/pdfshift/internal/agent/render"
)

// MediaTypePDF is the only media type the compressor accepts.
const MediaTypePDF = "application/pdf"

// SourceDocument is the caller-owned input. Compress never writes to Data.
type SourceDocument struct {
	Data      []byte
	MediaType string
}

// Request carries the byte budget and the advisory quality bounds.
type Request struct {
	TargetSizeBytes int64   `json:"targetSizeBytes"`
	MinQuality      float64 `json:"minQuality"`
	MaxQuality      float64 `json:"maxQuality"`
}

const (
	DefaultMinQuality = 0.3
	DefaultMaxQuality = 0.9
)

// NewRequest returns a request with the default quality bounds.
func NewRequest(target int64) Request {
	return Request{
		TargetSizeBytes: target,
		MinQuality:      DefaultMinQuality,
		MaxQuality:      DefaultMaxQuality,
	}
}

// Validate checks target > 0 and 0 <= min <= max <= 1.
func (r Request) Validate() error {
	if r.TargetSizeBytes <= 0 {
		return fmt.Errorf("%w: target size must be positive, got %d", ErrInvalidRequest, r.TargetSizeBytes)
	}
	if r.MinQuality < 0 || r.MaxQuality > 1 || r.MinQuality > r.MaxQuality {
		return fmt.Errorf("%w: quality bounds (%.2f, %.2f) outside 0 <= min <= max <= 1",
			ErrInvalidRequest, r.MinQuality, r.MaxQuality)
	}
	return nil
}

// Stage tells which serialization the result came from.
type Stage string

const (
	// StageMetadata: the metadata-stripped container already fit the target.
	StageMetadata Stage = "metadata"
	// StageRasterized: the rasterized container was smaller and was kept.
	StageRasterized Stage = "rasterized"
	// StageFallback: rasterization ran but the stripped baseline was kept.
	StageFallback Stage = "fallback"
)

// Result is the compressed document. Ownership of Data passes to the caller.
type Result struct {
	Data           []byte        `json:"-"`
	Size           int64         `json:"size"`
	OriginalSize   int64         `json:"originalSize"`
	BaselineSize   int64         `json:"baselineSize"`
	Stage          Stage         `json:"stage"`
	PagesTotal     int           `json:"pagesTotal"`
	PagesSkipped   int           `json:"pagesSkipped"`
	TargetReached  bool          `json:"targetReached"`
	AdvisedQuality float64       `json:"advisedQuality"`
	Duration       time.Duration `json:"duration"`
}

// Ratio returns the saved share of the original in percent.
func (r *Result) Ratio() float64 {
	if r.OriginalSize <= 0 {
		return 0
	}
	return (1 - float64(r.Size)/float64(r.OriginalSize)) * 100
}

// ProgressFunc observes progress in [0,100]. Panics propagate to the caller.
type ProgressFunc func(percent int)

// EncodedPage is one page after render + encode.
type EncodedPage struct {
	JPEG   []byte
	Width  float64 // points
	Height float64 // points
}

// PageOutcome is either Rendered (Page != nil) or Skipped (Skipped != nil).
type PageOutcome struct {
	Index   int
	Page    *EncodedPage
	Skipped error
}

func rendered(index int, page *EncodedPage) PageOutcome {
	return PageOutcome{Index: index, Page: page}
}

func skipped(index int, reason error) PageOutcome {
	return PageOutcome{Index: index, Skipped: reason}
}

// Container is a parsed, mutable PDF object graph.
type Container interface {
	StripMetadata() error
	Serialize() ([]byte, error)
}

// Assembler builds a fresh document of full-bleed image pages.
type Assembler interface {
	AddPage(jpeg []byte, width, height float64) error
	Pages() int
	Bytes() ([]byte, error)
}

// Backend is the PDF object-graph library.
type Backend interface {
	Parse(data []byte) (Container, error)
	NewAssembler() Assembler
}

// Engine hands out the shared rendering engine, initialising it on demand.
type Engine interface {
	Get(ctx context.Context) (render.Renderer, error)
}

// Encoder is the lossy image codec.
type Encoder interface {
	Encode(img image.Image, quality float64) ([]byte, error)
}

// Preprocessor transforms a page raster before encoding.
type Preprocessor interface {
	Process(img image.Image) (image.Image, error)
}
