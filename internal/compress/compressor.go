// Package compress recompresses PDFs towards a byte budget.
//
// The cheap path strips document metadata and re-serializes the container.
// Only when that misses the target is every page rasterized, re-encoded as
// JPEG and reassembled into a document of full-bleed image pages. The
// smaller of the two serializations wins.
package compress

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/feichai0017/pdfshift/pkg/logger"
)

// Options are the tunables of the raster path.
type Options struct {
	// Oversample is the render scale relative to 72 DPI.
	Oversample float64 `yaml:"oversample" json:"oversample"`
	// PageQuality is the JPEG quality used for every page, in (0,1].
	PageQuality float64 `yaml:"pageQuality" json:"pageQuality"`
	// Tolerance is the accepted overshoot of the target before warning.
	Tolerance float64 `yaml:"tolerance" json:"tolerance"`
	// Raster progress is reported inside [RasterProgressFrom, RasterProgressTo].
	RasterProgressFrom int `yaml:"rasterProgressFrom" json:"rasterProgressFrom"`
	RasterProgressTo   int `yaml:"rasterProgressTo" json:"rasterProgressTo"`
}

// DefaultOptions returns 2x oversampling, quality 0.95, 10% tolerance, 15..85.
func DefaultOptions() Options {
	return Options{
		Oversample:         2.0,
		PageQuality:        0.95,
		Tolerance:          0.10,
		RasterProgressFrom: 15,
		RasterProgressTo:   85,
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions()
	if o.Oversample <= 0 {
		o.Oversample = def.Oversample
	}
	if o.PageQuality <= 0 || o.PageQuality > 1 {
		o.PageQuality = def.PageQuality
	}
	if o.Tolerance < 0 {
		o.Tolerance = def.Tolerance
	}
	if o.RasterProgressFrom <= 0 && o.RasterProgressTo <= 0 {
		o.RasterProgressFrom, o.RasterProgressTo = def.RasterProgressFrom, def.RasterProgressTo
	}
}

func (o Options) validate() error {
	if o.RasterProgressFrom < 0 || o.RasterProgressTo > 100 || o.RasterProgressFrom > o.RasterProgressTo {
		return fmt.Errorf("%w: raster progress range [%d,%d]", ErrInvalidRequest, o.RasterProgressFrom, o.RasterProgressTo)
	}
	return nil
}

// Dependencies are the external codecs the compressor sequences.
type Dependencies struct {
	Backend       Backend
	Engine        Engine
	Encoder       Encoder
	Preprocessors []Preprocessor
}

// Compressor holds no per-call state and is safe for concurrent use.
type Compressor struct {
	deps   Dependencies
	opts   Options
	logger logger.Logger
}

func NewCompressor(deps Dependencies, opts *Options, log logger.Logger) (*Compressor, error) {
	if deps.Backend == nil || deps.Engine == nil || deps.Encoder == nil {
		return nil, errors.New("compressor requires a backend, an engine and an encoder")
	}
	if log == nil {
		log = logger.NewNop()
	}
	o := DefaultOptions()
	if opts != nil {
		o = *opts
		o.applyDefaults()
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	return &Compressor{deps: deps, opts: o, logger: log.Named("compress")}, nil
}

// Options returns the effective options.
func (c *Compressor) Options() Options {
	return c.opts
}

// Compress produces a new document no larger than the metadata-stripped
// baseline, aiming for req.TargetSizeBytes. Missing the target is not an
// error.
func (c *Compressor) Compress(ctx context.Context, doc SourceDocument, req Request, onProgress ProgressFunc) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if doc.MediaType != "" && doc.MediaType != MediaTypePDF {
		return nil, fmt.Errorf("%w: unsupported media type %q", ErrInvalidRequest, doc.MediaType)
	}

	start := time.Now()
	log := logger.FromContext(ctx, c.logger)
	progress := newTracker(onProgress)
	progress.emit(0)

	original := int64(len(doc.Data))
	if original == 0 {
		return nil, &ParseError{Op: "load", Err: errors.New("empty document")}
	}

	container, err := c.deps.Backend.Parse(doc.Data)
	if err != nil {
		return nil, &ParseError{Op: "load", Err: err}
	}
	if err := container.StripMetadata(); err != nil {
		return nil, &ParseError{Op: "strip metadata", Err: err}
	}
	progress.emit(c.opts.RasterProgressFrom)

	baseline, err := container.Serialize()
	if err != nil {
		return nil, &ParseError{Op: "serialize", Err: err}
	}

	res := &Result{
		OriginalSize:   original,
		BaselineSize:   int64(len(baseline)),
		AdvisedQuality: AdvisedQuality(original, req.TargetSizeBytes, req.MinQuality, req.MaxQuality),
	}

	log.Info("Metadata stripped",
		logger.Bytes("original", original),
		logger.Bytes("baseline", res.BaselineSize),
		logger.Bytes("target", req.TargetSizeBytes),
	)

	if res.BaselineSize <= req.TargetSizeBytes {
		c.finish(res, baseline, StageMetadata, req, start)
		progress.emit(100)
		return res, nil
	}

	outcomes, err := c.rasterize(ctx, doc.Data, progress, log)
	if err != nil {
		return nil, err
	}
	res.PagesTotal = len(outcomes)

	raster, skippedPages := c.assemble(outcomes, log)
	res.PagesSkipped = skippedPages

	if raster != nil && len(raster) < len(baseline) {
		c.finish(res, raster, StageRasterized, req, start)
	} else {
		c.finish(res, baseline, StageFallback, req, start)
	}

	if !c.withinTolerance(res.Size, req.TargetSizeBytes) {
		log.Warn("Target size not reached",
			logger.Bytes("size", res.Size),
			logger.Bytes("target", req.TargetSizeBytes),
			logger.Float64("tolerance", c.opts.Tolerance),
		)
	}

	log.Info("Compression finished",
		logger.String("stage", string(res.Stage)),
		logger.Int("pages", res.PagesTotal),
		logger.Int("skipped", res.PagesSkipped),
		logger.Bytes("size", res.Size),
		logger.Duration("elapsed", res.Duration),
	)

	progress.emit(100)
	return res, nil
}

func (c *Compressor) finish(res *Result, data []byte, stage Stage, req Request, start time.Time) {
	res.Data = data
	res.Size = int64(len(data))
	res.Stage = stage
	res.TargetReached = res.Size <= req.TargetSizeBytes
	res.Duration = time.Since(start)
}

func (c *Compressor) withinTolerance(size, target int64) bool {
	return float64(size) <= float64(target)*(1+c.opts.Tolerance)
}

// rasterize renders and encodes pages one at a time. Only engine-level
// failures and ctx cancellation abort; page failures become Skipped outcomes.
func (c *Compressor) rasterize(ctx context.Context, data []byte, progress *tracker, log logger.Logger) ([]PageOutcome, error) {
	renderer, err := c.deps.Engine.Get(ctx)
	if err != nil {
		return nil, &RenderError{Op: "init engine", Err: err}
	}

	rdoc, err := renderer.Open(data)
	if err != nil {
		return nil, &RenderError{Op: "open document", Err: err}
	}
	defer rdoc.Close()

	total := rdoc.NumPage()
	outcomes := make([]PageOutcome, 0, total)
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		outcome := c.renderPage(rdoc, i)
		if outcome.Skipped != nil {
			log.Warn("Page skipped",
				logger.Int("page", i+1),
				logger.Error(outcome.Skipped),
			)
		}
		outcomes = append(outcomes, outcome)
		progress.emit(interpolate(c.opts.RasterProgressFrom, c.opts.RasterProgressTo, i+1, total))
	}
	progress.emit(c.opts.RasterProgressTo)

	return outcomes, nil
}

type pageSource interface {
	PageSize(index int) (float64, float64, error)
	Render(index int, scale float64) (image.Image, error)
}

func (c *Compressor) renderPage(rdoc pageSource, index int) PageOutcome {
	width, height, err := rdoc.PageSize(index)
	if err != nil {
		return skipped(index, &PageError{Page: index + 1, Kind: ErrPageRender, Err: err})
	}

	img, err := rdoc.Render(index, c.opts.Oversample)
	if err != nil {
		return skipped(index, &PageError{Page: index + 1, Kind: ErrPageRender, Err: err})
	}

	for _, pre := range c.deps.Preprocessors {
		if img, err = pre.Process(img); err != nil {
			return skipped(index, &PageError{Page: index + 1, Kind: ErrEncode, Err: err})
		}
	}

	buf, err := c.deps.Encoder.Encode(img, c.opts.PageQuality)
	if err != nil {
		return skipped(index, &PageError{Page: index + 1, Kind: ErrEncode, Err: err})
	}

	return rendered(index, &EncodedPage{JPEG: buf, Width: width, Height: height})
}

// assemble folds the outcomes into a new document. It returns nil data when
// nothing could be assembled; the caller then keeps the baseline.
func (c *Compressor) assemble(outcomes []PageOutcome, log logger.Logger) ([]byte, int) {
	asm := c.deps.Backend.NewAssembler()
	skippedPages := 0
	for _, o := range outcomes {
		if o.Skipped != nil {
			skippedPages++
			continue
		}
		if err := asm.AddPage(o.Page.JPEG, o.Page.Width, o.Page.Height); err != nil {
			skippedPages++
			log.Warn("Page skipped",
				logger.Int("page", o.Index+1),
				logger.Error(&PageError{Page: o.Index + 1, Kind: ErrEncode, Err: err}),
			)
		}
	}

	data, err := asm.Bytes()
	switch {
	case errors.Is(err, ErrNoPages):
		log.Info("No pages rasterized, keeping metadata-stripped document")
		return nil, skippedPages
	case err != nil:
		log.Error("Failed to serialize rasterized document", logger.Error(err))
		return nil, skippedPages
	}
	return data, skippedPages
}
