package compress

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync/atomic"

	"github.com/feichai0017/pdfshift/internal/agent/render"
)

type fakeContainer struct {
	out      []byte
	stripErr error
	serErr   error
	stripped bool
}

func (c *fakeContainer) StripMetadata() error {
	if c.stripErr != nil {
		return c.stripErr
	}
	c.stripped = true
	return nil
}

func (c *fakeContainer) Serialize() ([]byte, error) {
	if c.serErr != nil {
		return nil, c.serErr
	}
	return c.out, nil
}

type fakeAssembler struct {
	perPage int
	pages   int
	addErr  error
}

func (a *fakeAssembler) AddPage(jpeg []byte, width, height float64) error {
	if a.addErr != nil {
		return a.addErr
	}
	a.pages++
	return nil
}

func (a *fakeAssembler) Pages() int { return a.pages }

func (a *fakeAssembler) Bytes() ([]byte, error) {
	if a.pages == 0 {
		return nil, ErrNoPages
	}
	return make([]byte, a.pages*a.perPage), nil
}

type fakeBackend struct {
	container *fakeContainer
	parseErr  error
	perPage   int
	addErr    error
	parsed    [][]byte
}

func (b *fakeBackend) Parse(data []byte) (Container, error) {
	b.parsed = append(b.parsed, data)
	if b.parseErr != nil {
		return nil, b.parseErr
	}
	return b.container, nil
}

func (b *fakeBackend) NewAssembler() Assembler {
	return &fakeAssembler{perPage: b.perPage, addErr: b.addErr}
}

type fakeDoc struct {
	pages     int
	failPages map[int]bool
	closed    bool
}

func (d *fakeDoc) NumPage() int { return d.pages }

func (d *fakeDoc) PageSize(index int) (float64, float64, error) {
	return 612, 792, nil
}

func (d *fakeDoc) Render(index int, scale float64) (image.Image, error) {
	if d.failPages[index] {
		return nil, errors.New("broken page")
	}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.Black)
	return img, nil
}

func (d *fakeDoc) Close() error {
	d.closed = true
	return nil
}

type fakeRenderer struct {
	doc     *fakeDoc
	openErr error
}

func (r *fakeRenderer) Open(data []byte) (render.Document, error) {
	if r.openErr != nil {
		return nil, r.openErr
	}
	return r.doc, nil
}

type fakeEngine struct {
	renderer render.Renderer
	err      error
	calls    atomic.Int32
}

func (e *fakeEngine) Get(ctx context.Context) (render.Renderer, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return e.renderer, nil
}

type fakeEncoder struct {
	size    int
	quality float64
}

func (e *fakeEncoder) Encode(img image.Image, quality float64) ([]byte, error) {
	e.quality = quality
	return make([]byte, e.size), nil
}

type failingPreprocessor struct{}

func (failingPreprocessor) Process(img image.Image) (image.Image, error) {
	return nil, errors.New("preprocess failed")
}

// fixture wires a compressor whose baseline is baselineSize bytes and
// whose rasterized output is pages*perPage bytes.
type fixture struct {
	backend *fakeBackend
	doc     *fakeDoc
	engine  *fakeEngine
	encoder *fakeEncoder
}

func newFixture(baselineSize, pages, perPage int) *fixture {
	doc := &fakeDoc{pages: pages, failPages: map[int]bool{}}
	return &fixture{
		backend: &fakeBackend{
			container: &fakeContainer{out: make([]byte, baselineSize)},
			perPage:   perPage,
		},
		doc:     doc,
		engine:  &fakeEngine{renderer: &fakeRenderer{doc: doc}},
		encoder: &fakeEncoder{size: 8},
	}
}

func (f *fixture) deps() Dependencies {
	return Dependencies{Backend: f.backend, Engine: f.engine, Encoder: f.encoder}
}
