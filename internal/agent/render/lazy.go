package render

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// InitFunc builds the expensive rendering engine.
type InitFunc func(ctx context.Context) (Renderer, error)

// Lazy initialises a Renderer on first use. Concurrent callers share one
// in-flight initialisation. A failed initialisation is not cached, so the
// next caller retries. There is no teardown: the engine lives as long as
// the process.
type Lazy struct {
	init  InitFunc
	group singleflight.Group

	mu       sync.RWMutex
	renderer Renderer

	inits atomic.Int32
}

func NewLazy(init InitFunc) *Lazy {
	return &Lazy{init: init}
}

// Get returns the engine, initialising it if needed. ctx bounds the wait,
// not the initialisation itself, which other callers may be waiting on.
func (l *Lazy) Get(ctx context.Context) (Renderer, error) {
	if r := l.loaded(); r != nil {
		return r, nil
	}

	ch := l.group.DoChan("engine", func() (interface{}, error) {
		if r := l.loaded(); r != nil {
			return r, nil
		}
		l.inits.Add(1)
		r, err := l.init(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.renderer = r
		l.mu.Unlock()
		return r, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("initialise render engine: %w", res.Err)
		}
		return res.Val.(Renderer), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Initialisations reports how many times the init function ran.
func (l *Lazy) Initialisations() int {
	return int(l.inits.Load())
}

func (l *Lazy) loaded() Renderer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.renderer
}

var (
	sharedOnce sync.Once
	shared     *Lazy
)

// Shared returns the process-wide MuPDF engine.
func Shared() *Lazy {
	sharedOnce.Do(func() {
		shared = NewLazy(initFitz)
	})
	return shared
}

// initFitz makes sure MuPDF can open and rasterize a document before the
// engine is handed out.
func initFitz(ctx context.Context) (Renderer, error) {
	r := NewFitzRenderer()
	doc, err := r.Open(probePDF)
	if err != nil {
		return nil, fmt.Errorf("probe document: %w", err)
	}
	defer doc.Close()
	if doc.NumPage() != 1 {
		return nil, fmt.Errorf("probe document: expected 1 page, got %d", doc.NumPage())
	}
	if _, err := doc.Render(0, 0.25); err != nil {
		return nil, fmt.Errorf("probe render: %w", err)
	}
	return r, nil
}

// probePDF is a blank 72x72pt page.
var probePDF = []byte("%PDF-1.4\n" +
	"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
	"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n" +
	"3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 72 72] >>\nendobj\n" +
	"xref\n0 4\n" +
	"0000000000 65535 f \n" +
	"0000000009 00000 n \n" +
	"0000000058 00000 n \n" +
	"0000000115 00000 n \n" +
	"trailer\n<< /Size 4 /Root 1 0 R >>\nstartxref\n184\n%%EOF\n")
