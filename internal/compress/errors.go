package compress

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest = errors.New("invalid compression request")
	// ErrParse: the source is not a well-formed PDF container. Fatal.
	ErrParse = errors.New("pdf parse error")
	// ErrRender: the rendering engine could not start or open the document. Fatal.
	ErrRender = errors.New("pdf render error")
	// ErrPageRender and ErrEncode are per page and recovered by skipping the page.
	ErrPageRender = errors.New("page render failed")
	ErrEncode     = errors.New("page encode failed")
	// ErrNoPages: assembly produced an empty document; the baseline is kept.
	ErrNoPages = errors.New("no pages to assemble")
	// ErrTargetTooSmall is returned by ValidateTarget.
	ErrTargetTooSmall = errors.New("target size too small")
)

// ParseError wraps a container-level failure.
type ParseError struct {
	Op  string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("pdf %s: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrParse, e.Err} }

// RenderError wraps a fatal rendering engine failure.
type RenderError struct {
	Op  string
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Op, e.Err)
}

func (e *RenderError) Unwrap() []error { return []error{ErrRender, e.Err} }

// PageError describes why one page was skipped.
type PageError struct {
	Page int // 1-based
	Kind error
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v: %v", e.Page, e.Kind, e.Err)
}

func (e *PageError) Unwrap() []error { return []error{e.Kind, e.Err} }
