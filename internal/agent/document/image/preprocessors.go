package image

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// ImagePreprocessor 图像预处理接口
type ImagePreprocessor interface {
	Process(img image.Image) (image.Image, error)
}

// Pipeline runs preprocessors in order.
type Pipeline []ImagePreprocessor

func (p Pipeline) Process(img image.Image) (image.Image, error) {
	var err error
	for _, pre := range p {
		if img, err = pre.Process(img); err != nil {
			return nil, err
		}
	}
	return img, nil
}

// 灰度处理器
type GrayscaleProcessor struct{}

func NewGrayscaleProcessor() *GrayscaleProcessor {
	return &GrayscaleProcessor{}
}

func (p *GrayscaleProcessor) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	return imaging.Grayscale(img), nil
}

// FlattenProcessor composites the raster onto an opaque background; JPEG
// has no alpha channel and transparent pixels would otherwise turn black.
type FlattenProcessor struct {
	background color.Color
}

func NewFlattenProcessor(background color.Color) *FlattenProcessor {
	if background == nil {
		background = color.White
	}
	return &FlattenProcessor{background: background}
}

func (p *FlattenProcessor) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	if opaque, ok := img.(interface{ Opaque() bool }); ok && opaque.Opaque() {
		return img, nil
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), p.background)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0), nil
}

// FitProcessor caps the longer raster edge so one page never exceeds a
// fixed pixel budget. Aspect ratio is preserved.
type FitProcessor struct {
	maxEdge int
}

func NewFitProcessor(maxEdge int) *FitProcessor {
	return &FitProcessor{maxEdge: maxEdge}
}

func (p *FitProcessor) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	b := img.Bounds()
	if p.maxEdge <= 0 || (b.Dx() <= p.maxEdge && b.Dy() <= p.maxEdge) {
		return img, nil
	}
	return imaging.Fit(img, p.maxEdge, p.maxEdge, imaging.Lanczos), nil
}
