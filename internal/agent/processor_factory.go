package agent

import (
    "errors"
    "fmt"
    "image/color"
    "path/filepath"
    "strings"

    cfg "github.com/feichai0017/pdfshift/config"
    "github.com/feichai0017/pdfshift/internal/agent/document"
    "github.com/feichai0017/pdfshift/internal/agent/document/image"
    "github.com/feichai0017/pdfshift/internal/agent/document/pdf"
    "github.com/feichai0017/pdfshift/internal/agent/render"
    "github.com/feichai0017/pdfshift/internal/compress"
    "github.com/feichai0017/pdfshift/pkg/logger"
)

var ErrUnsupportedType = errors.New("unsupported file type")

// 扩展名到 MIME 类型的映射
var extToMIME = map[string]string{
    ".pdf": compress.MediaTypePDF,
}

// MIMEFromFilename maps a filename or bare extension to a MIME type.
func MIMEFromFilename(name string) (string, error) {
    ext := strings.ToLower(filepath.Ext(name))
    if ext == "" && strings.HasPrefix(name, ".") {
        ext = strings.ToLower(name)
    }
    mimeType, ok := extToMIME[ext]
    if !ok {
        return "", fmt.Errorf("%w: %q", ErrUnsupportedType, name)
    }
    return mimeType, nil
}

type FactoryOption func(*ProcessorFactory)

// WithEngine replaces the process-wide MuPDF engine.
func WithEngine(engine compress.Engine) FactoryOption {
    return func(f *ProcessorFactory) {
        f.engine = engine
    }
}

// WithBackend replaces the pdfcpu backend.
func WithBackend(backend compress.Backend) FactoryOption {
    return func(f *ProcessorFactory) {
        f.backend = backend
    }
}

type ProcessorFactory struct {
    processors  map[string]document.Processor
    compressors map[string]*compress.Compressor
    engine      compress.Engine
    backend     compress.Backend
    logger      logger.Logger
}

func NewProcessorFactory(cc cfg.CompressionConfig, log logger.Logger, opts ...FactoryOption) (*ProcessorFactory, error) {
    factory := &ProcessorFactory{
        processors:  make(map[string]document.Processor),
        compressors: make(map[string]*compress.Compressor),
        engine:      render.Shared(),
        backend:     pdf.NewBackend(),
        logger:      log,
    }
    for _, opt := range opts {
        opt(factory)
    }

    // PDF 检查器
    factory.processors[compress.MediaTypePDF] = pdf.NewInspector(log)

    compressor, err := compress.NewCompressor(compress.Dependencies{
        Backend:       factory.backend,
        Engine:        factory.engine,
        Encoder:       image.NewJPEGEncoder(),
        Preprocessors: Preprocessors(cc),
    }, &compress.Options{
        Oversample:  cc.Oversample,
        PageQuality: cc.PageQuality,
        Tolerance:   cc.Tolerance,
    }, log)
    if err != nil {
        return nil, fmt.Errorf("failed to create compressor: %w", err)
    }
    factory.compressors[compress.MediaTypePDF] = compressor

    log.Info("Processor factory ready",
        logger.Float64("oversample", compressor.Options().Oversample),
        logger.Float64("pageQuality", compressor.Options().PageQuality),
        logger.Bool("grayscale", cc.Grayscale),
    )
    return factory, nil
}

// Preprocessors returns the raster pipeline for cc: fit, flatten, then
// optional grayscale.
func Preprocessors(cc cfg.CompressionConfig) []compress.Preprocessor {
    pres := []compress.Preprocessor{}
    if cc.MaxPageEdge > 0 {
        pres = append(pres, image.NewFitProcessor(cc.MaxPageEdge))
    }
    pres = append(pres, image.NewFlattenProcessor(color.White))
    if cc.Grayscale {
        pres = append(pres, image.NewGrayscaleProcessor())
    }
    return pres
}

func (f *ProcessorFactory) GetProcessor(fileType string) (document.Processor, error) {
    mimeType, err := f.resolve(fileType)
    if err != nil {
        return nil, err
    }
    processor, ok := f.processors[mimeType]
    if !ok {
        return nil, fmt.Errorf("%w: no processor for %s", ErrUnsupportedType, mimeType)
    }
    return processor, nil
}

func (f *ProcessorFactory) GetCompressor(fileType string) (*compress.Compressor, error) {
    mimeType, err := f.resolve(fileType)
    if err != nil {
        return nil, err
    }
    compressor, ok := f.compressors[mimeType]
    if !ok {
        return nil, fmt.Errorf("%w: no compressor for %s", ErrUnsupportedType, mimeType)
    }
    return compressor, nil
}

// resolve accepts a MIME type, a filename or an extension.
func (f *ProcessorFactory) resolve(fileType string) (string, error) {
    if _, ok := f.compressors[fileType]; ok {
        return fileType, nil
    }
    mimeType, err := MIMEFromFilename(fileType)
    if err != nil {
        f.logger.Debug("Unsupported file type", logger.String("fileType", fileType))
        return "", err
    }
    return mimeType, nil
}
