package pdf

import (
	"github.com/feichai0017/pdfshift/internal/compress"
)

// Backend plugs pdfcpu into the compressor.
type Backend struct{}

func NewBackend() *Backend {
	return &Backend{}
}

func (b *Backend) Parse(data []byte) (compress.Container, error) {
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (b *Backend) NewAssembler() compress.Assembler {
	return NewAssembler()
}

var (
	_ compress.Backend   = (*Backend)(nil)
	_ compress.Container = (*Container)(nil)
	_ compress.Assembler = (*Assembler)(nil)
)
