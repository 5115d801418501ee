// Package pdf wraps the PDF object graph: parsing, metadata stripping,
// serialization and assembly of image-only documents.
package pdf

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// MetadataKeys are the info dictionary entries removed by StripMetadata.
// pdfcpu stamps Producer, CreationDate and ModDate again on write.
var MetadataKeys = []string{
	"Title",
	"Author",
	"Subject",
	"Keywords",
	"Creator",
	"Producer",
	"CreationDate",
	"ModDate",
	"Trapped",
}

var ErrEmpty = errors.New("empty pdf")

func init() {
	// no ~/.config/pdfcpu on servers
	api.DisableConfigDir()
}

// NewConfiguration returns the pdfcpu configuration used for every read
// and write: relaxed validation, object and xref streams on.
func NewConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.WriteObjectStream = true
	conf.WriteXRefStream = true
	return conf
}

// Container is one parsed document. It is not safe for concurrent use.
type Container struct {
	ctx        *model.Context
	serialized []byte
}

// Parse reads and validates data. The input slice is not modified.
func Parse(data []byte) (*Container, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	ctx, err := api.ReadContext(bytes.NewReader(data), NewConfiguration())
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("validate pdf: %w", err)
	}
	if err := api.OptimizeContext(ctx); err != nil {
		return nil, fmt.Errorf("optimize pdf: %w", err)
	}
	return &Container{ctx: ctx}, nil
}

// PageCount returns the number of pages.
func (c *Container) PageCount() int {
	return c.ctx.PageCount
}

// StripMetadata drops the document properties and the XMP stream.
// Calling it again on the same container is a no-op. Re-parsing a
// serialized container and stripping it again removes nothing new, but
// the output size may shift because every write re-stamps Producer and
// dates.
func (c *Container) StripMetadata() error {
	xrt := c.ctx.XRefTable

	if xrt.Info != nil {
		d, err := xrt.DereferenceDict(*xrt.Info)
		if err != nil {
			return fmt.Errorf("info dict: %w", err)
		}
		if d != nil {
			for _, k := range MetadataKeys {
				d.Delete(k)
			}
		}
	}

	root, err := xrt.Catalog()
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	root.Delete("Metadata")
	root.Delete("PieceInfo")

	c.serialized = nil
	return nil
}

// Serialize writes the container. The write mutates pdfcpu's write state,
// so the bytes are cached until the next StripMetadata.
func (c *Container) Serialize() ([]byte, error) {
	if c.serialized != nil {
		return c.serialized, nil
	}
	var buf bytes.Buffer
	if err := api.WriteContext(c.ctx, &buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	c.serialized = buf.Bytes()
	return c.serialized, nil
}

// StripAndSerialize is Parse + StripMetadata + Serialize.
func StripAndSerialize(data []byte) ([]byte, error) {
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := c.StripMetadata(); err != nil {
		return nil, err
	}
	return c.Serialize()
}
