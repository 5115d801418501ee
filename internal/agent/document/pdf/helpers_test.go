package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/require"
)

type testPage struct {
	width, height int
	text          string
}

// buildPDF writes a classic xref PDF with one object per page, an optional
// Helvetica text line per page and an info dictionary.
func buildPDF(t *testing.T, info map[string]string, pages ...testPage) []byte {
	t.Helper()

	var objs []string
	add := func(body string) int {
		objs = append(objs, body)
		return len(objs)
	}

	catalog := add("") // patched below
	pagesObj := add("")
	font := add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	var kids bytes.Buffer
	for _, p := range pages {
		contents := ""
		if p.text != "" {
			stream := fmt.Sprintf("BT /F1 12 Tf 72 %d Td (%s) Tj ET", p.height-72, p.text)
			c := add(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
			contents = fmt.Sprintf(" /Contents %d 0 R", c)
		}
		page := add(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 %d %d] /Resources << /Font << /F1 %d 0 R >> >>%s >>",
			pagesObj, p.width, p.height, font, contents))
		fmt.Fprintf(&kids, "%d 0 R ", page)
	}
	objs[catalog-1] = fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj)
	objs[pagesObj-1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids.String(), len(pages))

	infoRef := ""
	if len(info) > 0 {
		var d bytes.Buffer
		d.WriteString("<<")
		for k, v := range info {
			fmt.Fprintf(&d, " /%s (%s)", k, v)
		}
		d.WriteString(" >>")
		infoRef = fmt.Sprintf(" /Info %d 0 R", add(d.String()))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R%s >>\nstartxref\n%d\n%%%%EOF\n",
		len(objs)+1, catalog, infoRef, xref)
	return buf.Bytes()
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}))
	return buf.Bytes()
}
