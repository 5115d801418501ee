package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdfshift/internal/compress"
	"github.com/feichai0017/pdfshift/internal/utils/validator"
	"github.com/feichai0017/pdfshift/pkg/converters"
)

// textPDF writes a small valid PDF with one text line per page.
func textPDF(t *testing.T, dir string, pages int) string {
	t.Helper()

	var objs []string
	objs = append(objs, "", "", "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	var kids bytes.Buffer
	for i := 0; i < pages; i++ {
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (page %d of the quarterly report) Tj ET", i+1)
		objs = append(objs, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
		content := len(objs)
		objs = append(objs, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", content))
		fmt.Fprintf(&kids, "%d 0 R ", len(objs))
	}
	objs[0] = "<< /Type /Catalog /Pages 2 0 R >>"
	objs[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids.String(), pages)
	objs = append(objs, "<< /Title (Quarterly) /Author (Finance) >>")

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
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, len(objs), xref)

	path := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

// execute runs the root command with fresh flag values.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, verbose = "", false
	assessTarget = ""
	compressTarget, compressOutput, compressReport = "", "", ""
	compressOversample, compressQuality, compressTolerance = 0, 0, -1
	compressGrayscale, compressQuiet = false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTextPDF_Trailer(t *testing.T) {
	data, err := os.ReadFile(textPDF(t, t.TempDir(), 1))
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(data, []byte("\nstartxref\n"+fmt.Sprint(bytes.Index(data, []byte("xref\n0 ")))+"\n%%EOF\n")))
}

func TestCompress_MetadataStage(t *testing.T) {
	dir := t.TempDir()
	in := textPDF(t, dir, 12)
	outFile := filepath.Join(dir, "small.pdf")
	reportFile := filepath.Join(dir, "report.json")

	stdout, err := execute(t, "compress", in, "-t", "1MB", "-o", outFile, "--report", reportFile, "-q")
	require.NoError(t, err)
	assert.Contains(t, stdout, "metadata")
	assert.Contains(t, stdout, "target reached")

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	raw, err := os.ReadFile(reportFile)
	require.NoError(t, err)
	var report converters.CompressionReport
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, compress.StageMetadata, report.Stage)
	assert.Equal(t, int64(1000000), report.TargetSize)
	assert.Equal(t, int64(len(data)), report.CompressedSize)
}

func TestCompress_DefaultOutputName(t *testing.T) {
	dir := t.TempDir()
	in := textPDF(t, dir, 12)

	_, err := execute(t, "compress", in, "-q")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "report_compressed.pdf"))
}

func TestCompress_Rejections(t *testing.T) {
	dir := t.TempDir()
	in := textPDF(t, dir, 12)

	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, bytes.Repeat([]byte("plain text "), 200), 0o644))

	_, err := execute(t, "compress", notes, "-q")
	assert.ErrorIs(t, err, validator.ErrInvalidUpload)

	_, err = execute(t, "compress", in, "-t", "lots", "-q")
	assert.ErrorIs(t, err, compress.ErrInvalidRequest)

	_, err = execute(t, "compress", filepath.Join(dir, "missing.pdf"), "-q")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = execute(t, "compress")
	assert.Error(t, err)
}

func TestAssess(t *testing.T) {
	dir := t.TempDir()
	in := textPDF(t, dir, 12)

	stdout, err := execute(t, "assess", in, "-t", "2MB")
	require.NoError(t, err)
	assert.Contains(t, stdout, "advised quality: 0.90")
	assert.Contains(t, stdout, "pages:           12 (12 with text)")
	assert.NotContains(t, stdout, "looks scanned")
}
