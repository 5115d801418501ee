package validator

import (
    "bytes"
    "mime/multipart"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/feichai0017/pdfshift/internal/compress"
    "github.com/feichai0017/pdfshift/pkg/logger"
)

func fakePDF(size int) []byte {
    head := []byte("%PDF-1.4\n")
    return append(head, bytes.Repeat([]byte{' '}, size-len(head))...)
}

func codes(r *ValidationResult) []string {
    var out []string
    for _, e := range r.Errors {
        out = append(out, e.Code)
    }
    return out
}

func TestValidate_AcceptsPDF(t *testing.T) {
    v := NewDocumentValidator(logger.NewNop(), nil)
    r := v.Validate("report.pdf", fakePDF(4096))

    assert.True(t, r.IsValid)
    assert.NoError(t, r.Err())
    assert.Equal(t, compress.MediaTypePDF, r.FileInfo.MimeType)
    assert.Equal(t, ".pdf", r.FileInfo.Extension)
    assert.Equal(t, int64(4096), r.FileInfo.Size)
    assert.Len(t, r.FileInfo.Hash, 64)
}

func TestValidate_SniffsWithoutExtension(t *testing.T) {
    v := NewDocumentValidator(logger.NewNop(), nil)
    assert.True(t, v.Validate("upload", fakePDF(4096)).IsValid)
}

func TestValidate_Rejects(t *testing.T) {
    v := NewDocumentValidator(logger.NewNop(), &ValidatorConfig{
        MaxFileSize:  8 * compress.KiB,
        MinFileSize:  compress.KiB,
        AllowedTypes: DefaultConfig().AllowedTypes,
    })
    png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 2048)...)

    tests := []struct {
        name     string
        filename string
        data     []byte
        want     []string
    }{
        {"too small", "a.pdf", fakePDF(100), []string{"FILE_TOO_SMALL"}},
        {"too large", "a.pdf", fakePDF(9 * compress.KiB), []string{"FILE_TOO_LARGE"}},
        {"wrong type", "photo.png", png, []string{"INVALID_FILE_TYPE"}},
        {"small and wrong", "notes.txt", []byte("hello"), []string{"FILE_TOO_SMALL", "INVALID_FILE_TYPE"}},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            r := v.Validate(tt.filename, tt.data)
            assert.False(t, r.IsValid)
            assert.Equal(t, tt.want, codes(r))
            assert.ErrorIs(t, r.Err(), ErrInvalidUpload)
        })
    }
}

func TestReadLimited(t *testing.T) {
    data, err := ReadLimited(strings.NewReader("12345"), 5)
    require.NoError(t, err)
    assert.Equal(t, "12345", string(data))

    _, err = ReadLimited(strings.NewReader("123456"), 5)
    assert.ErrorIs(t, err, ErrInvalidUpload)
}

func uploadHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
    t.Helper()
    var body bytes.Buffer
    mw := multipart.NewWriter(&body)
    fw, err := mw.CreateFormFile("file", filename)
    require.NoError(t, err)
    _, err = fw.Write(content)
    require.NoError(t, err)
    require.NoError(t, mw.Close())

    req := httptest.NewRequest(http.MethodPost, "/", &body)
    req.Header.Set("Content-Type", mw.FormDataContentType())
    require.NoError(t, req.ParseMultipartForm(1<<20))
    return req.MultipartForm.File["file"][0]
}

func TestReadUpload(t *testing.T) {
    v := NewDocumentValidator(logger.NewNop(), nil)
    data, r, err := v.ReadUpload(uploadHeader(t, "scan.pdf", fakePDF(2048)))
    require.NoError(t, err)
    assert.True(t, r.IsValid)
    assert.Len(t, data, 2048)
}

func TestReadUpload_TooLargeNotBuffered(t *testing.T) {
    v := NewDocumentValidator(logger.NewNop(), &ValidatorConfig{
        MaxFileSize:  2 * compress.KiB,
        MinFileSize:  1,
        AllowedTypes: DefaultConfig().AllowedTypes,
    })
    assert.Equal(t, int64(2*compress.KiB), v.MaxFileSize())

    data, r, err := v.ReadUpload(uploadHeader(t, "big.pdf", fakePDF(4096)))
    require.NoError(t, err)
    assert.Nil(t, data)
    assert.Equal(t, []string{"FILE_TOO_LARGE"}, codes(r))
}
