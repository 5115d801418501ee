// internal/utils/validator/document.go
package validator

import (
    "crypto/sha256"
    "encoding/hex"
    "errors"
    "fmt"
    "io"
    "mime/multipart"
    "path/filepath"
    "strings"

    "github.com/dustin/go-humanize"
    "github.com/gabriel-vasile/mimetype"

    "github.com/feichai0017/pdfshift/internal/compress"
    "github.com/feichai0017/pdfshift/pkg/logger"
)

const (
    DefaultMaxFileSize = 500 * compress.MiB
    DefaultMinFileSize = compress.KiB
)

var ErrInvalidUpload = errors.New("invalid upload")

// DocumentValidator 文档验证器
type DocumentValidator struct {
    logger logger.Logger
    config *ValidatorConfig
}

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
    MaxFileSize  int64               // 最大文件大小（字节）
    MinFileSize  int64               // 最小文件大小（字节）
    AllowedTypes map[string][]string // 允许的文件类型 {扩展名: []MIME类型}
}

func DefaultConfig() *ValidatorConfig {
    return &ValidatorConfig{
        MaxFileSize: DefaultMaxFileSize,
        MinFileSize: DefaultMinFileSize,
        AllowedTypes: map[string][]string{
            ".pdf": {compress.MediaTypePDF},
        },
    }
}

// ValidationResult 验证结果
type ValidationResult struct {
    IsValid  bool              `json:"isValid"`
    Errors   []ValidationError `json:"errors,omitempty"`
    FileInfo FileInfo          `json:"fileInfo"`
}

// Err folds the validation errors into one error wrapping ErrInvalidUpload.
func (r *ValidationResult) Err() error {
    if r.IsValid {
        return nil
    }
    msgs := make([]string, 0, len(r.Errors))
    for _, e := range r.Errors {
        msgs = append(msgs, e.Message)
    }
    return fmt.Errorf("%w: %s", ErrInvalidUpload, strings.Join(msgs, "; "))
}

// ValidationError 验证错误
type ValidationError struct {
    Code    string `json:"code"`
    Message string `json:"message"`
    Field   string `json:"field,omitempty"`
}

// FileInfo 文件信息
type FileInfo struct {
    Filename  string `json:"filename"`
    Size      int64  `json:"size"`
    MimeType  string `json:"mimeType"`
    Extension string `json:"extension"`
    Hash      string `json:"hash"`
}

// NewDocumentValidator 创建新的文档验证器
func NewDocumentValidator(logger logger.Logger, config *ValidatorConfig) *DocumentValidator {
    if config == nil {
        config = DefaultConfig()
    }
    return &DocumentValidator{
        logger: logger,
        config: config,
    }
}

// MaxFileSize returns the configured upload ceiling.
func (v *DocumentValidator) MaxFileSize() int64 {
    return v.config.MaxFileSize
}

// ReadUpload reads an uploaded file, refusing to buffer more than the
// configured maximum, and validates it.
func (v *DocumentValidator) ReadUpload(header *multipart.FileHeader) ([]byte, *ValidationResult, error) {
    if header.Size > v.config.MaxFileSize {
        result := v.newResult(header.Filename, header.Size)
        result.add(v.sizeErrors(header.Size)...)
        return nil, result, nil
    }

    f, err := header.Open()
    if err != nil {
        return nil, nil, fmt.Errorf("failed to open file: %w", err)
    }
    defer f.Close()

    data, err := ReadLimited(f, v.config.MaxFileSize)
    if err != nil {
        return nil, nil, err
    }
    return data, v.Validate(header.Filename, data), nil
}

// ReadLimited reads r up to limit bytes; one byte more fails.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
    data, err := io.ReadAll(io.LimitReader(r, limit+1))
    if err != nil {
        return nil, fmt.Errorf("failed to read file: %w", err)
    }
    if int64(len(data)) > limit {
        return nil, fmt.Errorf("%w: file exceeds %s", ErrInvalidUpload, humanize.IBytes(uint64(limit)))
    }
    return data, nil
}

// Validate checks size bounds and that the content is a PDF, either by
// sniffing or by extension.
func (v *DocumentValidator) Validate(filename string, data []byte) *ValidationResult {
    result := v.newResult(filename, int64(len(data)))

    // 计算文件哈希
    sum := sha256.Sum256(data)
    result.FileInfo.Hash = hex.EncodeToString(sum[:])

    // MIME 类型检测
    result.FileInfo.MimeType = mimetype.Detect(data).String()

    result.add(v.sizeErrors(result.FileInfo.Size)...)
    result.add(v.typeErrors(result.FileInfo)...)

    if !result.IsValid {
        v.logger.Debug("Upload rejected",
            logger.String("filename", filename),
            logger.String("mimeType", result.FileInfo.MimeType),
            logger.Any("errors", result.Errors),
        )
    }
    return result
}

func (v *DocumentValidator) newResult(filename string, size int64) *ValidationResult {
    return &ValidationResult{
        IsValid: true,
        Errors:  make([]ValidationError, 0),
        FileInfo: FileInfo{
            Filename:  filename,
            Size:      size,
            Extension: strings.ToLower(filepath.Ext(filename)),
        },
    }
}

func (r *ValidationResult) add(errs ...ValidationError) {
    if len(errs) == 0 {
        return
    }
    r.IsValid = false
    r.Errors = append(r.Errors, errs...)
}

func (v *DocumentValidator) sizeErrors(size int64) []ValidationError {
    var errs []ValidationError

    if size > v.config.MaxFileSize {
        errs = append(errs, ValidationError{
            Code:    "FILE_TOO_LARGE",
            Message: fmt.Sprintf("File size exceeds maximum limit of %s", humanize.IBytes(uint64(v.config.MaxFileSize))),
            Field:   "size",
        })
    }
    if size < v.config.MinFileSize {
        errs = append(errs, ValidationError{
            Code:    "FILE_TOO_SMALL",
            Message: fmt.Sprintf("File is smaller than %s", humanize.IBytes(uint64(v.config.MinFileSize))),
            Field:   "size",
        })
    }
    return errs
}

func (v *DocumentValidator) typeErrors(info FileInfo) []ValidationError {
    if _, ok := v.config.AllowedTypes[info.Extension]; ok {
        return nil
    }
    for _, mimes := range v.config.AllowedTypes {
        for _, m := range mimes {
            if mimetype.EqualsAny(info.MimeType, m) {
                return nil
            }
        }
    }
    return []ValidationError{{
        Code:    "INVALID_FILE_TYPE",
        Message: fmt.Sprintf("File type %s (%s) is not allowed", info.Extension, info.MimeType),
        Field:   "mimeType",
    }}
}
