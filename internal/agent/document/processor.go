package document

import (
    "context"

    "github.com/feichai0017/pdfshift/internal/models"
)

// Processor 文档检查器接口
type Processor interface {
    // CanProcess 检查是否可以处理指定MIME类型的文件
    CanProcess(mimeType string) bool

    // Inspect 读取文档信息，不修改内容
    Inspect(ctx context.Context, content []byte) (models.DocumentInfo, error)
}
