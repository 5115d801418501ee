package document

import (
    "context"
    "errors"
    "mime/multipart"

    "github.com/feichai0017/pdfshift/internal/compress"
    "github.com/feichai0017/pdfshift/internal/models"
    "github.com/feichai0017/pdfshift/pkg/converters"
    "github.com/feichai0017/pdfshift/pkg/queue"
)

var (
    ErrTaskNotFound = errors.New("task not found")
    ErrTaskNotReady = errors.New("task not completed")
)

// CompressionProcessor 压缩服务接口
type CompressionProcessor interface {
    // ReadUpload 读取并验证上传文件
    ReadUpload(header *multipart.FileHeader) ([]byte, error)
    // Compress 同步压缩
    Compress(ctx context.Context, filename string, data []byte, req compress.Request, onProgress compress.ProgressFunc) (*compress.Result, error)
    // Submit 异步压缩，返回任务
    Submit(ctx context.Context, filename string, data []byte, req compress.Request) (*models.CompressionTask, error)
    SubmitBatch(ctx context.Context, files []*multipart.FileHeader, req compress.Request) ([]*models.CompressionTask, error)
    HandleCompression(ctx context.Context, task *queue.Task) (*converters.CompressionReport, error)
    GetStatus(ctx context.Context, taskID string) (*models.CompressionTask, error)
    GetResult(ctx context.Context, taskID string) (*Download, error)
    GetReport(ctx context.Context, taskID string) (*converters.CompressionReport, error)
    CancelTask(ctx context.Context, taskID string) error
    CleanupTasks(ctx context.Context) error
    Assess(original, target int64) *Assessment
}

// Download 压缩结果
type Download struct {
    Filename string
    Data     []byte
    Report   *converters.CompressionReport
}

// Assessment 目标大小评估
type Assessment struct {
    compress.Assessment
    OriginalSize     int64   `json:"originalSize"`
    TargetSize       int64   `json:"targetSize"`
    DefaultTarget    int64   `json:"defaultTarget"`
    EstimatedMinimum int64   `json:"estimatedMinimum"`
    AdvisedQuality   float64 `json:"advisedQuality"`
    Valid            bool    `json:"valid"`
    Error            string  `json:"error,omitempty"`
}
