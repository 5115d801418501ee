package converters

import (
    "encoding/json"
    "errors"
    "fmt"
    "time"

    "github.com/dustin/go-humanize"

    "github.com/feichai0017/pdfshift/internal/compress"
    "github.com/feichai0017/pdfshift/internal/models"
)

// ReportConverter 定义压缩报告转换器接口
type ReportConverter interface {
    Convert(in ReportInput) (*CompressionReport, error)
}

// ReportInput 生成报告所需的数据
type ReportInput struct {
    TaskID   string
    Filename string
    Request  compress.Request
    Result   *compress.Result
    Document *models.DocumentInfo
}

// CompressionReport 定义压缩报告结构
type CompressionReport struct {
    TaskID         string               `json:"taskId,omitempty"`
    Status         string               `json:"status"`
    Filename       string               `json:"filename"`
    OutputFilename string               `json:"outputFilename"`
    Stage          compress.Stage       `json:"stage"`
    OriginalSize   int64                `json:"originalSize"`
    BaselineSize   int64                `json:"baselineSize"`
    CompressedSize int64                `json:"compressedSize"`
    TargetSize     int64                `json:"targetSize"`
    TargetReached  bool                 `json:"targetReached"`
    Ratio          float64              `json:"ratio"`
    PagesTotal     int                  `json:"pagesTotal"`
    PagesSkipped   int                  `json:"pagesSkipped"`
    AdvisedQuality float64              `json:"advisedQuality"`
    Assessment     compress.Assessment  `json:"assessment"`
    Summary        string               `json:"summary"`
    Document       *models.DocumentInfo `json:"document,omitempty"`
    ProcessingMs   int64                `json:"processingMs"`
    ProcessedAt    time.Time            `json:"processedAt"`
}

// JSONConverter 实现报告转换器
type JSONConverter struct{}

func NewJSONConverter() *JSONConverter {
    return &JSONConverter{}
}

func (c *JSONConverter) Convert(in ReportInput) (*CompressionReport, error) {
    if in.Result == nil {
        return nil, errors.New("no result to convert")
    }
    res := in.Result

    report := &CompressionReport{
        TaskID:         in.TaskID,
        Status:         string(models.StatusCompleted),
        Filename:       in.Filename,
        OutputFilename: compress.CompressedFilename(in.Filename),
        Stage:          res.Stage,
        OriginalSize:   res.OriginalSize,
        BaselineSize:   res.BaselineSize,
        CompressedSize: res.Size,
        TargetSize:     in.Request.TargetSizeBytes,
        TargetReached:  res.TargetReached,
        Ratio:          res.Ratio(),
        PagesTotal:     res.PagesTotal,
        PagesSkipped:   res.PagesSkipped,
        AdvisedQuality: res.AdvisedQuality,
        Assessment:     compress.AssessQualityImpact(res.OriginalSize, in.Request.TargetSizeBytes),
        Summary:        Summary(res),
        Document:       in.Document,
        ProcessingMs:   res.Duration.Milliseconds(),
        ProcessedAt:    time.Now(),
    }
    return report, nil
}

// Marshal 序列化报告
func (c *JSONConverter) Marshal(report *CompressionReport) ([]byte, error) {
    data, err := json.MarshalIndent(report, "", "  ")
    if err != nil {
        return nil, fmt.Errorf("failed to marshal report: %w", err)
    }
    return data, nil
}

// Summary renders "12 MiB -> 2.9 MiB (75.8% smaller)".
func Summary(res *compress.Result) string {
    return fmt.Sprintf("%s -> %s (%.1f%% smaller)",
        humanize.IBytes(uint64(res.OriginalSize)),
        humanize.IBytes(uint64(res.Size)),
        res.Ratio(),
    )
}
