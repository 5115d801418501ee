package converters

import (
    "encoding/json"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/feichai0017/pdfshift/internal/compress"
    "github.com/feichai0017/pdfshift/internal/models"
)

func sampleResult() *compress.Result {
    return &compress.Result{
        Size:           3 * compress.MiB,
        OriginalSize:   12 * compress.MiB,
        BaselineSize:   11 * compress.MiB,
        Stage:          compress.StageRasterized,
        PagesTotal:     10,
        PagesSkipped:   1,
        TargetReached:  true,
        AdvisedQuality: 0.4,
        Duration:       1500 * time.Millisecond,
    }
}

func TestJSONConverter_Convert(t *testing.T) {
    c := NewJSONConverter()
    doc := &models.DocumentInfo{Pages: 10, TextPages: 0}
    report, err := c.Convert(ReportInput{
        TaskID:   "t1",
        Filename: "Scan.PDF",
        Request:  compress.NewRequest(4 * compress.MiB),
        Result:   sampleResult(),
        Document: doc,
    })
    require.NoError(t, err)

    assert.Equal(t, "t1", report.TaskID)
    assert.Equal(t, "completed", report.Status)
    assert.Equal(t, "Scan_compressed.pdf", report.OutputFilename)
    assert.Equal(t, compress.StageRasterized, report.Stage)
    assert.Equal(t, int64(4*compress.MiB), report.TargetSize)
    assert.InDelta(t, 75.0, report.Ratio, 1e-9)
    assert.Equal(t, compress.ImpactSignificant, report.Assessment.Level)
    assert.Equal(t, int64(1500), report.ProcessingMs)
    assert.Equal(t, "12 MiB -> 3.0 MiB (75.0% smaller)", report.Summary)
    assert.Same(t, doc, report.Document)
    assert.False(t, report.ProcessedAt.IsZero())
}

func TestJSONConverter_NoResult(t *testing.T) {
    _, err := NewJSONConverter().Convert(ReportInput{Filename: "a.pdf"})
    assert.Error(t, err)
}

func TestJSONConverter_Marshal(t *testing.T) {
    c := NewJSONConverter()
    report, err := c.Convert(ReportInput{Filename: "a.pdf", Request: compress.NewRequest(compress.MiB), Result: sampleResult()})
    require.NoError(t, err)

    data, err := c.Marshal(report)
    require.NoError(t, err)

    var m map[string]interface{}
    require.NoError(t, json.Unmarshal(data, &m))
    assert.Equal(t, "rasterized", m["stage"])
    assert.Equal(t, float64(3*compress.MiB), m["compressedSize"])
    assert.NotContains(t, m, "taskId")
    assert.NotContains(t, m, "document")
}
