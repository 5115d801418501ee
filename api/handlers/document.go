package handlers

import (
    "errors"
    "fmt"
    "mime"
    "net/http"
    "strconv"
    "time"

    "github.com/gin-gonic/gin"

    "github.com/feichai0017/pdfshift/internal/compress"
    "github.com/feichai0017/pdfshift/internal/models"
    "github.com/feichai0017/pdfshift/internal/service/document"
    "github.com/feichai0017/pdfshift/internal/utils/validator"
    "github.com/feichai0017/pdfshift/pkg/logger"
)

// 响应头
const (
    HeaderOriginalSize     = "X-Original-Size"
    HeaderCompressedSize   = "X-Compressed-Size"
    HeaderCompressionStage = "X-Compression-Stage"
    HeaderTargetReached    = "X-Target-Reached"
    HeaderCompressionRatio = "X-Compression-Ratio"
)

type DocumentHandler struct {
    service document.CompressionProcessor
    logger  logger.Logger
}

// ProcessResponse 定义处理响应结构
type ProcessResponse struct {
    TaskID     string `json:"taskId"`
    Status     string `json:"status"`
    Filename   string `json:"filename"`
    TargetSize int64  `json:"targetSize"`
    CreatedAt  string `json:"createdAt"`
}

// ErrorResponse 定义错误响应结构
type ErrorResponse struct {
    Error   string `json:"error"`
    Message string `json:"message"`
}

// BatchErrorResponse 部分提交失败时返回已创建的任务
type BatchErrorResponse struct {
    ErrorResponse
    Tasks []ProcessResponse `json:"tasks"`
}

// AssessRequest 评估请求
type AssessRequest struct {
    OriginalSize int64 `json:"originalSize" binding:"required,gt=0"`
    TargetSize   int64 `json:"targetSize" binding:"gte=0"`
}

func NewDocumentHandler(service document.CompressionProcessor, logger logger.Logger) *DocumentHandler {
    return &DocumentHandler{
        service: service,
        logger:  logger,
    }
}

// parseRequest reads the optional targetSize/unit form fields. A missing
// target is left zero so the service applies its default.
func parseRequest(c *gin.Context) (compress.Request, error) {
    req := compress.Request{}
    raw := c.PostForm("targetSize")
    if raw == "" {
        return req, nil
    }
    value, err := strconv.ParseFloat(raw, 64)
    if err != nil {
        return req, fmt.Errorf("%w: targetSize %q is not a number", compress.ErrInvalidRequest, raw)
    }
    target, err := compress.ParseTarget(value, c.DefaultPostForm("unit", "MB"))
    if err != nil {
        return req, err
    }
    req.TargetSizeBytes = target
    return req, nil
}

// CompressDocument 同步压缩并直接返回 PDF
func (h *DocumentHandler) CompressDocument(c *gin.Context) {
    header, err := c.FormFile("file")
    if err != nil {
        h.handleError(c, "Invalid file upload", fmt.Errorf("%w: %w", validator.ErrInvalidUpload, err))
        return
    }

    req, err := parseRequest(c)
    if err != nil {
        h.handleError(c, "Invalid target size", err)
        return
    }

    data, err := h.service.ReadUpload(header)
    if err != nil {
        h.handleError(c, "Invalid file upload", err)
        return
    }

    result, err := h.service.Compress(c.Request.Context(), header.Filename, data, req, nil)
    if err != nil {
        h.handleError(c, "Failed to compress file", err)
        return
    }

    c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
        "filename": compress.CompressedFilename(header.Filename),
    }))
    c.Header(HeaderOriginalSize, strconv.FormatInt(result.OriginalSize, 10))
    c.Header(HeaderCompressedSize, strconv.FormatInt(result.Size, 10))
    c.Header(HeaderCompressionStage, string(result.Stage))
    c.Header(HeaderTargetReached, strconv.FormatBool(result.TargetReached))
    c.Header(HeaderCompressionRatio, strconv.FormatFloat(result.Ratio(), 'f', 1, 64))
    c.Data(http.StatusOK, compress.MediaTypePDF, result.Data)
}

// ProcessDocument 创建异步压缩任务
func (h *DocumentHandler) ProcessDocument(c *gin.Context) {
    header, err := c.FormFile("file")
    if err != nil {
        h.handleError(c, "Invalid file upload", fmt.Errorf("%w: %w", validator.ErrInvalidUpload, err))
        return
    }

    req, err := parseRequest(c)
    if err != nil {
        h.handleError(c, "Invalid target size", err)
        return
    }

    data, err := h.service.ReadUpload(header)
    if err != nil {
        h.handleError(c, "Invalid file upload", err)
        return
    }

    task, err := h.service.Submit(c.Request.Context(), header.Filename, data, req)
    if err != nil {
        h.handleError(c, "Failed to process file", err)
        return
    }

    c.JSON(http.StatusAccepted, newProcessResponse(task))
}

func newProcessResponse(task *models.CompressionTask) ProcessResponse {
    return ProcessResponse{
        TaskID:     task.ID,
        Status:     string(task.Status),
        Filename:   task.Filename,
        TargetSize: task.TargetSize,
        CreatedAt:  task.CreatedAt.Format(time.RFC3339),
    }
}

// ProcessBatch 批量创建压缩任务
func (h *DocumentHandler) ProcessBatch(c *gin.Context) {
    form, err := c.MultipartForm()
    if err != nil {
        h.handleError(c, "Invalid form data", fmt.Errorf("%w: %w", validator.ErrInvalidUpload, err))
        return
    }

    files := form.File["files"]
    if len(files) == 0 {
        h.handleError(c, "No files provided", fmt.Errorf("%w: no files", validator.ErrInvalidUpload))
        return
    }

    req, err := parseRequest(c)
    if err != nil {
        h.handleError(c, "Invalid target size", err)
        return
    }

    tasks, err := h.service.SubmitBatch(c.Request.Context(), files, req)
    if err != nil && len(tasks) == 0 {
        h.handleError(c, "Failed to process files", err)
        return
    }

    responses := make([]ProcessResponse, len(tasks))
    for i, task := range tasks {
        responses[i] = newProcessResponse(task)
    }

    // 已入队的任务仍会执行，必须把 ID 返回给客户端
    if err != nil {
        status := StatusFor(err)
        logger.FromContext(c.Request.Context(), h.logger).Warn("Batch partially submitted",
            logger.Int("submitted", len(tasks)),
            logger.Int("files", len(files)),
            logger.Int("status", status),
            logger.Error(err),
        )
        c.AbortWithStatusJSON(status, BatchErrorResponse{
            ErrorResponse: ErrorResponse{Error: err.Error(), Message: "Some files were not submitted"},
            Tasks:         responses,
        })
        return
    }

    c.JSON(http.StatusAccepted, gin.H{
        "message": fmt.Sprintf("Processing %d documents", len(files)),
        "tasks":   responses,
    })
}

// GetStatus 获取处理状态
func (h *DocumentHandler) GetStatus(c *gin.Context) {
    taskID := c.Param("taskId")

    task, err := h.service.GetStatus(c.Request.Context(), taskID)
    if err != nil {
        h.handleError(c, "Failed to get status", err)
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "taskId":    task.ID,
        "status":    string(task.Status),
        "progress":  task.Progress,
        "stage":     task.Stage,
        "error":     task.Error,
        "filename":  task.Filename,
        "metadata":  task.Metadata,
        "createdAt": task.CreatedAt.Format(time.RFC3339),
        "updatedAt": task.UpdatedAt.Format(time.RFC3339),
    })
}

// DownloadResult 下载压缩后的 PDF
func (h *DocumentHandler) DownloadResult(c *gin.Context) {
    taskID := c.Param("taskId")

    result, err := h.service.GetResult(c.Request.Context(), taskID)
    if err != nil {
        h.handleError(c, "Failed to get result", err)
        return
    }

    c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
        "filename": result.Filename,
    }))
    if r := result.Report; r != nil {
        c.Header(HeaderOriginalSize, strconv.FormatInt(r.OriginalSize, 10))
        c.Header(HeaderCompressedSize, strconv.FormatInt(r.CompressedSize, 10))
        c.Header(HeaderCompressionStage, string(r.Stage))
        c.Header(HeaderTargetReached, strconv.FormatBool(r.TargetReached))
    }
    c.Data(http.StatusOK, compress.MediaTypePDF, result.Data)
}

// GetReport 获取压缩报告
func (h *DocumentHandler) GetReport(c *gin.Context) {
    taskID := c.Param("taskId")

    report, err := h.service.GetReport(c.Request.Context(), taskID)
    if err != nil {
        h.handleError(c, "Failed to get report", err)
        return
    }
    c.JSON(http.StatusOK, report)
}

// CancelTask 取消处理任务
func (h *DocumentHandler) CancelTask(c *gin.Context) {
    taskID := c.Param("taskId")

    if err := h.service.CancelTask(c.Request.Context(), taskID); err != nil {
        h.handleError(c, "Failed to cancel task", err)
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "message": "Task cancelled successfully",
        "taskId":  taskID,
    })
}

// Assess 评估目标大小对质量的影响
func (h *DocumentHandler) Assess(c *gin.Context) {
    var req AssessRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        h.handleError(c, "Invalid assessment request", fmt.Errorf("%w: %w", compress.ErrInvalidRequest, err))
        return
    }
    c.JSON(http.StatusOK, h.service.Assess(req.OriginalSize, req.TargetSize))
}

// StatusFor maps service errors onto HTTP status codes.
func StatusFor(err error) int {
    switch {
    case errors.Is(err, validator.ErrInvalidUpload),
        errors.Is(err, compress.ErrInvalidRequest),
        errors.Is(err, compress.ErrTargetTooSmall):
        return http.StatusBadRequest
    case errors.Is(err, compress.ErrParse):
        return http.StatusUnprocessableEntity
    case errors.Is(err, document.ErrTaskNotFound):
        return http.StatusNotFound
    case errors.Is(err, document.ErrTaskNotReady):
        return http.StatusConflict
    default:
        return http.StatusInternalServerError
    }
}

// handleError 统一错误处理
func (h *DocumentHandler) handleError(c *gin.Context, message string, err error) {
    status := StatusFor(err)
    log := logger.FromContext(c.Request.Context(), h.logger)
    fields := []logger.Field{
        logger.String("path", c.Request.URL.Path),
        logger.Int("status", status),
        logger.Error(err),
    }
    if status >= http.StatusInternalServerError {
        log.Error(message, fields...)
    } else {
        log.Info(message, fields...)
    }

    response := ErrorResponse{
        Message: message,
    }
    if err != nil {
        response.Error = err.Error()
    }

    c.AbortWithStatusJSON(status, response)
}
