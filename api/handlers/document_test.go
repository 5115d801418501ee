package handlers

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "mime/multipart"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/feichai0017/pdfshift/internal/compress"
    "github.com/feichai0017/pdfshift/internal/models"
    "github.com/feichai0017/pdfshift/internal/service/document"
    "github.com/feichai0017/pdfshift/internal/utils/validator"
    "github.com/feichai0017/pdfshift/pkg/converters"
    "github.com/feichai0017/pdfshift/pkg/logger"
    "github.com/feichai0017/pdfshift/pkg/queue"
)

type fakeService struct {
    uploadErr error
    err       error
    lastReq   compress.Request
    files     int
}

func (s *fakeService) ReadUpload(header *multipart.FileHeader) ([]byte, error) {
    if s.uploadErr != nil {
        return nil, s.uploadErr
    }
    f, err := header.Open()
    if err != nil {
        return nil, err
    }
    defer f.Close()
    return io.ReadAll(f)
}

func (s *fakeService) Compress(ctx context.Context, filename string, data []byte, req compress.Request, onProgress compress.ProgressFunc) (*compress.Result, error) {
    s.lastReq = req
    if s.err != nil {
        return nil, s.err
    }
    return &compress.Result{
        Data:          []byte("%PDF-small"),
        Size:          10,
        OriginalSize:  int64(len(data)),
        Stage:         compress.StageMetadata,
        TargetReached: true,
    }, nil
}

func (s *fakeService) Submit(ctx context.Context, filename string, data []byte, req compress.Request) (*models.CompressionTask, error) {
    s.lastReq = req
    if s.err != nil {
        return nil, s.err
    }
    return &models.CompressionTask{
        ID:         "task-1",
        Status:     models.StatusPending,
        Filename:   filename,
        TargetSize: req.TargetSizeBytes,
        CreatedAt:  time.Now(),
    }, nil
}

func (s *fakeService) SubmitBatch(ctx context.Context, files []*multipart.FileHeader, req compress.Request) ([]*models.CompressionTask, error) {
    s.files = len(files)
    var tasks []*models.CompressionTask
    for i, f := range files {
        tasks = append(tasks, &models.CompressionTask{ID: fmt.Sprintf("task-%d", i), Filename: f.Filename, Status: models.StatusPending})
    }
    return tasks, s.err
}

func (s *fakeService) HandleCompression(ctx context.Context, task *queue.Task) (*converters.CompressionReport, error) {
    return nil, errors.New("not used")
}

func (s *fakeService) GetStatus(ctx context.Context, taskID string) (*models.CompressionTask, error) {
    if s.err != nil {
        return nil, s.err
    }
    return &models.CompressionTask{ID: taskID, Status: models.StatusRunning, Progress: 42}, nil
}

func (s *fakeService) GetResult(ctx context.Context, taskID string) (*document.Download, error) {
    if s.err != nil {
        return nil, s.err
    }
    return &document.Download{
        Filename: "Straße_compressed.pdf",
        Data:     []byte("%PDF-result"),
        Report:   &converters.CompressionReport{OriginalSize: 100, CompressedSize: 11, Stage: compress.StageRasterized, TargetReached: true},
    }, nil
}

func (s *fakeService) GetReport(ctx context.Context, taskID string) (*converters.CompressionReport, error) {
    if s.err != nil {
        return nil, s.err
    }
    return &converters.CompressionReport{TaskID: taskID, Stage: compress.StageMetadata}, nil
}

func (s *fakeService) CancelTask(ctx context.Context, taskID string) error {
    return s.err
}

func (s *fakeService) CleanupTasks(ctx context.Context) error { return nil }

func (s *fakeService) Assess(original, target int64) *document.Assessment {
    return &document.Assessment{OriginalSize: original, TargetSize: target, Valid: true}
}

func newRouter(svc document.CompressionProcessor) *gin.Engine {
    gin.SetMode(gin.TestMode)
    r := gin.New()
    h := NewHandlers(svc, logger.NewNop())
    r.GET("/health", h.Health.Check)
    r.POST("/compress", h.Document.CompressDocument)
    r.POST("/process", h.Document.ProcessDocument)
    r.POST("/batch", h.Document.ProcessBatch)
    r.POST("/assess", h.Document.Assess)
    r.GET("/status/:taskId", h.Document.GetStatus)
    r.GET("/download/:taskId", h.Document.DownloadResult)
    r.GET("/report/:taskId", h.Document.GetReport)
    r.DELETE("/task/:taskId", h.Document.CancelTask)
    return r
}

func multipartRequest(t *testing.T, path, field string, fields map[string]string, files ...string) *http.Request {
    t.Helper()
    var body bytes.Buffer
    mw := multipart.NewWriter(&body)
    for _, name := range files {
        fw, err := mw.CreateFormFile(field, name)
        require.NoError(t, err)
        _, err = fw.Write([]byte("%PDF-1.4 content"))
        require.NoError(t, err)
    }
    for k, v := range fields {
        require.NoError(t, mw.WriteField(k, v))
    }
    require.NoError(t, mw.Close())

    req := httptest.NewRequest(http.MethodPost, path, &body)
    req.Header.Set("Content-Type", mw.FormDataContentType())
    return req
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
    w := httptest.NewRecorder()
    r.ServeHTTP(w, req)
    return w
}

func TestCompressDocument(t *testing.T) {
    svc := &fakeService{}
    w := serve(newRouter(svc), multipartRequest(t, "/compress", "file", map[string]string{"targetSize": "2", "unit": "KB"}, "Report.pdf"))

    require.Equal(t, http.StatusOK, w.Code)
    assert.Equal(t, compress.MediaTypePDF, w.Header().Get("Content-Type"))
    assert.Equal(t, "%PDF-small", w.Body.String())
    assert.Equal(t, `attachment; filename=Report_compressed.pdf`, w.Header().Get("Content-Disposition"))
    assert.Equal(t, "10", w.Header().Get(HeaderCompressedSize))
    assert.Equal(t, "metadata", w.Header().Get(HeaderCompressionStage))
    assert.Equal(t, "true", w.Header().Get(HeaderTargetReached))
    assert.Equal(t, int64(2048), svc.lastReq.TargetSizeBytes)
}

func TestCompressDocument_Errors(t *testing.T) {
    tests := []struct {
        name   string
        svc    *fakeService
        fields map[string]string
        files  []string
        code   int
    }{
        {"no file", &fakeService{}, nil, nil, http.StatusBadRequest},
        {"bad target", &fakeService{}, map[string]string{"targetSize": "big"}, []string{"a.pdf"}, http.StatusBadRequest},
        {"bad unit", &fakeService{}, map[string]string{"targetSize": "1", "unit": "GB"}, []string{"a.pdf"}, http.StatusBadRequest},
        {"rejected upload", &fakeService{uploadErr: fmt.Errorf("%w: too small", validator.ErrInvalidUpload)}, nil, []string{"a.pdf"}, http.StatusBadRequest},
        {"not a pdf", &fakeService{err: &compress.ParseError{Op: "load", Err: errors.New("eof")}}, nil, []string{"a.pdf"}, http.StatusUnprocessableEntity},
        {"engine down", &fakeService{err: &compress.RenderError{Op: "init engine", Err: errors.New("x")}}, nil, []string{"a.pdf"}, http.StatusInternalServerError},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            w := serve(newRouter(tt.svc), multipartRequest(t, "/compress", "file", tt.fields, tt.files...))
            assert.Equal(t, tt.code, w.Code)

            var resp ErrorResponse
            require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
            assert.NotEmpty(t, resp.Message)
            assert.NotEmpty(t, resp.Error)
        })
    }
}

func TestProcessDocument(t *testing.T) {
    svc := &fakeService{}
    w := serve(newRouter(svc), multipartRequest(t, "/process", "file", map[string]string{"targetSize": "1.5"}, "scan.pdf"))

    require.Equal(t, http.StatusAccepted, w.Code)
    var resp ProcessResponse
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
    assert.Equal(t, "task-1", resp.TaskID)
    assert.Equal(t, "pending", resp.Status)
    assert.Equal(t, int64(1536*1024), resp.TargetSize)
}

func TestProcessBatch(t *testing.T) {
    svc := &fakeService{}
    w := serve(newRouter(svc), multipartRequest(t, "/batch", "files", nil, "a.pdf", "b.pdf"))
    require.Equal(t, http.StatusAccepted, w.Code)
    assert.Equal(t, 2, svc.files)

    var resp struct {
        Tasks []ProcessResponse `json:"tasks"`
    }
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
    assert.Len(t, resp.Tasks, 2)

    w = serve(newRouter(svc), multipartRequest(t, "/batch", "files", map[string]string{"x": "y"}))
    assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessBatch_PartialFailureReturnsSubmittedTasks(t *testing.T) {
    svc := &fakeService{err: fmt.Errorf("file c.pdf: %w: too small", validator.ErrInvalidUpload)}
    w := serve(newRouter(svc), multipartRequest(t, "/batch", "files", nil, "a.pdf", "b.pdf"))
    require.Equal(t, http.StatusBadRequest, w.Code)

    var resp BatchErrorResponse
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
    assert.Contains(t, resp.Error, "c.pdf")
    require.Len(t, resp.Tasks, 2)
    assert.Equal(t, "task-0", resp.Tasks[0].TaskID)
    assert.Equal(t, "task-1", resp.Tasks[1].TaskID)
}

func TestProcessBatch_NothingSubmitted(t *testing.T) {
    svc := &emptyBatch{fakeService{err: errors.New("redis down")}}
    w := serve(newRouter(svc), multipartRequest(t, "/batch", "files", nil, "a.pdf"))
    require.Equal(t, http.StatusInternalServerError, w.Code)

    var resp map[string]interface{}
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
    assert.NotContains(t, resp, "tasks")
}

// emptyBatch fails before any task is created.
type emptyBatch struct {
    fakeService
}

func (s *emptyBatch) SubmitBatch(ctx context.Context, files []*multipart.FileHeader, req compress.Request) ([]*models.CompressionTask, error) {
    return nil, s.err
}

func TestGetStatus(t *testing.T) {
    w := serve(newRouter(&fakeService{}), httptest.NewRequest(http.MethodGet, "/status/t1", nil))
    require.Equal(t, http.StatusOK, w.Code)

    var resp map[string]interface{}
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
    assert.Equal(t, "t1", resp["taskId"])
    assert.Equal(t, "running", resp["status"])
    assert.Equal(t, float64(42), resp["progress"])

    w = serve(newRouter(&fakeService{err: fmt.Errorf("%w: t1", document.ErrTaskNotFound)}), httptest.NewRequest(http.MethodGet, "/status/t1", nil))
    assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadResult(t *testing.T) {
    w := serve(newRouter(&fakeService{}), httptest.NewRequest(http.MethodGet, "/download/t1", nil))
    require.Equal(t, http.StatusOK, w.Code)
    assert.Equal(t, "%PDF-result", w.Body.String())
    assert.Equal(t, "rasterized", w.Header().Get(HeaderCompressionStage))
    assert.Equal(t, "100", w.Header().Get(HeaderOriginalSize))
    assert.Contains(t, w.Header().Get("Content-Disposition"), "filename*=utf-8''Stra%C3%9Fe_compressed.pdf")

    w = serve(newRouter(&fakeService{err: fmt.Errorf("%w: running", document.ErrTaskNotReady)}), httptest.NewRequest(http.MethodGet, "/download/t1", nil))
    assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetReport(t *testing.T) {
    w := serve(newRouter(&fakeService{}), httptest.NewRequest(http.MethodGet, "/report/t1", nil))
    require.Equal(t, http.StatusOK, w.Code)
    var report converters.CompressionReport
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
    assert.Equal(t, "t1", report.TaskID)
}

func TestCancelTask(t *testing.T) {
    w := serve(newRouter(&fakeService{}), httptest.NewRequest(http.MethodDelete, "/task/t1", nil))
    assert.Equal(t, http.StatusOK, w.Code)

    w = serve(newRouter(&fakeService{err: errors.New("redis down")}), httptest.NewRequest(http.MethodDelete, "/task/t1", nil))
    assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAssess(t *testing.T) {
    body := bytes.NewBufferString(`{"originalSize": 1000, "targetSize": 500}`)
    req := httptest.NewRequest(http.MethodPost, "/assess", body)
    req.Header.Set("Content-Type", "application/json")
    w := serve(newRouter(&fakeService{}), req)
    require.Equal(t, http.StatusOK, w.Code)

    var a document.Assessment
    require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))
    assert.Equal(t, int64(1000), a.OriginalSize)
    assert.Equal(t, int64(500), a.TargetSize)

    req = httptest.NewRequest(http.MethodPost, "/assess", bytes.NewBufferString(`{"targetSize": 5}`))
    req.Header.Set("Content-Type", "application/json")
    w = serve(newRouter(&fakeService{}), req)
    assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
    w := serve(newRouter(&fakeService{}), httptest.NewRequest(http.MethodGet, "/health", nil))
    require.Equal(t, http.StatusOK, w.Code)
    assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestStatusFor(t *testing.T) {
    tests := []struct {
        err  error
        want int
    }{
        {fmt.Errorf("%w: x", validator.ErrInvalidUpload), http.StatusBadRequest},
        {compress.ErrInvalidRequest, http.StatusBadRequest},
        {fmt.Errorf("%w: x", compress.ErrTargetTooSmall), http.StatusBadRequest},
        {&compress.ParseError{Op: "load", Err: errors.New("x")}, http.StatusUnprocessableEntity},
        {document.ErrTaskNotFound, http.StatusNotFound},
        {document.ErrTaskNotReady, http.StatusConflict},
        {errors.New("boom"), http.StatusInternalServerError},
    }
    for _, tt := range tests {
        assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
    }
}
