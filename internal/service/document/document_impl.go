package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	cfg "github.com/feichai0017/pdfshift/config"
	"github.com/feichai0017/pdfshift/internal/agent"
	"github.com/feichai0017/pdfshift/internal/compress"
	"github.com/feichai0017/pdfshift/internal/models"
	"github.com/feichai0017/pdfshift/internal/utils/validator"
	"github.com/feichai0017/pdfshift/pkg/converters"
	"github.com/feichai0017/pdfshift/pkg/logger"
	"github.com/feichai0017/pdfshift/pkg/queue"
	"github.com/feichai0017/pdfshift/pkg/storage"
)

type CompressionService struct {
	processorFactory *agent.ProcessorFactory
	queue            queue.Queue
	storage          storage.Storage
	validator        *validator.DocumentValidator
	converter        *converters.JSONConverter
	logger           logger.Logger
	config           *ServiceConfig
}

type ServiceConfig struct {
	QueuePriority   int
	MaxConcurrent   int
	RetentionPeriod time.Duration
	// EnforceTargetLimits rejects targets under 1 MiB or 10% of the source.
	EnforceTargetLimits bool
	MinQuality          float64
	MaxQuality          float64
	// ProgressStep is the smallest progress change, in percent, written to
	// the status store while a task runs.
	ProgressStep int
}

func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		QueuePriority:       2,
		MaxConcurrent:       5,
		RetentionPeriod:     24 * time.Hour,
		EnforceTargetLimits: true,
		MinQuality:          compress.DefaultMinQuality,
		MaxQuality:          compress.DefaultMaxQuality,
		ProgressStep:        5,
	}
}

func NewService(
	factory *agent.ProcessorFactory,
	queue queue.Queue,
	storage storage.Storage,
	v *validator.DocumentValidator,
	log logger.Logger,
	config *ServiceConfig,
) *CompressionService {
	if config == nil {
		config = DefaultServiceConfig()
	}
	if v == nil {
		v = validator.NewDocumentValidator(log, nil)
	}

	return &CompressionService{
		processorFactory: factory,
		queue:            queue,
		storage:          storage,
		validator:        v,
		converter:        converters.NewJSONConverter(),
		logger:           log.Named("service"),
		config:           config,
	}
}

// GetService wires the service from configuration.
func GetService(conf *cfg.Config, log logger.Logger) (*CompressionService, error) {
	// 初始化存储
	store, err := storage.NewStorage(storage.StorageType(conf.Storage.Backend), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// 初始化队列
	q, err := queue.GetQueue()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	// 初始化处理器工厂
	factory, err := agent.NewProcessorFactory(conf.Compression, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize processor factory: %w", err)
	}

	sc := DefaultServiceConfig()
	sc.RetentionPeriod = conf.Storage.Retention
	sc.MinQuality = conf.Compression.MinQuality
	sc.MaxQuality = conf.Compression.MaxQuality

	return NewService(factory, q, store, nil, log, sc), nil
}

// ReadUpload 读取并验证上传文件
func (s *CompressionService) ReadUpload(header *multipart.FileHeader) ([]byte, error) {
	data, result, err := s.validator.ReadUpload(header)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		s.logger.Info("File validation failed",
			logger.String("filename", header.Filename),
			logger.Error(err),
		)
		return nil, err
	}
	return data, nil
}

// resolveRequest fills the default target and quality bounds.
func (s *CompressionService) resolveRequest(size int64, req compress.Request) (compress.Request, error) {
	if req.TargetSizeBytes == 0 {
		req.TargetSizeBytes = compress.DefaultTarget(size)
	}
	if req.MinQuality == 0 && req.MaxQuality == 0 {
		req.MinQuality, req.MaxQuality = s.config.MinQuality, s.config.MaxQuality
	}
	if s.config.EnforceTargetLimits {
		if err := compress.ValidateTarget(size, req.TargetSizeBytes); err != nil {
			return req, fmt.Errorf("%w: %w", compress.ErrInvalidRequest, err)
		}
	}
	return req, req.Validate()
}

// Compress 同步压缩
func (s *CompressionService) Compress(
	ctx context.Context,
	filename string,
	data []byte,
	req compress.Request,
	onProgress compress.ProgressFunc,
) (*compress.Result, error) {
	req, err := s.resolveRequest(int64(len(data)), req)
	if err != nil {
		return nil, err
	}

	compressor, err := s.processorFactory.GetCompressor(compress.MediaTypePDF)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx, s.logger)
	log.Info("Starting compression",
		logger.String("filename", filename),
		logger.Bytes("size", int64(len(data))),
		logger.Bytes("target", req.TargetSizeBytes),
	)

	return compressor.Compress(ctx, compress.SourceDocument{Data: data, MediaType: compress.MediaTypePDF}, req, onProgress)
}

// Submit 保存源文件并创建异步任务
func (s *CompressionService) Submit(ctx context.Context, filename string, data []byte, req compress.Request) (*models.CompressionTask, error) {
	req, err := s.resolveRequest(int64(len(data)), req)
	if err != nil {
		return nil, err
	}

	// 生成任务ID
	taskID := uuid.New().String()
	now := time.Now()

	task := &models.CompressionTask{
		ID:         taskID,
		Status:     models.StatusPending,
		Priority:   s.config.QueuePriority,
		Filename:   filename,
		TargetSize: req.TargetSizeBytes,
		CreatedAt:  now,
		UpdatedAt:  now,
		Metadata: map[string]string{
			"filename": filename,
			"size":     fmt.Sprintf("%d", len(data)),
		},
	}

	// 存储文件
	sourceKey, err := s.storage.Store(ctx, bytes.NewReader(data), storage.SourceKey(taskID))
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	// 保存初始状态，先于入队，避免 worker 覆盖
	initialStatus := &queue.TaskStatus{
		TaskID:       taskID,
		Status:       queue.StatusPending,
		Filename:     filename,
		OriginalSize: int64(len(data)),
		StartedAt:    now,
	}
	if err := s.queue.SaveStatus(ctx, initialStatus); err != nil {
		s.logger.Error("Failed to save initial status",
			logger.String("taskId", taskID),
			logger.Error(err),
		)
	}

	queueTask := &queue.Task{
		ID:       taskID,
		Type:     queue.TaskTypePDFCompress,
		Priority: task.Priority,
		Payload: queue.CompressPayload{
			SourceKey:  sourceKey,
			Filename:   filename,
			TargetSize: req.TargetSizeBytes,
			MinQuality: req.MinQuality,
			MaxQuality: req.MaxQuality,
		},
		Metadata:  task.Metadata,
		CreatedAt: now,
	}

	// 加入处理队列
	if err := s.queue.Enqueue(ctx, queueTask); err != nil {
		s.logger.Error("Failed to enqueue task",
			logger.String("taskId", taskID),
			logger.Error(err),
		)
		s.discard(ctx, taskID)
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.logger.Info("Compression task created",
		logger.String("taskId", taskID),
		logger.String("filename", filename),
		logger.Bytes("target", req.TargetSizeBytes),
	)

	return task, nil
}

// SubmitBatch 批量提交
func (s *CompressionService) SubmitBatch(ctx context.Context, files []*multipart.FileHeader, req compress.Request) ([]*models.CompressionTask, error) {
	tasks := make([]*models.CompressionTask, 0, len(files))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	if s.config.MaxConcurrent > 0 {
		g.SetLimit(s.config.MaxConcurrent)
	}

	for _, header := range files {
		g.Go(func() error {
			data, err := s.ReadUpload(header)
			if err != nil {
				return fmt.Errorf("file %s: %w", header.Filename, err)
			}

			task, err := s.Submit(ctx, header.Filename, data, req)
			if err != nil {
				return fmt.Errorf("file %s: %w", header.Filename, err)
			}

			mu.Lock()
			tasks = append(tasks, task)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return tasks, err // 返回已处理的任务和错误
	}
	return tasks, nil
}

// HandleCompression 执行队列中的压缩任务
func (s *CompressionService) HandleCompression(ctx context.Context, task *queue.Task) (*converters.CompressionReport, error) {
	if task == nil || task.ID == "" || task.Payload.SourceKey == "" {
		return nil, fmt.Errorf("%w: missing task data", compress.ErrInvalidRequest)
	}

	ctx = logger.WithTaskID(ctx, task.ID)
	log := logger.FromContext(ctx, s.logger)
	p := task.Payload

	status := &queue.TaskStatus{
		TaskID:    task.ID,
		Status:    queue.StatusRunning,
		Filename:  p.Filename,
		StartedAt: time.Now(),
	}
	s.saveStatus(ctx, status)

	data, err := storage.ReadAll(ctx, s.storage, p.SourceKey)
	if err != nil {
		return nil, s.fail(ctx, status, fmt.Errorf("failed to get source: %w", err))
	}
	status.OriginalSize = int64(len(data))

	compressor, err := s.processorFactory.GetCompressor(compress.MediaTypePDF)
	if err != nil {
		return nil, s.fail(ctx, status, err)
	}

	req := compress.Request{TargetSizeBytes: p.TargetSize, MinQuality: p.MinQuality, MaxQuality: p.MaxQuality}
	result, err := compressor.Compress(ctx, compress.SourceDocument{Data: data, MediaType: compress.MediaTypePDF}, req,
		s.progressWriter(ctx, status))
	if err != nil {
		return nil, s.fail(ctx, status, err)
	}

	if _, err := s.storage.Store(ctx, bytes.NewReader(result.Data), storage.ResultKey(task.ID)); err != nil {
		return nil, s.fail(ctx, status, fmt.Errorf("failed to store result: %w", err))
	}

	report, err := s.converter.Convert(converters.ReportInput{
		TaskID:   task.ID,
		Filename: p.Filename,
		Request:  req,
		Result:   result,
		Document: s.inspect(ctx, data),
	})
	if err != nil {
		return nil, s.fail(ctx, status, err)
	}
	reportData, err := s.converter.Marshal(report)
	if err != nil {
		return nil, s.fail(ctx, status, err)
	}
	if _, err := s.storage.Store(ctx, bytes.NewReader(reportData), storage.ReportKey(task.ID)); err != nil {
		return nil, s.fail(ctx, status, fmt.Errorf("failed to store report: %w", err))
	}

	status.Status = queue.StatusCompleted
	status.Progress = 100
	status.Stage = string(result.Stage)
	status.CompressedSize = result.Size
	status.TargetReached = result.TargetReached
	status.FinishedAt = time.Now()
	s.saveStatus(ctx, status)

	log.Info("Compression task completed",
		logger.String("stage", string(result.Stage)),
		logger.Bytes("size", result.Size),
		logger.Float64("ratio", result.Ratio()),
	)
	return report, nil
}

// progressWriter persists progress every ProgressStep percent and at 100.
func (s *CompressionService) progressWriter(ctx context.Context, status *queue.TaskStatus) compress.ProgressFunc {
	step := s.config.ProgressStep
	if step <= 0 {
		step = 1
	}
	last := -step
	return func(percent int) {
		if percent < 100 && percent-last < step {
			return
		}
		last = percent
		status.Progress = float64(percent)
		s.saveStatus(ctx, status)
	}
}

// inspect is best effort; the report omits document info on failure.
func (s *CompressionService) inspect(ctx context.Context, data []byte) *models.DocumentInfo {
	processor, err := s.processorFactory.GetProcessor(compress.MediaTypePDF)
	if err != nil {
		return nil
	}
	info, err := processor.Inspect(ctx, data)
	if err != nil {
		logger.FromContext(ctx, s.logger).Warn("Failed to inspect source", logger.Error(err))
		return nil
	}
	return &info
}

func (s *CompressionService) fail(ctx context.Context, status *queue.TaskStatus, err error) error {
	status.Status = queue.StatusFailed
	if errors.Is(err, context.Canceled) {
		status.Status = queue.StatusCancelled
	}
	status.Error = err.Error()
	status.FinishedAt = time.Now()
	// ctx may already be cancelled
	s.saveStatus(context.WithoutCancel(ctx), status)

	logger.FromContext(ctx, s.logger).Error("Compression task failed", logger.Error(err))
	return err
}

func (s *CompressionService) saveStatus(ctx context.Context, status *queue.TaskStatus) {
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		s.logger.Error("Failed to save status",
			logger.String("taskId", status.TaskID),
			logger.Error(err),
		)
	}
}

// GetStatus 获取任务状态
func (s *CompressionService) GetStatus(ctx context.Context, taskID string) (*models.CompressionTask, error) {
	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}

	return &models.CompressionTask{
		ID:        status.TaskID,
		Status:    models.ProcessingStatus(status.Status),
		Progress:  status.Progress,
		Stage:     status.Stage,
		Error:     status.Error,
		Filename:  status.Filename,
		CreatedAt: status.StartedAt,
		UpdatedAt: status.UpdatedAt,
		Metadata: map[string]string{
			"originalSize":   fmt.Sprintf("%d", status.OriginalSize),
			"compressedSize": fmt.Sprintf("%d", status.CompressedSize),
			"targetReached":  fmt.Sprintf("%t", status.TargetReached),
		},
	}, nil
}

func (s *CompressionService) completed(ctx context.Context, taskID string) (*models.CompressionTask, error) {
	task, err := s.GetStatus(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.StatusCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrTaskNotReady, taskID, task.Status)
	}
	return task, nil
}

// GetResult 获取压缩结果
func (s *CompressionService) GetResult(ctx context.Context, taskID string) (*Download, error) {
	task, err := s.completed(ctx, taskID)
	if err != nil {
		return nil, err
	}

	data, err := storage.ReadAll(ctx, s.storage, storage.ResultKey(taskID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: result for %s expired", ErrTaskNotFound, taskID)
		}
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	report, err := s.GetReport(ctx, taskID)
	if err != nil {
		s.logger.Warn("Report unavailable",
			logger.String("taskId", taskID),
			logger.Error(err),
		)
	}

	return &Download{
		Filename: compress.CompressedFilename(task.Filename),
		Data:     data,
		Report:   report,
	}, nil
}

// GetReport 获取压缩报告
func (s *CompressionService) GetReport(ctx context.Context, taskID string) (*converters.CompressionReport, error) {
	if _, err := s.completed(ctx, taskID); err != nil {
		return nil, err
	}

	data, err := storage.ReadAll(ctx, s.storage, storage.ReportKey(taskID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: report for %s expired", ErrTaskNotFound, taskID)
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var report converters.CompressionReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}

// CancelTask 取消未完成的任务；已完成的任务连同文件一起删除
func (s *CompressionService) CancelTask(ctx context.Context, taskID string) error {
	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		return fmt.Errorf("failed to get task status: %w", err)
	}

	if status.Finished() {
		s.discard(ctx, taskID)
		s.logger.Info("Task removed", logger.String("taskId", taskID))
		return nil
	}

	if err := s.queue.CancelTask(ctx, taskID); err != nil && !errors.Is(err, queue.ErrTaskNotFound) {
		return fmt.Errorf("failed to cancel task: %w", err)
	}

	status.Status = queue.StatusCancelled
	status.FinishedAt = time.Now()
	s.saveStatus(ctx, status)

	if err := s.storage.Delete(ctx, storage.SourceKey(taskID)); err != nil {
		s.logger.Warn("Failed to delete source", logger.String("taskId", taskID), logger.Error(err))
	}

	s.logger.Info("Task cancelled", logger.String("taskId", taskID))
	return nil
}

// discard removes every stored object and the status of a task.
func (s *CompressionService) discard(ctx context.Context, taskID string) {
	for _, key := range storage.TaskKeys(taskID) {
		if err := s.storage.Delete(ctx, key); err != nil {
			s.logger.Warn("Failed to delete object", logger.String("key", key), logger.Error(err))
		}
	}
	if err := s.queue.DeleteStatus(ctx, taskID); err != nil {
		s.logger.Warn("Failed to delete status", logger.String("taskId", taskID), logger.Error(err))
	}
}

// CleanupTasks 清理过期任务
func (s *CompressionService) CleanupTasks(ctx context.Context) error {
	threshold := time.Now().Add(-s.config.RetentionPeriod)

	if err := s.storage.CleanupBefore(ctx, threshold); err != nil {
		return fmt.Errorf("failed to cleanup storage: %w", err)
	}

	s.logger.Info("Completed tasks cleanup",
		logger.Time("threshold", threshold),
	)
	return nil
}

// Assess 评估目标大小
func (s *CompressionService) Assess(original, target int64) *Assessment {
	if target <= 0 {
		target = compress.DefaultTarget(original)
	}
	a := &Assessment{
		Assessment:       compress.AssessQualityImpact(original, target),
		OriginalSize:     original,
		TargetSize:       target,
		DefaultTarget:    compress.DefaultTarget(original),
		EstimatedMinimum: compress.EstimateMinimumSize(original),
		AdvisedQuality:   compress.AdvisedQuality(original, target, s.config.MinQuality, s.config.MaxQuality),
		Valid:            true,
	}
	if err := compress.ValidateTarget(original, target); err != nil {
		a.Valid = false
		a.Error = err.Error()
	}
	return a
}

var _ CompressionProcessor = (*CompressionService)(nil)
