package worker

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    "github.com/hibiken/asynq"

    "github.com/feichai0017/pdfshift/internal/compress"
    "github.com/feichai0017/pdfshift/pkg/converters"
    "github.com/feichai0017/pdfshift/pkg/logger"
    "github.com/feichai0017/pdfshift/pkg/queue"
)

// TaskTypeCleanup 定期清理过期文件
const TaskTypeCleanup = "storage:cleanup"

// CompressionHandler is the part of the service the worker drives.
type CompressionHandler interface {
    HandleCompression(ctx context.Context, task *queue.Task) (*converters.CompressionReport, error)
    CleanupTasks(ctx context.Context) error
}

type CompressionWorker struct {
    BaseWorker
    service CompressionHandler
}

func NewCompressionWorker(cfg *Config, service CompressionHandler, log logger.Logger) (*CompressionWorker, error) {
    queues := cfg.Queues
    if len(queues) == 0 {
        queues = DefaultQueues()
    }
    retryDelay := cfg.RetryDelay

    server := asynq.NewServer(cfg.Redis, asynq.Config{
        Concurrency:     cfg.Concurrency,
        Queues:          queues,
        ShutdownTimeout: cfg.ShutdownTimeout,
        RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
            if retryDelay > 0 {
                return time.Duration(n) * retryDelay
            }
            return time.Duration(n) * time.Minute
        },
    })

    w := &CompressionWorker{
        BaseWorker: BaseWorker{
            server:   server,
            mux:      asynq.NewServeMux(),
            logger:   log.Named("worker"),
            stopChan: make(chan struct{}),
        },
        service: service,
    }

    if cfg.CleanupSpec != "" {
        w.scheduler = asynq.NewScheduler(cfg.Redis, nil)
        if _, err := w.scheduler.Register(cfg.CleanupSpec, asynq.NewTask(TaskTypeCleanup, nil), asynq.Queue("low")); err != nil {
            return nil, fmt.Errorf("failed to register cleanup task: %w", err)
        }
    }

    // 注册任务处理器
    w.registerHandlers()
    return w, nil
}

func (w *CompressionWorker) registerHandlers() {
    w.mux.HandleFunc(queue.TaskTypePDFCompress, w.handleCompress)
    w.mux.HandleFunc(TaskTypeCleanup, w.handleCleanup)
}

func (w *CompressionWorker) handleCompress(ctx context.Context, t *asynq.Task) error {
    // 反序列化任务
    var task queue.Task
    if err := json.Unmarshal(t.Payload(), &task); err != nil {
        w.logger.Error("Failed to unmarshal task",
            logger.Error(err),
            logger.Int("payloadBytes", len(t.Payload())),
        )
        return fmt.Errorf("failed to unmarshal task: %v: %w", err, asynq.SkipRetry)
    }

    w.logger.Info("Processing compression task",
        logger.String("taskId", task.ID),
        logger.String("filename", task.Payload.Filename),
        logger.Bytes("target", task.Payload.TargetSize),
    )

    report, err := w.service.HandleCompression(ctx, &task)
    if err != nil {
        w.writeResult(t, map[string]string{"status": queue.StatusFailed, "error": err.Error()})
        if !Retryable(err) {
            return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
        }
        return err
    }

    w.writeResult(t, report)
    return nil
}

func (w *CompressionWorker) handleCleanup(ctx context.Context, t *asynq.Task) error {
    if err := w.service.CleanupTasks(ctx); err != nil {
        w.logger.Error("Cleanup failed", logger.Error(err))
        return err
    }
    return nil
}

// writeResult 写入 asynq 任务结果
func (w *CompressionWorker) writeResult(t *asynq.Task, v interface{}) {
    rw := t.ResultWriter()
    if rw == nil {
        return
    }
    data, err := json.Marshal(v)
    if err != nil {
        w.logger.Error("Failed to marshal task result", logger.Error(err))
        return
    }
    if _, err := rw.Write(data); err != nil {
        w.logger.Error("Failed to write task result", logger.Error(err))
    }
}

// Retryable reports whether running the task again could succeed. Bad
// input and cancellation are final.
func Retryable(err error) bool {
    switch {
    case errors.Is(err, compress.ErrParse),
        errors.Is(err, compress.ErrInvalidRequest),
        errors.Is(err, context.Canceled):
        return false
    }
    return true
}

func (w *CompressionWorker) Start(ctx context.Context) error {
    if err := w.server.Start(w.mux); err != nil {
        return fmt.Errorf("failed to start worker server: %w", err)
    }
    if w.scheduler != nil {
        if err := w.scheduler.Start(); err != nil {
            w.server.Shutdown()
            return fmt.Errorf("failed to start scheduler: %w", err)
        }
    }

    go func() {
        select {
        case <-ctx.Done():
            w.Stop()
        case <-w.stopChan:
        }
    }()

    return nil
}
