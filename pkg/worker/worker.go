package worker

import (
    "context"
    "time"

    "github.com/hibiken/asynq"

    "github.com/feichai0017/pdfshift/pkg/logger"
)

type Worker interface {
    Start(ctx context.Context) error
    Stop() error
}

type Config struct {
    Redis           asynq.RedisClientOpt
    Concurrency     int
    Queues          map[string]int
    RetryDelay      time.Duration
    ShutdownTimeout time.Duration
    // CleanupSpec is the cron spec of the storage cleanup task; empty disables it.
    CleanupSpec string
}

// DefaultQueues 与 queue 包的优先级一致
func DefaultQueues() map[string]int {
    return map[string]int{
        "critical": 6,
        "default":  3,
        "low":      1,
    }
}

type BaseWorker struct {
    server    *asynq.Server
    scheduler *asynq.Scheduler
    mux       *asynq.ServeMux
    logger    logger.Logger
    stopChan  chan struct{}
}

func (w *BaseWorker) Stop() error {
    select {
    case <-w.stopChan:
        return nil
    default:
    }
    close(w.stopChan)
    if w.scheduler != nil {
        w.scheduler.Shutdown()
    }
    w.server.Shutdown()
    return nil
}
