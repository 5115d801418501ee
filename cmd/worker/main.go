package main

import (
    "context"
    "flag"
    "os"
    "os/signal"
    "syscall"

    "github.com/feichai0017/pdfshift/config"
    "github.com/feichai0017/pdfshift/internal/service/document"
    "github.com/feichai0017/pdfshift/pkg/logger"
    "github.com/feichai0017/pdfshift/pkg/queue"
    "github.com/feichai0017/pdfshift/pkg/worker"
)

func main() {
    configPath := flag.String("config", "", "path to config.yaml")
    flag.Parse()

    conf, err := config.Load(*configPath)
    if err != nil {
        panic(err)
    }

    // 初始化日志
    log, err := logger.NewLogger(
        logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
        logger.FromConfig(conf.Logger),
        logger.WithInitialField("service", "pdfshift-worker"),
    )
    if err != nil {
        panic(err)
    }
    defer log.Sync()

    // 创建压缩服务
    svc, err := document.GetService(conf, log)
    if err != nil {
        log.Error("Failed to create compression service", logger.Error(err))
        os.Exit(1)
    }

    // 创建 worker 配置
    qc := queue.ConfigFromEnv()
    workerCfg := &worker.Config{
        Redis:       qc.RedisClientOpt(),
        Concurrency: qc.Concurrency,
        Queues:      worker.DefaultQueues(),
        RetryDelay:  qc.RetryDelay,
        CleanupSpec: "@hourly",
    }

    // 创建 worker
    compressionWorker, err := worker.NewCompressionWorker(workerCfg, svc, log)
    if err != nil {
        log.Error("Failed to create compression worker", logger.Error(err))
        os.Exit(1)
    }

    // 创建上下文和取消函数
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // 启动 worker
    if err := compressionWorker.Start(ctx); err != nil {
        log.Error("Failed to start worker", logger.Error(err))
        os.Exit(1)
    }
    log.Info("Worker started", logger.Int("concurrency", qc.Concurrency))

    // 等待中断信号
    sigChan := make(chan os.Signal, 1)
    signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
    <-sigChan

    // 优雅关闭
    log.Info("Shutting down worker...")
    compressionWorker.Stop()
    log.Info("Worker stopped")
}
