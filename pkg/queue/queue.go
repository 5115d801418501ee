// pkg/queue/queue.go
package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    "github.com/hibiken/asynq"
    "github.com/redis/go-redis/v9"

    cfg "github.com/feichai0017/pdfshift/config"
)

// TaskType 定义任务类型
const (
    TaskTypePDFCompress = "pdf:compress"
)

// 任务状态
const (
    StatusPending   = "pending"
    StatusRunning   = "running"
    StatusCompleted = "completed"
    StatusFailed    = "failed"
    StatusCancelled = "cancelled"
)

var queueNames = []string{"critical", "default", "low"}

var ErrTaskNotFound = errors.New("task not found")

// Queue 接口定义
type Queue interface {
    Enqueue(ctx context.Context, task *Task) error
    GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
    CancelTask(ctx context.Context, taskID string) error
    SaveStatus(ctx context.Context, status *TaskStatus) error
    DeleteStatus(ctx context.Context, taskID string) error
}

// Task 定义任务结构
type Task struct {
    ID        string            `json:"id"`
    Type      string            `json:"type"`
    Priority  int               `json:"priority"`
    Payload   CompressPayload   `json:"payload"`
    Metadata  map[string]string `json:"metadata"`
    CreatedAt time.Time         `json:"createdAt"`
}

// CompressPayload 压缩任务参数，源文件在存储中
type CompressPayload struct {
    SourceKey  string  `json:"sourceKey"`
    Filename   string  `json:"filename"`
    TargetSize int64   `json:"targetSize"`
    MinQuality float64 `json:"minQuality"`
    MaxQuality float64 `json:"maxQuality"`
}

// TaskStatus 定义任务状态
type TaskStatus struct {
    TaskID         string    `json:"taskId"`
    Status         string    `json:"status"`
    Progress       float64   `json:"progress"`
    Stage          string    `json:"stage,omitempty"`
    Error          string    `json:"error,omitempty"`
    Filename       string    `json:"filename,omitempty"`
    OriginalSize   int64     `json:"originalSize,omitempty"`
    CompressedSize int64     `json:"compressedSize,omitempty"`
    TargetReached  bool      `json:"targetReached"`
    StartedAt      time.Time `json:"startedAt"`
    UpdatedAt      time.Time `json:"updatedAt"`
    FinishedAt     time.Time `json:"finishedAt,omitempty"`
}

// Finished reports a terminal status.
func (s *TaskStatus) Finished() bool {
    switch s.Status {
    case StatusCompleted, StatusFailed, StatusCancelled:
        return true
    }
    return false
}

// StatusKey 任务状态在 Redis 中的键
func StatusKey(taskID string) string {
    return fmt.Sprintf("task_status:%s", taskID)
}

// AsynqQueue 实现
type AsynqQueue struct {
    client    *asynq.Client
    inspector *asynq.Inspector
    redis     *redis.Client
    cfg       *QueueConfig
}

// QueueConfig 定义队列配置
type QueueConfig struct {
    RedisAddr      string
    RedisPassword  string
    RedisDB        int
    MaxRetries     int
    RetryDelay     time.Duration
    ProcessTimeout time.Duration
    StatusTTL      time.Duration
    Concurrency    int
}

// ConfigFromEnv 从 Redis 配置构建队列配置
func ConfigFromEnv() *QueueConfig {
    rc := cfg.GetRedisConfig()
    return &QueueConfig{
        RedisAddr:      rc.Addr,
        RedisPassword:  rc.Password,
        RedisDB:        rc.DB,
        MaxRetries:     rc.MaxRetries,
        RetryDelay:     rc.RetryDelay,
        ProcessTimeout: rc.TaskTimeout,
        StatusTTL:      rc.StatusTTL,
        Concurrency:    rc.Concurrency,
    }
}

// RedisClientOpt asynq 连接参数
func (c *QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
    return asynq.RedisClientOpt{
        Addr:     c.RedisAddr,
        Password: c.RedisPassword,
        DB:       c.RedisDB,
    }
}

// GetQueue 获取队列实例
func GetQueue() (*AsynqQueue, error) {
    return NewAsynqQueue(ConfigFromEnv())
}

// NewAsynqQueue 创建新的队列实例
func NewAsynqQueue(qc *QueueConfig) (*AsynqQueue, error) {
    if qc.StatusTTL <= 0 {
        qc.StatusTTL = 24 * time.Hour
    }
    redisOpt := qc.RedisClientOpt()

    // 创建 Redis 客户端
    redisClient := redis.NewClient(&redis.Options{
        Addr:     qc.RedisAddr,
        Password: qc.RedisPassword,
        DB:       qc.RedisDB,
    })

    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := redisClient.Ping(ctx).Err(); err != nil {
        redisClient.Close()
        return nil, fmt.Errorf("failed to connect to redis at %s: %w", qc.RedisAddr, err)
    }

    return &AsynqQueue{
        client:    asynq.NewClient(redisOpt),
        inspector: asynq.NewInspector(redisOpt),
        redis:     redisClient,
        cfg:       qc,
    }, nil
}

// Enqueue 将任务加入队列
func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
    // 序列化整个任务
    payload, err := json.Marshal(task)
    if err != nil {
        return fmt.Errorf("failed to marshal task: %w", err)
    }

    // 设置任务选项
    opts := []asynq.Option{
        asynq.MaxRetry(q.cfg.MaxRetries),
        asynq.Timeout(q.cfg.ProcessTimeout),
        asynq.Retention(q.cfg.StatusTTL),
        asynq.TaskID(task.ID),
    }

    // 根据优先选择队列
    switch task.Priority {
    case 1:
        opts = append(opts, asynq.Queue("critical"))
    case 2:
        opts = append(opts, asynq.Queue("default"))
    default:
        opts = append(opts, asynq.Queue("low"))
    }

    // 创建并入队任务
    t := asynq.NewTask(task.Type, payload, opts...)
    info, err := q.client.EnqueueContext(ctx, t)
    if err != nil {
        return fmt.Errorf("failed to enqueue task: %w", err)
    }

    // 记录任务ID
    task.ID = info.ID

    return nil
}

// GetTaskStatus 获取任务状态
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
    // 首先尝试从 Redis 获取状态
    data, err := q.redis.Get(ctx, StatusKey(taskID)).Bytes()
    if err != nil && !errors.Is(err, redis.Nil) {
        return nil, fmt.Errorf("failed to get status from redis: %w", err)
    }

    if err == nil {
        var status TaskStatus
        if err := json.Unmarshal(data, &status); err != nil {
            return nil, fmt.Errorf("failed to unmarshal status: %w", err)
        }
        return &status, nil
    }

    // 如果 Redis 中没有，从所有队列中查找
    for _, queueName := range queueNames {
        info, err := q.inspector.GetTaskInfo(queueName, taskID)
        if err == nil {
            return convertAsynqStatus(info), nil
        }
    }

    return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

// CancelTask 取消任务；等待中的任务被删除，运行中的任务收到取消信号
func (q *AsynqQueue) CancelTask(ctx context.Context, taskID string) error {
    for _, queueName := range queueNames {
        info, err := q.inspector.GetTaskInfo(queueName, taskID)
        if err != nil {
            continue
        }
        if info.State == asynq.TaskStateActive {
            if err := q.inspector.CancelProcessing(taskID); err != nil {
                return fmt.Errorf("failed to cancel task: %w", err)
            }
            return nil
        }
        if err := q.inspector.DeleteTask(queueName, taskID); err != nil {
            return fmt.Errorf("failed to cancel task: %w", err)
        }
        return nil
    }

    return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

// SaveStatus 保存任务状态
func (q *AsynqQueue) SaveStatus(ctx context.Context, status *TaskStatus) error {
    status.UpdatedAt = time.Now()
    data, err := json.Marshal(status)
    if err != nil {
        return fmt.Errorf("failed to marshal status: %w", err)
    }

    if err := q.redis.Set(ctx, StatusKey(status.TaskID), data, q.cfg.StatusTTL).Err(); err != nil {
        return fmt.Errorf("failed to save status: %w", err)
    }

    return nil
}

// DeleteStatus 删除任务状态
func (q *AsynqQueue) DeleteStatus(ctx context.Context, taskID string) error {
    if err := q.redis.Del(ctx, StatusKey(taskID)).Err(); err != nil {
        return fmt.Errorf("failed to delete status: %w", err)
    }
    return nil
}

func (q *AsynqQueue) Close() error {
    return errors.Join(q.client.Close(), q.inspector.Close(), q.redis.Close())
}

// convertAsynqStatus 将 asynq 状态转换为 TaskStatus
func convertAsynqStatus(info *asynq.TaskInfo) *TaskStatus {
    status := &TaskStatus{
        TaskID:    info.ID,
        StartedAt: info.NextProcessAt,
        UpdatedAt: time.Now(),
    }

    switch info.State {
    case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateAggregating:
        status.Status = StatusPending
    case asynq.TaskStateActive:
        status.Status = StatusRunning
    case asynq.TaskStateRetry:
        status.Status = StatusPending
        status.Error = info.LastErr
    case asynq.TaskStateArchived:
        status.Status = StatusFailed
        status.Error = info.LastErr
        status.FinishedAt = info.LastFailedAt
    case asynq.TaskStateCompleted:
        status.Status = StatusCompleted
        status.Progress = 100
        status.FinishedAt = info.CompletedAt
    }

    return status
}
