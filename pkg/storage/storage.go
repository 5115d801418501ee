package storage

import (
    "context"
    "fmt"
    "io"
    "io/fs"
    "time"

    "github.com/feichai0017/pdfshift/pkg/logger"
    "github.com/feichai0017/pdfshift/pkg/storage/memory"
    "github.com/feichai0017/pdfshift/pkg/storage/minio"
    "github.com/feichai0017/pdfshift/pkg/storage/s3"
)

// StorageType 定义存储类型
type StorageType string

const (
    StorageTypeS3     StorageType = "s3"
    StorageTypeMinio  StorageType = "minio"
    StorageTypeMemory StorageType = "memory"
)

// ErrNotFound is matched by every backend's missing-object error.
var ErrNotFound = fs.ErrNotExist

// Storage 接口定义
type Storage interface {
    // Store 存储文件
    Store(ctx context.Context, reader io.Reader, key string) (string, error)
    // Get 获取文件
    Get(ctx context.Context, key string) (io.ReadCloser, error)
    // Delete 删除文件
    Delete(ctx context.Context, key string) error
    // CleanupBefore 清理过期文件
    CleanupBefore(ctx context.Context, threshold time.Time) error
}

// NewStorage 创建存储实例的工厂方法
func NewStorage(storageType StorageType, logger logger.Logger) (Storage, error) {
    switch storageType {
    case StorageTypeS3:
        return s3.GetClient(logger)
    case StorageTypeMinio:
        return minio.GetClient(logger)
    case StorageTypeMemory:
        return memory.New(), nil
    default:
        return nil, fmt.Errorf("unsupported storage type: %s", storageType)
    }
}

// 对象键
func SourceKey(taskID string) string { return "sources/" + taskID + ".pdf" }
func ResultKey(taskID string) string { return "results/" + taskID + ".pdf" }
func ReportKey(taskID string) string { return "reports/" + taskID + ".json" }

// TaskKeys lists every object a task may own.
func TaskKeys(taskID string) []string {
    return []string{SourceKey(taskID), ResultKey(taskID), ReportKey(taskID)}
}

// ReadAll fetches key fully.
func ReadAll(ctx context.Context, s Storage, key string) ([]byte, error) {
    rc, err := s.Get(ctx, key)
    if err != nil {
        return nil, err
    }
    defer rc.Close()
    data, err := io.ReadAll(rc)
    if err != nil {
        return nil, fmt.Errorf("failed to read %s: %w", key, err)
    }
    return data, nil
}
