package minio

import (
    "context"
    "fmt"
    "io"
    "io/fs"
    "path"
    "time"

    "github.com/minio/minio-go/v7"
    "github.com/minio/minio-go/v7/pkg/credentials"

    cfg "github.com/feichai0017/pdfshift/config"
    "github.com/feichai0017/pdfshift/pkg/logger"
)

type MinioStorage struct {
    client     *minio.Client
    bucketName string
    logger     logger.Logger
}

var contentTypes = map[string]string{
    ".pdf":  "application/pdf",
    ".json": "application/json",
}

// Store implements Storage.Store
func (m *MinioStorage) Store(ctx context.Context, reader io.Reader, key string) (string, error) {
    opts := minio.PutObjectOptions{ContentType: contentTypes[path.Ext(key)]}
    _, err := m.client.PutObject(ctx, m.bucketName, key, reader, -1, opts)
    if err != nil {
        m.logger.Error("Failed to store file to MinIO",
            logger.String("bucket", m.bucketName),
            logger.String("key", key),
            logger.Error(err),
        )
        return "", fmt.Errorf("failed to store file: %w", err)
    }

    return key, nil
}

// Get implements Storage.Get
func (m *MinioStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
    obj, err := m.client.GetObject(ctx, m.bucketName, key, minio.GetObjectOptions{})
    if err != nil {
        return nil, m.getError(key, err)
    }

    // GetObject is lazy; Stat surfaces a missing key before the caller reads.
    if _, err := obj.Stat(); err != nil {
        obj.Close()
        return nil, m.getError(key, err)
    }

    return obj, nil
}

func (m *MinioStorage) getError(key string, err error) error {
    if minio.ToErrorResponse(err).Code == "NoSuchKey" {
        return fmt.Errorf("failed to get file %s: %w", key, fs.ErrNotExist)
    }
    m.logger.Error("Failed to get file from MinIO",
        logger.String("bucket", m.bucketName),
        logger.String("key", key),
        logger.Error(err),
    )
    return fmt.Errorf("failed to get file: %w", err)
}

// Delete implements Storage.Delete
func (m *MinioStorage) Delete(ctx context.Context, key string) error {
    err := m.client.RemoveObject(ctx, m.bucketName, key, minio.RemoveObjectOptions{})
    if err != nil {
        m.logger.Error("Failed to delete file from MinIO",
            logger.String("bucket", m.bucketName),
            logger.String("key", key),
            logger.Error(err),
        )
        return fmt.Errorf("failed to delete file: %w", err)
    }

    return nil
}

// 只清理本服务写入的前缀
var cleanupPrefixes = []string{"sources/", "results/", "reports/"}

// CleanupBefore implements Storage.CleanupBefore
func (m *MinioStorage) CleanupBefore(ctx context.Context, threshold time.Time) error {
    deleted := 0
    for _, prefix := range cleanupPrefixes {
        opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
        for obj := range m.client.ListObjects(ctx, m.bucketName, opts) {
            if obj.Err != nil {
                m.logger.Error("Error listing objects",
                    logger.String("bucket", m.bucketName),
                    logger.String("prefix", prefix),
                    logger.Error(obj.Err),
                )
                continue
            }
            if !obj.LastModified.Before(threshold) {
                continue
            }
            if err := m.Delete(ctx, obj.Key); err != nil {
                continue
            }
            deleted++
            m.logger.Debug("Deleted expired object",
                logger.String("key", obj.Key),
                logger.Time("lastModified", obj.LastModified),
            )
        }
    }

    m.logger.Info("Storage cleanup finished",
        logger.String("bucket", m.bucketName),
        logger.Int("deleted", deleted),
    )
    return ctx.Err()
}

func NewMinioStorage(log logger.Logger) (*MinioStorage, error) {
    minioConfig := cfg.GetMinioConfig()
    client, err := minio.New(minioConfig.Endpoint, &minio.Options{
        Creds:  credentials.NewStaticV4(minioConfig.AccessKey, minioConfig.SecretKey, ""),
        Secure: minioConfig.UseSSL,
        Region: minioConfig.Region,
    })
    if err != nil {
        return nil, fmt.Errorf("failed to create MinIO client: %w", err)
    }

    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()

    exists, err := client.BucketExists(ctx, minioConfig.BucketName)
    if err != nil {
        return nil, fmt.Errorf("failed to check bucket existence: %w", err)
    }

    if !exists {
        err = client.MakeBucket(ctx, minioConfig.BucketName, minio.MakeBucketOptions{
            Region: minioConfig.Region,
        })
        if err != nil {
            return nil, fmt.Errorf("failed to create bucket: %w", err)
        }
        log.Info("Created bucket", logger.String("bucket", minioConfig.BucketName))
    }

    return &MinioStorage{
        client:     client,
        bucketName: minioConfig.BucketName,
        logger:     log,
    }, nil
}

func GetClient(logger logger.Logger) (*MinioStorage, error) {
    return NewMinioStorage(logger)
}
