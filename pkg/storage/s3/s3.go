package s3

import (
    "context"
    "errors"
    "fmt"
    "io"
    "io/fs"
    "path"
    "time"

    "github.com/aws/aws-sdk-go-v2/aws"
    "github.com/aws/aws-sdk-go-v2/config"
    "github.com/aws/aws-sdk-go-v2/credentials"
    "github.com/aws/aws-sdk-go-v2/service/s3"
    "github.com/aws/aws-sdk-go-v2/service/s3/types"

    cfg "github.com/feichai0017/pdfshift/config"
    "github.com/feichai0017/pdfshift/pkg/logger"
)

type S3Storage struct {
    client     *s3.Client
    bucketName string
    region     string
    logger     logger.Logger
}

var contentTypes = map[string]string{
    ".pdf":  "application/pdf",
    ".json": "application/json",
}

// Store 实现 Storage 接口的 Store 方法
func (s *S3Storage) Store(ctx context.Context, reader io.Reader, key string) (string, error) {
    input := &s3.PutObjectInput{
        Bucket: aws.String(s.bucketName),
        Key:    aws.String(key),
        Body:   reader,
    }
    if ct, ok := contentTypes[path.Ext(key)]; ok {
        input.ContentType = aws.String(ct)
    }

    _, err := s.client.PutObject(ctx, input)
    if err != nil {
        s.logger.Error("Failed to store file to S3",
            logger.String("bucket", s.bucketName),
            logger.String("key", key),
            logger.Error(err),
        )
        return "", fmt.Errorf("failed to store file: %w", err)
    }

    return key, nil
}

// Get 实现 Storage 接口的 Get 方法
func (s *S3Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
    input := &s3.GetObjectInput{
        Bucket: aws.String(s.bucketName),
        Key:    aws.String(key),
    }

    result, err := s.client.GetObject(ctx, input)
    if err != nil {
        var nsk *types.NoSuchKey
        if errors.As(err, &nsk) {
            return nil, fmt.Errorf("failed to get file %s: %w", key, fs.ErrNotExist)
        }
        s.logger.Error("Failed to get file from S3",
            logger.String("bucket", s.bucketName),
            logger.String("key", key),
            logger.Error(err),
        )
        return nil, fmt.Errorf("failed to get file: %w", err)
    }

    return result.Body, nil
}

// Delete 实现 Storage 接口的 Delete 方法
func (s *S3Storage) Delete(ctx context.Context, key string) error {
    input := &s3.DeleteObjectInput{
        Bucket: aws.String(s.bucketName),
        Key:    aws.String(key),
    }

    _, err := s.client.DeleteObject(ctx, input)
    if err != nil {
        s.logger.Error("Failed to delete file from S3",
            logger.String("bucket", s.bucketName),
            logger.String("key", key),
            logger.Error(err),
        )
        return fmt.Errorf("failed to delete file: %w", err)
    }

    return nil
}

var cleanupPrefixes = []string{"sources/", "results/", "reports/"}

// CleanupBefore deletes objects under the service prefixes last modified
// before threshold. Failed deletes are logged by Delete and skipped.
func (s *S3Storage) CleanupBefore(ctx context.Context, threshold time.Time) error {
    deleted := 0
    for _, prefix := range cleanupPrefixes {
        paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
            Bucket: aws.String(s.bucketName),
            Prefix: aws.String(prefix),
        })
        for paginator.HasMorePages() {
            page, err := paginator.NextPage(ctx)
            if err != nil {
                return fmt.Errorf("failed to list %s in %s: %w", prefix, s.bucketName, err)
            }
            for _, obj := range page.Contents {
                if obj.LastModified == nil || !obj.LastModified.Before(threshold) {
                    continue
                }
                if s.Delete(ctx, aws.ToString(obj.Key)) == nil {
                    deleted++
                }
            }
        }
    }

    s.logger.Info("Storage cleanup finished",
        logger.String("bucket", s.bucketName),
        logger.Int("deleted", deleted),
    )
    return nil
}

func NewS3Storage(log logger.Logger) (*S3Storage, error) {
    s3Config := cfg.GetS3Config()

    log.Info("S3 Configuration",
        logger.String("bucket", s3Config.BucketName),
        logger.String("region", s3Config.Region),
        logger.String("endpoint", s3Config.Endpoint),
    )

    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()

    // AWS SDK 配置
    awsCfg, err := config.LoadDefaultConfig(ctx,
        config.WithRegion(s3Config.Region),
        config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
            s3Config.AccessKey,
            s3Config.SecretKey,
            "",
        )),
    )
    if err != nil {
        return nil, fmt.Errorf("failed to load AWS config: %w", err)
    }

    client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
        // S3 兼容服务需要自定义 endpoint
        if s3Config.Endpoint != "" {
            o.BaseEndpoint = aws.String(s3Config.Endpoint)
            o.UsePathStyle = true
        }
    })

    // 验证 bucket 是否存在
    _, err = client.HeadBucket(ctx, &s3.HeadBucketInput{
        Bucket: aws.String(s3Config.BucketName),
    })
    if err != nil {
        return nil, fmt.Errorf("failed to verify bucket existence: %w", err)
    }

    return &S3Storage{
        client:     client,
        bucketName: s3Config.BucketName,
        region:     s3Config.Region,
        logger:     log,
    }, nil
}

func GetClient(logger logger.Logger) (*S3Storage, error) {
    return NewS3Storage(logger)
}
