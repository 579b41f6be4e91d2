package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"mediacore/config"
	"mediacore/logger"
	"mediacore/model"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioBlobStore serves blobs from a MinIO/S3 bucket using ranged GETs.
type MinioBlobStore struct {
	client *minio.Client
	bucket string
}

// NewMinioBlobStore 初始化 MinIO 客户端并确认存储桶存在
func NewMinioBlobStore(cfg *config.Config) (*MinioBlobStore, error) {
	logger.Info("正在连接 MinIO 服务器",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("region", cfg.MinioRegion),
		logger.String("bucket", cfg.MinioBucket))

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 只读访问，存储桶由上传流程创建
	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("存储桶 %s 不存在", cfg.MinioBucket)
	}

	logger.Info("MinIO 客户端初始化成功", logger.String("bucket", cfg.MinioBucket))
	return &MinioBlobStore{client: client, bucket: cfg.MinioBucket}, nil
}

// Bucket 返回存储桶名称
func (m *MinioBlobStore) Bucket() string {
	return m.bucket
}

func (m *MinioBlobStore) Size(ctx context.Context, name string) (int64, error) {
	key, err := cleanName(name)
	if err != nil {
		return 0, err
	}
	info, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, translateMinioError(key, err)
	}
	return info.Size, nil
}

func (m *MinioBlobStore) Open(ctx context.Context, name string, start, end int64) (io.ReadCloser, error) {
	if err := checkInterval(start, end); err != nil {
		return nil, err
	}
	key, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(start, end); err != nil {
		return nil, fmt.Errorf("set range on %q: %w", key, err)
	}
	obj, err := m.client.GetObject(ctx, m.bucket, key, opts)
	if err != nil {
		return nil, translateMinioError(key, err)
	}
	// GetObject 是惰性的，先发出请求，让对象在 Size 之后被删除的情况在写响应头之前暴露
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, translateMinioError(key, err)
	}
	return newExactReader(obj, end-start+1), nil
}

func translateMinioError(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("blob %q: %w", key, model.ErrNotFound)
	default:
		return fmt.Errorf("blob %q: %w: %w", key, model.ErrIOError, err)
	}
}
