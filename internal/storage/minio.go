package storage

import (
	"MedVault/config"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// MinioStore implements Store with a MinIO client.
type MinioStore struct {
	client     *minio.Client
	publicBase string
}

// NewMinioStore builds a Store from a MinIO client. publicBase prefixes public object URLs.
func NewMinioStore(client *minio.Client, publicBase string) *MinioStore {
	return &MinioStore{client: client, publicBase: strings.TrimRight(publicBase, "/")}
}

// PutObject uploads an object to MinIO.
func (s *MinioStore) PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts PutOptions) error {
	_, err := s.client.PutObject(ctx, bucket, object, reader, size, minio.PutObjectOptions{
		ContentType: opts.ContentType,
	})
	return err
}

// StatObject reads object metadata without fetching content.
func (s *MinioStore) StatObject(ctx context.Context, bucket, object string) (ObjectInfo, error) {
	stat, err := s.client.StatObject(ctx, bucket, object, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{
		ObjectName:  object,
		Size:        stat.Size,
		ContentType: stat.ContentType,
	}, nil
}

// RemoveObject deletes an object from MinIO.
func (s *MinioStore) RemoveObject(ctx context.Context, bucket, object string) error {
	return s.client.RemoveObject(ctx, bucket, object, minio.RemoveObjectOptions{})
}

// PresignedGetObject returns a presigned URL for downloading an object.
func (s *MinioStore) PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, bucket, object, expiry, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// PresignedGetObjectWithResponse returns a presigned URL with response headers.
func (s *MinioStore) PresignedGetObjectWithResponse(
	ctx context.Context,
	bucket,
	object string,
	expiry time.Duration,
	params map[string]string,
) (string, error) {
	values := url.Values{}
	for key, value := range params {
		if value == "" {
			continue
		}
		values.Set(key, value)
	}
	u, err := s.client.PresignedGetObject(ctx, bucket, object, expiry, values)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// PublicURL returns {publicBase}/{bucket}/{object} with each path segment escaped.
func (s *MinioStore) PublicURL(bucket, object string) string {
	return BuildPublicURL(s.publicBase, bucket, object)
}

func BuildPublicURL(base, bucket, object string) string {
	segments := strings.Split(object, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

// InitMinio creates the client from the platform parameters and makes sure the bucket exists.
// With placeholder parameters the store is still returned so the process keeps serving;
// every storage call then fails.
func InitMinio(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*MinioStore, error) {
	endpoint, secure, err := cfg.MinioEndpoint()
	if err != nil {
		return nil, err
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.PlatformKey, cfg.PlatformSecret, ""),
		Secure: secure,
		Region: cfg.StorageRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	store := NewMinioStore(client, cfg.PlatformURL)

	if !cfg.PlatformConfigured() {
		log.WithField("endpoint", endpoint).Error("object store uses placeholder configuration, storage calls will fail")
		return store, nil
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.BucketName, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.StorageRegion}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.BucketName, err)
		}
		log.WithField("bucket", cfg.BucketName).Info("bucket created")
	}
	return store, nil
}
