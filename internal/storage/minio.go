package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig locates the bucket holding papers.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

// MinIOStore implements Store on a MinIO (or any S3-compatible) bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
	log    *slog.Logger
}

// NewMinIOStore connects to the endpoint and creates the bucket if needed.
func NewMinIOStore(ctx context.Context, cfg MinIOConfig, log *slog.Logger) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, &StorageError{Op: "connect", Err: err}
	}
	s := &MinIOStore{client: client, bucket: cfg.Bucket, log: log}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinIOStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return &StorageError{Op: "bucket exists", Object: s.bucket, Err: err}
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return &StorageError{Op: "make bucket", Object: s.bucket, Err: err}
	}
	s.log.Info("created bucket", "bucket", s.bucket)
	return nil
}

// Bucket returns the bucket name.
func (s *MinIOStore) Bucket() string {
	return s.bucket
}

func (s *MinIOStore) Put(ctx context.Context, name string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = ContentTypeFor(name)
	}
	_, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return s.wrap("put", name, err)
	}
	s.log.Debug("stored object", "object", name, "bytes", len(data))
	return nil
}

func (s *MinIOStore) Get(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrap("get", name, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.wrap("get", name, err)
	}
	return data, nil
}

func (s *MinIOStore) Stat(ctx context.Context, name string) (ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, s.wrap("stat", name, err)
	}
	return toObjectInfo(info), nil
}

func (s *MinIOStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, s.wrap("list", prefix, obj.Err)
		}
		out = append(out, toObjectInfo(obj))
	}
	return out, nil
}

func (s *MinIOStore) Delete(ctx context.Context, name string) error {
	if _, err := s.Stat(ctx, name); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return s.wrap("delete", name, err)
	}
	return nil
}

func (s *MinIOStore) PresignGet(ctx context.Context, name string, expiry time.Duration) (string, error) {
	if _, err := s.Stat(ctx, name); err != nil {
		return "", err
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, name, expiry, nil)
	if err != nil {
		return "", s.wrap("presign", name, err)
	}
	return u.String(), nil
}

// Rename copies oldName to newName server-side and removes the original.
func (s *MinIOStore) Rename(ctx context.Context, oldName, newName string) error {
	if oldName == newName {
		return nil
	}
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: newName},
		minio.CopySrcOptions{Bucket: s.bucket, Object: oldName},
	)
	if err != nil {
		return s.wrap("rename", oldName, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, oldName, minio.RemoveObjectOptions{}); err != nil {
		return s.wrap("rename", oldName, fmt.Errorf("remove source after copy: %w", err))
	}
	return nil
}

func (s *MinIOStore) wrap(op, name string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject":
		return &StorageError{Op: op, Object: name, Err: ErrObjectNotFound}
	}
	return &StorageError{Op: op, Object: name, Err: err}
}

func toObjectInfo(info minio.ObjectInfo) ObjectInfo {
	return ObjectInfo{
		Name:         info.Key,
		Size:         info.Size,
		LastModified: info.LastModified,
		ContentType:  info.ContentType,
		ETag:         info.ETag,
	}
}
