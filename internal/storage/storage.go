// Package storage keeps papers and their translations in an S3-compatible
// object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrObjectNotFound is wrapped by StorageError when the object is missing.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ContentType  string    `json:"content_type,omitempty"`
	ETag         string    `json:"etag,omitempty"`
}

// Store is the object storage used by the downloader, the task workers and
// the HTTP API.
type Store interface {
	Put(ctx context.Context, name string, data []byte, contentType string) error
	Get(ctx context.Context, name string) ([]byte, error)
	Stat(ctx context.Context, name string) (ObjectInfo, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, name string) error
	PresignGet(ctx context.Context, name string, expiry time.Duration) (string, error)
	Rename(ctx context.Context, oldName, newName string) error
}

// StorageError reports a failed store operation.
type StorageError struct {
	Op     string
	Object string
	Err    error
}

func (e *StorageError) Error() string {
	if e.Object == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Object, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsNotFound reports whether err means the object does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}

// Exists reports whether name is present in s.
func Exists(ctx context.Context, s Store, name string) (bool, error) {
	_, err := s.Stat(ctx, name)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}
