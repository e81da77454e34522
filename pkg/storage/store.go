package storage

import (
	"context"
	"errors"
	"time"
)

// ErrObjectExists is returned by Upload when Upsert is false and the key is taken.
var ErrObjectExists = errors.New("object already exists")

// Object describes a stored object returned by List.
type Object struct {
	Name         string
	Size         int64
	LastModified time.Time
}

// UploadOptions control how an object is written.
type UploadOptions struct {
	ContentType  string
	Upsert       bool
	CacheControl string
}

// ListOptions filter a List call. Search matches object names by prefix.
type ListOptions struct {
	Search string
	Limit  int
}

// ObjectStore is the object storage capability the pipeline depends on.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, key string, body []byte, opts UploadOptions) error
	PublicURL(bucket, key string) string
	List(ctx context.Context, bucket string, opts ListOptions) ([]Object, error)
	Delete(ctx context.Context, bucket, key string) error
}
