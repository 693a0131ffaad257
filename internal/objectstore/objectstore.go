// Package objectstore issues signed URLs and performs multipart-upload
// primitives against a binary object store.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	ErrNotFound       = errors.New("object not found")
	ErrUploadNotFound = errors.New("multipart upload not found")
	ErrInvalidPart    = errors.New("invalid multipart part list")
)

// Store is the capability every storage backend provides. Exactly one
// implementation is wired per deployment; tests use Memory.
type Store interface {
	PresignPutURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignGetURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	InitiateMultipartUpload(ctx context.Context, key, contentType string) (string, error)
	PresignPartUploadURL(ctx context.Context, key, uploadID string, partNumber int32, ttl time.Duration) (string, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []Part) (UploadInfo, error)
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
	// PutStream uploads a body of unknown length.
	PutStream(ctx context.Context, key string, body io.Reader, contentType string) (UploadInfo, error)
}

// Part is a finished part of a multipart upload as the store expects it on completion.
type Part struct {
	PartNumber int32
	ETag       string
}

type UploadInfo struct {
	ETag      string `json:"etag"`
	VersionID string `json:"versionId,omitempty"`
}

// Error carries the failed operation and the backend error code when there is one.
type Error struct {
	Op   string
	Key  string
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("objectstore %s %s: %s: %v", e.Op, e.Key, e.Code, e.Err)
	}
	return fmt.Sprintf("objectstore %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
