package objectstore

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestS3(t *testing.T) *S3 {
	t.Helper()
	store, err := NewS3(context.Background(), S3Config{
		Region:          "us-east-1",
		Bucket:          "media",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		Endpoint:        "http://localhost:9000",
		UsePathStyle:    true,
	}, zerolog.Nop())
	require.NoError(t, err)
	return store
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{}, zerolog.Nop())
	require.Error(t, err)
}

func TestS3_PresignPathStyle(t *testing.T) {
	store := newTestS3(t)

	raw, err := store.PresignGetURL(context.Background(), "abc.mp4", 10*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/media/abc.mp4", u.Path)
	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
}

func TestS3_PresignPart(t *testing.T) {
	store := newTestS3(t)

	raw, err := store.PresignPartUploadURL(context.Background(), "abc.mp4", "upload-1", 4, time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "4", u.Query().Get("partNumber"))
	assert.Equal(t, "upload-1", u.Query().Get("uploadId"))
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{code: "NoSuchUpload", want: ErrUploadNotFound},
		{code: "NoSuchKey", want: ErrNotFound},
		{code: "InvalidPartOrder", want: ErrInvalidPart},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			apiErr := &smithy.GenericAPIError{Code: tt.code, Message: "boom"}
			err := wrapError("complete-multipart", "k", apiErr)

			assert.ErrorIs(t, err, tt.want)

			var storeErr *Error
			require.True(t, errors.As(err, &storeErr))
			assert.Equal(t, tt.code, storeErr.Code)
			assert.True(t, strings.Contains(err.Error(), "complete-multipart"))
		})
	}
}

func TestWrapError_PlainError(t *testing.T) {
	err := wrapError("put-stream", "k", errors.New("connection reset"))

	var storeErr *Error
	require.True(t, errors.As(err, &storeErr))
	assert.Empty(t, storeErr.Code)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestTrimETag(t *testing.T) {
	assert.Equal(t, "abc", trimETag(`"abc"`))
	assert.Equal(t, "abc", trimETag("abc"))
}
