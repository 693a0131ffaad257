package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// S3Config configures the S3-compatible backend (AWS S3, MinIO).
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // custom endpoint for S3-compatible services
	UsePathStyle    bool
	CreateBucket    bool

	// StreamPartSize is the buffer size used by PutStream for each uploaded chunk.
	StreamPartSize int64
}

type S3 struct {
	client    *s3.Client
	presigner *s3.PresignClient
	uploader  *manager.Uploader
	bucket    string
	region    string
	logger    zerolog.Logger
}

var _ Store = (*S3)(nil)

func NewS3(ctx context.Context, cfg S3Config, logger zerolog.Logger) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		}
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if cfg.StreamPartSize >= manager.MinUploadPartSize {
			u.PartSize = cfg.StreamPartSize
		}
	})

	store := &S3{
		client:    client,
		presigner: s3.NewPresignClient(client),
		uploader:  uploader,
		bucket:    cfg.Bucket,
		region:    cfg.Region,
		logger:    logger.With().Str("component", "objectstore").Str("bucket", cfg.Bucket).Logger(),
	}

	if cfg.CreateBucket {
		if err := store.createBucketIfNotExists(ctx); err != nil {
			return nil, err
		}
	}

	return store, nil
}

func (s *S3) createBucketIfNotExists(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return wrapError("head-bucket", s.bucket, err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}

	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		code := apiErrorCode(err)
		if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return wrapError("create-bucket", s.bucket, err)
	}

	s.logger.Info().Msg("bucket created")
	return nil
}

func (s *S3) PresignPutURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", wrapError("presign-put", key, err)
	}
	return req.URL, nil
}

func (s *S3) PresignGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", wrapError("presign-get", key, err)
	}
	return req.URL, nil
}

func (s *S3) InitiateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	out, err := s.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", wrapError("create-multipart", key, err)
	}
	return aws.ToString(out.UploadId), nil
}

func (s *S3) PresignPartUploadURL(ctx context.Context, key, uploadID string, partNumber int32, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", wrapError("presign-part", key, err)
	}
	return req.URL, nil
}

func (s *S3) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []Part) (UploadInfo, error) {
	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.PartNumber),
		}
	}

	out, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return UploadInfo{}, wrapError("complete-multipart", key, err)
	}

	return UploadInfo{
		ETag:      trimETag(aws.ToString(out.ETag)),
		VersionID: aws.ToString(out.VersionId),
	}, nil
}

func (s *S3) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return wrapError("abort-multipart", key, err)
	}
	return nil
}

// PutStream relies on the transfer manager, which buffers one part at a time
// and therefore never needs the total content length.
func (s *S3) PutStream(ctx context.Context, key string, body io.Reader, contentType string) (UploadInfo, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	out, err := s.uploader.Upload(ctx, input)
	if err != nil {
		return UploadInfo{}, wrapError("put-stream", key, err)
	}

	return UploadInfo{
		ETag:      trimETag(aws.ToString(out.ETag)),
		VersionID: aws.ToString(out.VersionID),
	}, nil
}

func wrapError(op, key string, err error) error {
	code := apiErrorCode(err)
	switch code {
	case "NoSuchUpload":
		err = fmt.Errorf("%w: %w", ErrUploadNotFound, err)
	case "NoSuchKey", "NotFound":
		err = fmt.Errorf("%w: %w", ErrNotFound, err)
	case "InvalidPart", "InvalidPartOrder":
		err = fmt.Errorf("%w: %w", ErrInvalidPart, err)
	}
	return &Error{Op: op, Key: key, Code: code, Err: err}
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func trimETag(etag string) string {
	return strings.Trim(etag, "\"")
}
