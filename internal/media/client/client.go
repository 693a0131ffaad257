// Package client talks to the catalog gateway over HTTP. It hands out signed
// upload URLs through the gateway so uploaders never hold store credentials.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/romariotrain/media-pipeline/internal/media/httpapi"
	"github.com/romariotrain/media-pipeline/internal/media/models"
	"github.com/romariotrain/media-pipeline/internal/objectstore"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is a non-2xx answer from the gateway.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway %s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return models.ErrNotFound
	case http.StatusConflict:
		return models.ErrConflict
	case http.StatusBadRequest:
		return models.ErrInvalidArgument
	default:
		return nil
	}
}

type Client struct {
	baseURL string
	http    HTTPDoer
}

func New(baseURL string, doer HTTPDoer) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: doer}
}

// PresignPutURL asks for a signed PUT on key. The gateway decides the TTL.
func (c *Client) PresignPutURL(ctx context.Context, key string, _ time.Duration) (string, error) {
	var resp httpapi.PresignedURLResponse
	q := url.Values{"objectKey": {key}}
	if err := c.do(ctx, http.MethodGet, "/upload/presigned?"+q.Encode(), nil, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *Client) PresignGetURL(ctx context.Context, key string, _ time.Duration) (string, error) {
	var resp httpapi.PresignedURLResponse
	if err := c.do(ctx, http.MethodGet, "/upload/presigned/"+(&url.URL{Path: key}).EscapedPath(), nil, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *Client) InitiateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	var resp httpapi.MultipartUploadResponse
	req := httpapi.CreateMultipartUploadRequest{ObjectName: key, ContentType: contentType}
	if err := c.do(ctx, http.MethodPost, "/upload/multipart", req, &resp); err != nil {
		return "", err
	}
	return resp.UploadID, nil
}

func (c *Client) PresignPartUploadURL(ctx context.Context, key, uploadID string, partNumber int32, _ time.Duration) (string, error) {
	var resp httpapi.PresignedURLResponse
	q := url.Values{
		"uploadId":   {uploadID},
		"objectName": {key},
		"part":       {strconv.Itoa(int(partNumber))},
	}
	if err := c.do(ctx, http.MethodGet, "/upload/multipart/presigned?"+q.Encode(), nil, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *Client) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []objectstore.Part) (objectstore.UploadInfo, error) {
	req := httpapi.CompleteMultipartUploadRequest{
		UploadID:   uploadID,
		ObjectName: key,
		Parts:      make([]httpapi.PartDTO, len(parts)),
	}
	for i, p := range parts {
		req.Parts[i] = httpapi.PartDTO{PartNumber: p.PartNumber, ETag: p.ETag}
	}

	var resp httpapi.CompleteMultipartUploadResponse
	if err := c.do(ctx, http.MethodPost, "/upload/multipart/complete", req, &resp); err != nil {
		return objectstore.UploadInfo{}, err
	}
	return objectstore.UploadInfo{ETag: resp.ETag, VersionID: resp.VersionID}, nil
}

func (c *Client) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	q := url.Values{"uploadId": {uploadID}, "objectName": {key}}
	return c.do(ctx, http.MethodDelete, "/upload/multipart?"+q.Encode(), nil, nil)
}

// CreateContent registers an uploaded object with the catalog.
func (c *Client) CreateContent(ctx context.Context, kind models.ContentKind, key string) (httpapi.ContentResponse, error) {
	var resp httpapi.ContentResponse
	req := httpapi.CreateContentRequest{Key: key, ContentType: kind.String()}
	if err := c.do(ctx, http.MethodPost, "/contents", req, &resp); err != nil {
		return httpapi.ContentResponse{}, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e httpapi.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
		return &StatusError{Method: method, Path: req.URL.Path, StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
