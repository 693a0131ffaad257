package httpapi

import (
	"time"

	"github.com/google/uuid"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

type CreateContentRequest struct {
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
}

type ContentResponse struct {
	ID         uuid.UUID          `json:"id"`
	Kind       models.ContentKind `json:"kind"`
	ObjectKey  string             `json:"objectKey"`
	Status     string             `json:"status"`
	Renditions models.Renditions  `json:"renditions"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

type ListContentsResponse struct {
	Items  []ContentResponse `json:"items"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

type PresignedURLResponse struct {
	URL       string    `json:"url"`
	ObjectKey string    `json:"objectKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type CreateMultipartUploadRequest struct {
	ObjectName  string `json:"objectName"`
	ContentType string `json:"contentType,omitempty"`
}

type MultipartUploadResponse struct {
	UploadID   string `json:"uploadId"`
	ObjectName string `json:"objectName"`
}

type PartDTO struct {
	PartNumber int32  `json:"partNumber"`
	ETag       string `json:"etag"`
}

type CompleteMultipartUploadRequest struct {
	UploadID   string    `json:"uploadId"`
	ObjectName string    `json:"objectName"`
	Parts      []PartDTO `json:"parts"`
}

type CompleteMultipartUploadResponse struct {
	ObjectName string `json:"objectName"`
	ETag       string `json:"etag"`
	VersionID  string `json:"versionId,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func toContentResponse(c *models.Content) ContentResponse {
	renditions := c.Renditions
	if renditions == nil {
		renditions = models.Renditions{}
	}
	return ContentResponse{
		ID:         c.ID,
		Kind:       c.Kind,
		ObjectKey:  c.ObjectKey,
		Status:     string(c.Status),
		Renditions: renditions,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}
