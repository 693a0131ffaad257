// Package events holds the message contracts exchanged over the broker.
package events

import (
	"encoding/json"
	"time"
)

const (
	TopicTranscodeRequests    = "video.processing.requests"
	TopicTranscodeCompleted   = "video.processing.completed"
	TopicContentStatusChanged = "content.status.changed"
)

// TranscodeRequest is keyed by ContentID.
type TranscodeRequest struct {
	ContentID   string    `json:"contentId"`
	ObjectKey   string    `json:"objectKey"`
	RequestedAt time.Time `json:"requestedAt"`
	RequestedBy string    `json:"requestedBy"`

	Metadata *RequestMetadata `json:"metadata,omitempty"`
}

// RequestMetadata is the nested form some producers use for the source key.
type RequestMetadata struct {
	ObjectKey string `json:"objectKey,omitempty"`
}

// SourceKey returns the object key, falling back to metadata.objectKey.
func (r TranscodeRequest) SourceKey() string {
	if r.ObjectKey != "" {
		return r.ObjectKey
	}
	if r.Metadata != nil {
		return r.Metadata.ObjectKey
	}
	return ""
}

// RenditionResult carries either ETag or Error, never both.
type RenditionResult struct {
	ResolutionName string `json:"resolutionName"`
	OutputKey      string `json:"outputKey"`
	ETag           string `json:"etag,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (r RenditionResult) Succeeded() bool {
	return r.Error == "" && r.ETag != ""
}

// TranscodeCompletion is keyed by ObjectKey. Results follow profile order.
type TranscodeCompletion struct {
	ContentID   string            `json:"contentId,omitempty"`
	ObjectKey   string            `json:"objectKey"`
	Results     []RenditionResult `json:"results"`
	CompletedAt time.Time         `json:"completedAt"`
	CompletedBy string            `json:"completedBy"`
}

func (c TranscodeCompletion) AnySucceeded() bool {
	for _, r := range c.Results {
		if r.Succeeded() {
			return true
		}
	}
	return false
}

// ContentStatusChanged is keyed by ContentID.
type ContentStatusChanged struct {
	ContentID  string    `json:"contentId"`
	ObjectKey  string    `json:"objectKey"`
	OldStatus  string    `json:"oldStatus"`
	NewStatus  string    `json:"newStatus"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Decode unmarshals a message value into v.
func Decode[T any](data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}
