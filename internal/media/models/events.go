package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/romariotrain/media-pipeline/internal/events"
)

type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	AggregateID() uuid.UUID
	OccurredAt() time.Time
	Topic() string
	PartitionKey() string
}

type ContentStatusChanged struct {
	eventID    uuid.UUID
	contentID  uuid.UUID
	objectKey  string
	from       Status
	to         Status
	occurredAt time.Time
}

func NewContentStatusChanged(c *Content, from Status, at time.Time) *ContentStatusChanged {
	return &ContentStatusChanged{
		eventID:    uuid.New(),
		contentID:  c.ID,
		objectKey:  c.ObjectKey,
		from:       from,
		to:         c.Status,
		occurredAt: at,
	}
}

func (e *ContentStatusChanged) EventID() uuid.UUID     { return e.eventID }
func (e *ContentStatusChanged) EventType() string      { return "ContentStatusChanged" }
func (e *ContentStatusChanged) AggregateID() uuid.UUID { return e.contentID }
func (e *ContentStatusChanged) OccurredAt() time.Time  { return e.occurredAt }
func (e *ContentStatusChanged) Topic() string          { return events.TopicContentStatusChanged }
func (e *ContentStatusChanged) PartitionKey() string   { return e.contentID.String() }

func (e *ContentStatusChanged) From() Status { return e.from }
func (e *ContentStatusChanged) To() Status   { return e.to }

func (e *ContentStatusChanged) MarshalJSON() ([]byte, error) {
	return json.Marshal(events.ContentStatusChanged{
		ContentID:  e.contentID.String(),
		ObjectKey:  e.objectKey,
		OldStatus:  string(e.from),
		NewStatus:  string(e.to),
		OccurredAt: e.occurredAt,
	})
}

// TranscodeRequested asks the processing worker for renditions of a video.
type TranscodeRequested struct {
	eventID     uuid.UUID
	contentID   uuid.UUID
	objectKey   string
	requestedBy string
	occurredAt  time.Time
}

func NewTranscodeRequested(c *Content, requestedBy string, at time.Time) *TranscodeRequested {
	return &TranscodeRequested{
		eventID:     uuid.New(),
		contentID:   c.ID,
		objectKey:   c.ObjectKey,
		requestedBy: requestedBy,
		occurredAt:  at,
	}
}

func (e *TranscodeRequested) EventID() uuid.UUID     { return e.eventID }
func (e *TranscodeRequested) EventType() string      { return "TranscodeRequested" }
func (e *TranscodeRequested) AggregateID() uuid.UUID { return e.contentID }
func (e *TranscodeRequested) OccurredAt() time.Time  { return e.occurredAt }
func (e *TranscodeRequested) Topic() string          { return events.TopicTranscodeRequests }
func (e *TranscodeRequested) PartitionKey() string   { return e.contentID.String() }

func (e *TranscodeRequested) MarshalJSON() ([]byte, error) {
	return json.Marshal(events.TranscodeRequest{
		ContentID:   e.contentID.String(),
		ObjectKey:   e.objectKey,
		RequestedAt: e.occurredAt,
		RequestedBy: e.requestedBy,
	})
}

// OutboxRecord is a persisted event waiting to be relayed to the broker.
type OutboxRecord struct {
	ID           int64           `db:"id"`
	EventID      string          `db:"event_id"`
	EventType    string          `db:"event_type"`
	AggregateID  string          `db:"aggregate_id"`
	Topic        string          `db:"topic"`
	PartitionKey string          `db:"partition_key"`
	Payload      json.RawMessage `db:"payload"`
	OccurredAt   time.Time       `db:"occurred_at"`
	ProcessedAt  *time.Time      `db:"processed_at"`
}

func NewOutboxRecord(e DomainEvent) (OutboxRecord, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return OutboxRecord{}, err
	}
	return OutboxRecord{
		EventID:      e.EventID().String(),
		EventType:    e.EventType(),
		AggregateID:  e.AggregateID().String(),
		Topic:        e.Topic(),
		PartitionKey: e.PartitionKey(),
		Payload:      payload,
		OccurredAt:   e.OccurredAt(),
	}, nil
}
