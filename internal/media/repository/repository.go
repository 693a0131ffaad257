package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

// ContentRepository persists contents. Events passed to Create and Update are
// written to the outbox in the same transaction as the content row.
type ContentRepository interface {
	Create(ctx context.Context, c *models.Content, events ...models.DomainEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Content, error)
	GetByObjectKey(ctx context.Context, objectKey string) (*models.Content, error)
	List(ctx context.Context, filter models.ListFilter) ([]models.Content, error)
	Update(ctx context.Context, c *models.Content, events ...models.DomainEvent) error
}

type OutboxRepository interface {
	GetPending(ctx context.Context, limit int) ([]models.OutboxRecord, error)
	MarkProcessed(ctx context.Context, id int64) error
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// NormalizeFilter clamps the paging fields of a list filter.
func NormalizeFilter(f models.ListFilter) models.ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
