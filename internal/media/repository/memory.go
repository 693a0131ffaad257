package repository

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

type MemoryRepository struct {
	mu     sync.RWMutex
	data   map[uuid.UUID]*models.Content
	byKey  map[string]uuid.UUID
	outbox []models.OutboxRecord
	nextID int64
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		data:  make(map[uuid.UUID]*models.Content),
		byKey: make(map[string]uuid.UUID),
		now:   time.Now,
	}
}

func (r *MemoryRepository) Create(ctx context.Context, c *models.Content, events ...models.DomainEvent) error {
	if c == nil || c.ID == uuid.Nil || c.ObjectKey == "" {
		return models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	records, err := toRecords(events)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data[c.ID]; exists {
		return models.ErrConflict
	}
	if _, exists := r.byKey[c.ObjectKey]; exists {
		return models.ErrConflict
	}

	r.data[c.ID] = cloneContent(c)
	r.byKey[c.ObjectKey] = c.ID
	r.appendOutbox(records)
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	if id == uuid.Nil {
		return nil, models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.data[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneContent(c), nil
}

func (r *MemoryRepository) GetByObjectKey(ctx context.Context, objectKey string) (*models.Content, error) {
	if objectKey == "" {
		return nil, models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[objectKey]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneContent(r.data[id]), nil
}

// List returns contents newest first.
func (r *MemoryRepository) List(ctx context.Context, filter models.ListFilter) ([]models.Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter = NormalizeFilter(filter)

	r.mu.RLock()
	out := make([]models.Content, 0, len(r.data))
	for _, c := range r.data {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.Kind != 0 && c.Kind != filter.Kind {
			continue
		}
		out = append(out, *cloneContent(c))
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.Content) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ObjectKey, b.ObjectKey)
	})

	if filter.Offset >= len(out) {
		return []models.Content{}, nil
	}
	out = out[filter.Offset:]
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) Update(ctx context.Context, c *models.Content, events ...models.DomainEvent) error {
	if c == nil || c.ID == uuid.Nil {
		return models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	records, err := toRecords(events)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.data[c.ID]
	if !ok {
		return models.ErrNotFound
	}
	if current.ObjectKey != c.ObjectKey {
		return models.ErrConflict
	}

	r.data[c.ID] = cloneContent(c)
	r.appendOutbox(records)
	return nil
}

func (r *MemoryRepository) GetPending(ctx context.Context, limit int) ([]models.OutboxRecord, error) {
	if limit <= 0 {
		return nil, models.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.OutboxRecord
	for _, rec := range r.outbox {
		if rec.ProcessedAt != nil {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepository) MarkProcessed(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.outbox {
		if r.outbox[i].ID != id {
			continue
		}
		if r.outbox[i].ProcessedAt == nil {
			now := r.now()
			r.outbox[i].ProcessedAt = &now
		}
		return nil
	}
	return models.ErrNotFound
}

// Outbox returns a copy of every outbox record, processed or not.
func (r *MemoryRepository) Outbox() []models.OutboxRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.outbox)
}

func (r *MemoryRepository) appendOutbox(records []models.OutboxRecord) {
	for _, rec := range records {
		r.nextID++
		rec.ID = r.nextID
		r.outbox = append(r.outbox, rec)
	}
}

func toRecords(events []models.DomainEvent) ([]models.OutboxRecord, error) {
	records := make([]models.OutboxRecord, 0, len(events))
	for _, e := range events {
		rec, err := models.NewOutboxRecord(e)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func cloneContent(c *models.Content) *models.Content {
	cp := *c
	cp.Renditions = slices.Clone(c.Renditions)
	return &cp
}
