package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/romariotrain/media-pipeline/internal/events"
	"github.com/romariotrain/media-pipeline/internal/media/domain"
	"github.com/romariotrain/media-pipeline/internal/media/models"
	"github.com/romariotrain/media-pipeline/internal/media/repository"
)

// RequestedBy tags transcode requests emitted by the catalog.
const RequestedBy = "media-service"

type Service struct {
	repo  repository.ContentRepository
	clock func() time.Time
	idGen func() uuid.UUID
}

func New(repo repository.ContentRepository) *Service {
	return &Service{
		repo:  repo,
		clock: time.Now,
		idGen: uuid.New,
	}
}

// GetContent passes repository errors (e.g. models.ErrNotFound) through so the
// transport layer can map them to HTTP.
func (s *Service) GetContent(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	if id == uuid.Nil {
		return nil, models.ErrInvalidArgument
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListContents(ctx context.Context, filter models.ListFilter) ([]models.Content, error) {
	if filter.Kind != 0 && !filter.Kind.Valid() {
		return nil, models.ErrUnknownContentKind
	}
	return s.repo.List(ctx, repository.NormalizeFilter(filter))
}

// CreateContent registers an uploaded object. Videos go straight to processing
// and a transcode request is enqueued in the same write.
func (s *Service) CreateContent(ctx context.Context, kind models.ContentKind, objectKey string) (*models.Content, error) {
	if objectKey == "" {
		return nil, models.ErrInvalidArgument
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %d", models.ErrUnknownContentKind, int(kind))
	}

	now := s.clock()
	c := &models.Content{
		ID:         s.idGen(),
		Kind:       kind,
		ObjectKey:  objectKey,
		Status:     models.UploadedStatus,
		Renditions: models.Renditions{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var pending []models.DomainEvent
	if kind == models.KindVideo {
		c.Status = models.ProcessingStatus
		pending = append(pending,
			models.NewTranscodeRequested(c, RequestedBy, now),
			models.NewContentStatusChanged(c, models.UploadedStatus, now),
		)
	}

	if err := s.repo.Create(ctx, c, pending...); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyCompletion records the renditions of a finished transcode and moves the
// content to ready or failed. Completions for contents that are already
// terminal are ignored and the stored content is returned.
func (s *Service) ApplyCompletion(ctx context.Context, completion events.TranscodeCompletion) (*models.Content, error) {
	c, err := s.lookup(ctx, completion)
	if err != nil {
		return nil, err
	}
	if domain.Terminal(c.Status) {
		return c, nil
	}

	renditions := make(models.Renditions, 0, len(completion.Results))
	for _, r := range completion.Results {
		renditions = append(renditions, models.Rendition{
			Name:      r.ResolutionName,
			ObjectKey: r.OutputKey,
			ETag:      r.ETag,
			Error:     r.Error,
		})
	}

	to := domain.StatusFromResults(renditions)
	if err := domain.ValidateTransition(c.Status, to); err != nil {
		return nil, err
	}

	from := c.Status
	c.Status = to
	c.Renditions = renditions
	c.UpdatedAt = s.clock()

	if err := s.repo.Update(ctx, c, models.NewContentStatusChanged(c, from, c.UpdatedAt)); err != nil {
		return nil, fmt.Errorf("update content %s: %w", c.ID, err)
	}
	return c, nil
}

func (s *Service) lookup(ctx context.Context, completion events.TranscodeCompletion) (*models.Content, error) {
	if completion.ContentID != "" {
		if id, err := uuid.Parse(completion.ContentID); err == nil {
			return s.repo.GetByID(ctx, id)
		}
	}
	if completion.ObjectKey == "" {
		return nil, models.ErrInvalidArgument
	}
	return s.repo.GetByObjectKey(ctx, completion.ObjectKey)
}
