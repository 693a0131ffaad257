package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

type StoreMock struct {
	mock.Mock
}

func (m *StoreMock) Create(ctx context.Context, c *models.Content, events ...models.DomainEvent) error {
	args := m.Called(ctx, c, events)
	return args.Error(0)
}

func (m *StoreMock) GetByID(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.Content), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) GetByObjectKey(ctx context.Context, objectKey string) (*models.Content, error) {
	args := m.Called(ctx, objectKey)
	if v := args.Get(0); v != nil {
		return v.(*models.Content), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) List(ctx context.Context, filter models.ListFilter) ([]models.Content, error) {
	args := m.Called(ctx, filter)
	if v := args.Get(0); v != nil {
		return v.([]models.Content), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) Update(ctx context.Context, c *models.Content, events ...models.DomainEvent) error {
	args := m.Called(ctx, c, events)
	return args.Error(0)
}
