package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/media-pipeline/internal/events"
	"github.com/romariotrain/media-pipeline/internal/media/models"
)

func newContent(key string, kind models.ContentKind, created time.Time) *models.Content {
	return &models.Content{
		ID:        uuid.New(),
		Kind:      kind,
		ObjectKey: key,
		Status:    models.UploadedStatus,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestMemoryRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	c := newContent("a.mp4", models.KindVideo, time.Now())

	require.NoError(t, repo.Create(ctx, c))

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	got, err = repo.GetByObjectKey(ctx, "a.mp4")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	got.Status = models.ReadyStatus
	again, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadedStatus, again.Status, "stored value must not be shared")
}

func TestMemoryRepository_CreateErrors(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	c := newContent("a.mp4", models.KindVideo, time.Now())
	require.NoError(t, repo.Create(ctx, c))

	assert.ErrorIs(t, repo.Create(ctx, nil), models.ErrInvalidArgument)
	assert.ErrorIs(t, repo.Create(ctx, &models.Content{ObjectKey: "x"}), models.ErrInvalidArgument)
	assert.ErrorIs(t, repo.Create(ctx, c), models.ErrConflict)
	assert.ErrorIs(t, repo.Create(ctx, newContent("a.mp4", models.KindImage, time.Now())), models.ErrConflict)

	_, err := repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = repo.GetByObjectKey(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = repo.GetByID(cancelled, c.ID)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	video := newContent("v.mp4", models.KindVideo, base)
	image := newContent("i.png", models.KindImage, base.Add(time.Minute))
	doc := newContent("d.pdf", models.KindPdf, base.Add(2*time.Minute))
	doc.Status = models.ReadyStatus
	for _, c := range []*models.Content{video, image, doc} {
		require.NoError(t, repo.Create(ctx, c))
	}

	all, err := repo.List(ctx, models.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"d.pdf", "i.png", "v.mp4"}, []string{all[0].ObjectKey, all[1].ObjectKey, all[2].ObjectKey})

	videos, err := repo.List(ctx, models.ListFilter{Kind: models.KindVideo})
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, video.ID, videos[0].ID)

	ready, err := repo.List(ctx, models.ListFilter{Status: models.ReadyStatus})
	require.NoError(t, err)
	require.Len(t, ready, 1)

	page, err := repo.List(ctx, models.ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "i.png", page[0].ObjectKey)

	empty, err := repo.List(ctx, models.ListFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryRepository_UpdateWritesOutbox(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	c := newContent("a.mp4", models.KindVideo, time.Now())
	require.NoError(t, repo.Create(ctx, c, models.NewTranscodeRequested(c, "media-service", time.Now())))

	c.Status = models.ProcessingStatus
	require.NoError(t, repo.Update(ctx, c, models.NewContentStatusChanged(c, models.UploadedStatus, time.Now())))

	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, events.TopicTranscodeRequests, pending[0].Topic)
	assert.Equal(t, c.ID.String(), pending[0].PartitionKey)
	assert.Equal(t, events.TopicContentStatusChanged, pending[1].Topic)
	assert.Less(t, pending[0].ID, pending[1].ID)

	require.NoError(t, repo.MarkProcessed(ctx, pending[0].ID))
	pending, err = repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ContentStatusChanged", pending[0].EventType)

	limited, err := repo.GetPending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	assert.ErrorIs(t, repo.MarkProcessed(ctx, 999), models.ErrNotFound)

	_, err = repo.GetPending(ctx, 0)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	assert.ErrorIs(t, repo.Update(ctx, newContent("b.mp4", models.KindVideo, time.Now())), models.ErrNotFound)
}
