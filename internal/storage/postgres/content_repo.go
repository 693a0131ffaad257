package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/romariotrain/media-pipeline/internal/media/models"
	"github.com/romariotrain/media-pipeline/internal/media/repository"
)

const contentColumns = `id, kind, object_key, status, renditions, created_at, updated_at`

// ContentRepo stores contents and writes their events to the outbox in the
// same transaction.
type ContentRepo struct {
	db     *sqlx.DB
	outbox *OutboxRepo
}

func NewContentRepo(db *sqlx.DB) *ContentRepo {
	return &ContentRepo{db: db, outbox: NewOutboxRepo(db)}
}

func (r *ContentRepo) Create(ctx context.Context, c *models.Content, events ...models.DomainEvent) error {
	if c == nil || c.ID == uuid.Nil || c.ObjectKey == "" {
		return models.ErrInvalidArgument
	}

	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		const q = `
			INSERT INTO contents (` + contentColumns + `)
			VALUES (:id, :kind, :object_key, :status, :renditions, :created_at, :updated_at)
		`
		if _, err := tx.NamedExecContext(ctx, q, c); err != nil {
			if isUniqueViolation(err) {
				return models.ErrConflict
			}
			return fmt.Errorf("content create: %w", err)
		}
		return r.outbox.Add(ctx, tx, events...)
	})
}

func (r *ContentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	const q = `SELECT ` + contentColumns + ` FROM contents WHERE id = $1`

	var c models.Content
	if err := r.db.GetContext(ctx, &c, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("content get by id: %w", err)
	}
	return &c, nil
}

func (r *ContentRepo) GetByObjectKey(ctx context.Context, objectKey string) (*models.Content, error) {
	const q = `SELECT ` + contentColumns + ` FROM contents WHERE object_key = $1`

	var c models.Content
	if err := r.db.GetContext(ctx, &c, q, objectKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("content get by object key: %w", err)
	}
	return &c, nil
}

func (r *ContentRepo) List(ctx context.Context, filter models.ListFilter) ([]models.Content, error) {
	filter = repository.NormalizeFilter(filter)

	var status, kind any
	if filter.Status != "" {
		status = string(filter.Status)
	}
	if filter.Kind != 0 {
		kind = filter.Kind.String()
	}

	const q = `
		SELECT ` + contentColumns + `
		FROM contents
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR kind = $2)
		ORDER BY created_at DESC, object_key ASC
		LIMIT $3 OFFSET $4
	`

	out := []models.Content{}
	if err := r.db.SelectContext(ctx, &out, q, status, kind, filter.Limit, filter.Offset); err != nil {
		return nil, fmt.Errorf("content list: %w", err)
	}
	return out, nil
}

func (r *ContentRepo) Update(ctx context.Context, c *models.Content, events ...models.DomainEvent) error {
	if c == nil || c.ID == uuid.Nil {
		return models.ErrInvalidArgument
	}

	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		const q = `
			UPDATE contents
			SET status = :status, renditions = :renditions, updated_at = :updated_at
			WHERE id = :id AND object_key = :object_key
		`
		res, err := tx.NamedExecContext(ctx, q, c)
		if err != nil {
			return fmt.Errorf("content update: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("content update: %w", err)
		}
		if n == 0 {
			return models.ErrNotFound
		}
		return r.outbox.Add(ctx, tx, events...)
	})
}

func (r *ContentRepo) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
