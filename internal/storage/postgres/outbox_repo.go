package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

// outboxRow scans payload into []byte, which database/sql fills from both
// text and binary jsonb results.
type outboxRow struct {
	ID           int64      `db:"id"`
	EventID      string     `db:"event_id"`
	EventType    string     `db:"event_type"`
	AggregateID  string     `db:"aggregate_id"`
	Topic        string     `db:"topic"`
	PartitionKey string     `db:"partition_key"`
	Payload      []byte     `db:"payload"`
	OccurredAt   time.Time  `db:"occurred_at"`
	ProcessedAt  *time.Time `db:"processed_at"`
}

func (r outboxRow) record() models.OutboxRecord {
	return models.OutboxRecord{
		ID:           r.ID,
		EventID:      r.EventID,
		EventType:    r.EventType,
		AggregateID:  r.AggregateID,
		Topic:        r.Topic,
		PartitionKey: r.PartitionKey,
		Payload:      r.Payload,
		OccurredAt:   r.OccurredAt,
		ProcessedAt:  r.ProcessedAt,
	}
}

type OutboxRepo struct {
	db *sqlx.DB
}

func NewOutboxRepo(db *sqlx.DB) *OutboxRepo {
	return &OutboxRepo{db: db}
}

// Add writes events inside the caller's transaction.
func (r *OutboxRepo) Add(ctx context.Context, tx *sqlx.Tx, events ...models.DomainEvent) error {
	const query = `
		INSERT INTO outbox (event_id, event_type, aggregate_id, topic, partition_key, payload, occurred_at)
		VALUES (:event_id, :event_type, :aggregate_id, :topic, :partition_key, :payload, :occurred_at)
	`
	for _, event := range events {
		record, err := models.NewOutboxRecord(event)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", event.EventType(), err)
		}
		if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
			return fmt.Errorf("insert outbox: %w", err)
		}
	}
	return nil
}

func (r *OutboxRepo) GetPending(ctx context.Context, limit int) ([]models.OutboxRecord, error) {
	const q = `
		SELECT id, event_id, event_type, aggregate_id, topic, partition_key, payload, occurred_at, processed_at
		FROM outbox
		WHERE processed_at IS NULL
		ORDER BY id ASC
		LIMIT $1
	`

	var rows []outboxRow
	if err := r.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, fmt.Errorf("get pending: %w", err)
	}

	records := make([]models.OutboxRecord, len(rows))
	for i, row := range rows {
		records[i] = row.record()
	}
	return records, nil
}

func (r *OutboxRepo) MarkProcessed(ctx context.Context, id int64) error {
	const q = `
		UPDATE outbox
		SET processed_at = NOW()
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	return nil
}
