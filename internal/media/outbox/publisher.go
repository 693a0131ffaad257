package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/romariotrain/media-pipeline/internal/media/repository"
)

// EventPublisher is satisfied by *kafka.Bus.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

// Publisher relays outbox records to the broker with at-least-once delivery.
type Publisher struct {
	outboxRepo repository.OutboxRepository
	producer   EventPublisher
	interval   time.Duration
	batchSize  int
	logger     zerolog.Logger
}

type PublisherConfig struct {
	OutboxRepo repository.OutboxRepository
	Producer   EventPublisher
	Interval   time.Duration
	BatchSize  int
	Logger     zerolog.Logger
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.OutboxRepo == nil {
		return nil, errors.New("outbox repository is required")
	}
	if cfg.Producer == nil {
		return nil, errors.New("event publisher is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got: %v", cfg.Interval)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got: %d", cfg.BatchSize)
	}

	return &Publisher{
		outboxRepo: cfg.OutboxRepo,
		producer:   cfg.Producer,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		logger:     cfg.Logger.With().Str("component", "outbox_publisher").Logger(),
	}, nil
}

// Start polls the outbox every interval until ctx is cancelled. A failed
// record stays pending and is retried on the next tick, so consumers must
// tolerate duplicates.
func (p *Publisher) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info().
		Dur("interval", p.interval).
		Int("batch_size", p.batchSize).
		Msg("outbox publisher started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().
				Err(ctx.Err()).
				Msg("outbox publisher stopped")
			return ctx.Err()

		case <-ticker.C:
			if _, err := p.PublishBatch(ctx); err != nil {
				p.logger.Error().
					Err(err).
					Msg("failed to publish batch")
			}
		}
	}
}

type BatchStats struct {
	Total     int
	Published int
	Failed    int
	Marked    int
}

// PublishBatch relays one batch of pending records in id order.
func (p *Publisher) PublishBatch(ctx context.Context) (BatchStats, error) {
	records, err := p.outboxRepo.GetPending(ctx, p.batchSize)
	if err != nil {
		return BatchStats{}, fmt.Errorf("get pending records: %w", err)
	}

	if len(records) == 0 {
		p.logger.Debug().Msg("no pending events to publish")
		return BatchStats{}, nil
	}

	stats := BatchStats{Total: len(records)}

	for _, record := range records {
		eventLogger := p.logger.With().
			Str("event_id", record.EventID).
			Str("event_type", record.EventType).
			Str("aggregate_id", record.AggregateID).
			Str("topic", record.Topic).
			Int64("outbox_id", record.ID).
			Logger()

		if err := p.producer.Publish(ctx, record.Topic, record.PartitionKey, json.RawMessage(record.Payload)); err != nil {
			eventLogger.Error().
				Err(err).
				Msg("failed to publish event")
			stats.Failed++
			continue
		}
		stats.Published++

		// a published but unmarked record is published again on the next tick
		if err := p.outboxRepo.MarkProcessed(ctx, record.ID); err != nil {
			eventLogger.Warn().
				Err(err).
				Msg("failed to mark event as processed")
			continue
		}
		stats.Marked++
		eventLogger.Debug().Msg("event published")
	}

	p.logger.Info().
		Int("total", stats.Total).
		Int("published", stats.Published).
		Int("failed", stats.Failed).
		Int("marked", stats.Marked).
		Msg("batch processing completed")

	return stats, nil
}
