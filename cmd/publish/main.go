package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/romariotrain/media-pipeline/internal/app"
	"github.com/romariotrain/media-pipeline/internal/config"
	"github.com/romariotrain/media-pipeline/internal/media/outbox"
	"github.com/romariotrain/media-pipeline/internal/storage/postgres"
)

func main() {
	os.Exit(app.Run("publish", run))
}

func run(ctx context.Context, logger zerolog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return errors.New("DATABASE_URL is empty")
	}

	db, err := postgres.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	bus, err := app.NewBus(cfg.Kafka, "", logger)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	if err := bus.Start(ctx); err != nil {
		return err
	}
	defer func() {
		drainCtx, cancel := app.DrainContext(ctx)
		defer cancel()
		bus.Stop(drainCtx)
	}()

	publisher, err := outbox.NewPublisher(outbox.PublisherConfig{
		OutboxRepo: postgres.NewOutboxRepo(db),
		Producer:   bus,
		Interval:   cfg.Outbox.Interval,
		BatchSize:  cfg.Outbox.BatchSize,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	if err := publisher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
