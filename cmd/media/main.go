package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/romariotrain/media-pipeline/internal/app"
	"github.com/romariotrain/media-pipeline/internal/config"
	"github.com/romariotrain/media-pipeline/internal/media/httpapi"
	"github.com/romariotrain/media-pipeline/internal/media/listener"
	"github.com/romariotrain/media-pipeline/internal/media/outbox"
	"github.com/romariotrain/media-pipeline/internal/media/repository"
	"github.com/romariotrain/media-pipeline/internal/media/service"
	"github.com/romariotrain/media-pipeline/internal/storage/postgres"
)

func main() {
	os.Exit(app.Run("media", run))
}

func run(ctx context.Context, logger zerolog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, mem, err := app.NewStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("object store: %w", err)
	}

	bus, err := app.NewBus(cfg.Kafka, cfg.Kafka.CatalogGroupID, logger)
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

	var (
		contents repository.ContentRepository
		// relay is set only without Postgres; cmd/publish relays the table otherwise.
		relay repository.OutboxRepository
	)
	if cfg.Postgres.URL != "" {
		db, err := postgres.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer db.Close()

		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		contents = postgres.NewContentRepo(db)
	} else {
		logger.Warn().Msg("DATABASE_URL is empty, using in-memory catalog")
		repo := repository.NewMemoryRepository()
		contents, relay = repo, repo
	}

	svc := service.New(contents)

	if err := listener.New(svc, logger).Register(ctx, bus); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	var opts []httpapi.RouterOption
	if mem != nil {
		opts = append(opts, httpapi.WithObjectHandler(app.MemoryObjectsPrefix, mem))
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.NewRouter(httpapi.New(svc, store, cfg.Storage.PresignTTL(), logger), opts...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Serve(gctx, srv, cfg.ShutdownTimeout, logger)
	})
	if relay != nil {
		publisher, err := outbox.NewPublisher(outbox.PublisherConfig{
			OutboxRepo: relay,
			Producer:   bus,
			Interval:   cfg.Outbox.Interval,
			BatchSize:  cfg.Outbox.BatchSize,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := publisher.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
