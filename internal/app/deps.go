package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/romariotrain/media-pipeline/internal/config"
	"github.com/romariotrain/media-pipeline/internal/kafka"
	"github.com/romariotrain/media-pipeline/internal/objectstore"
)

// MemoryObjectsPrefix is the path the in-memory store's signed URLs point at.
const MemoryObjectsPrefix = "/objects"

// NewStore builds the configured object store. The *Memory is non-nil only
// for the memory driver, so the caller can serve its signed URLs.
func NewStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (objectstore.Store, *objectstore.Memory, error) {
	switch cfg.Storage.Driver {
	case "memory":
		mem := objectstore.NewMemory()
		mem.SetBaseURL(cfg.HTTP.PublicURL + MemoryObjectsPrefix)
		logger.Warn().Msg("using in-memory object store, objects are lost on exit")
		return mem, mem, nil
	case "s3":
		s3, err := objectstore.NewS3(ctx, objectstore.S3Config{
			Region:          cfg.Storage.Region,
			Bucket:          cfg.Storage.Bucket,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Endpoint:        cfg.Storage.Endpoint,
			UsePathStyle:    cfg.Storage.UsePathStyle,
			CreateBucket:    cfg.Storage.CreateBucket,
			StreamPartSize:  cfg.Upload.ChunkSize,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return s3, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

func NewBus(cfg config.Kafka, groupID string, logger zerolog.Logger) (*kafka.Bus, error) {
	return kafka.NewBus(kafka.BusConfig{
		Brokers:        cfg.Brokers,
		ClientID:       cfg.ClientID,
		GroupID:        groupID,
		ConnectTimeout: cfg.ConnectTimeout,
		RequestTimeout: cfg.RequestTimeout,
		RetryBackoff:   cfg.RetryBackoff,
		MaxRetries:     cfg.MaxRetries,
		HandlerTimeout: cfg.HandlerTimeout,
		Logger:         logger,
	})
}

// DrainContext outlives ctx by at most the grace period, for shutdown work
// that must finish after the signal.
func DrainContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), DefaultGracePeriod)
}

// Serve runs srv until ctx is cancelled, then shuts it down within timeout.
func Serve(ctx context.Context, srv *http.Server, timeout time.Duration, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil

	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen and serve: %w", err)
	}
}
