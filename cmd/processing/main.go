package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/romariotrain/media-pipeline/internal/app"
	"github.com/romariotrain/media-pipeline/internal/config"
	"github.com/romariotrain/media-pipeline/internal/events"
	"github.com/romariotrain/media-pipeline/internal/transcode"
)

func main() {
	os.Exit(app.Run("processing", run))
}

func run(ctx context.Context, logger zerolog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	profiles, err := transcode.LoadProfiles(cfg.Transcode.ProfilesPath)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}

	store, _, err := app.NewStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("object store: %w", err)
	}

	bus, err := app.NewBus(cfg.Kafka, cfg.Kafka.GroupID, logger)
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

	pipelineCfg := transcode.DefaultConfig()
	pipelineCfg.Profiles = profiles
	pipelineCfg.KeyPrefix = cfg.Transcode.KeyPrefix
	pipelineCfg.Extension = cfg.Transcode.Extension
	pipelineCfg.URLTTL = cfg.Storage.PresignTTL()
	pipelineCfg.JobTimeout = cfg.Transcode.JobTimeout
	pipelineCfg.InstanceID = cfg.Transcode.InstanceID

	pipeline, err := transcode.NewPipeline(pipelineCfg, store, transcode.NewFFmpeg(cfg.Transcode.FFmpegPath), bus, logger)
	if err != nil {
		return err
	}

	if err := bus.Subscribe(ctx, events.TopicTranscodeRequests, pipeline.HandleMessage); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	logger.Info().
		Int("profiles", len(profiles)).
		Str("topic", events.TopicTranscodeRequests).
		Msg("transcoding worker ready")

	<-ctx.Done()
	return nil
}
