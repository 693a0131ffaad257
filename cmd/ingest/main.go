// Command ingest uploads a local file to the object store and registers it
// with the catalog.
//
//	ingest -gateway http://localhost:8081 ./clip.mp4
//
// Without -gateway the file goes straight to the configured store and is not
// registered.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/romariotrain/media-pipeline/internal/app"
	"github.com/romariotrain/media-pipeline/internal/config"
	"github.com/romariotrain/media-pipeline/internal/media/client"
	"github.com/romariotrain/media-pipeline/internal/media/models"
	"github.com/romariotrain/media-pipeline/internal/upload"
)

type options struct {
	path        string
	key         string
	contentType string
	kind        string
	gateway     string
	register    bool
}

func main() {
	var opts options
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	fs.StringVar(&opts.key, "key", "", "object key (default: random UUID plus the file extension)")
	fs.StringVar(&opts.contentType, "content-type", "", "MIME type (default: from the file extension)")
	fs.StringVar(&opts.kind, "kind", "", "content kind image|video|pdf (default: from the MIME type)")
	fs.StringVar(&opts.gateway, "gateway", os.Getenv("GATEWAY_URL"), "catalog gateway base URL")
	fs.BoolVar(&opts.register, "register", true, "register the upload with the catalog (gateway mode only)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: ingest [flags] <file>\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	opts.path = fs.Arg(0)

	os.Exit(app.Run("ingest", func(ctx context.Context, logger zerolog.Logger) error {
		return ingest(ctx, opts, logger)
	}))
}

func ingest(ctx context.Context, opts options, logger zerolog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	f, err := os.Open(opts.path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", opts.path)
	}

	ext := filepath.Ext(opts.path)
	if opts.key == "" {
		opts.key = uuid.NewString() + ext
	}
	if opts.contentType == "" {
		opts.contentType = mime.TypeByExtension(ext)
	}

	var (
		store upload.Store
		gw    *client.Client
	)
	if opts.gateway != "" {
		gw = client.New(opts.gateway, nil)
		store = gw
	} else {
		direct, _, err := app.NewStore(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("object store: %w", err)
		}
		store = direct
	}

	upCfg := upload.DefaultConfig()
	upCfg.ChunkSize = cfg.Upload.ChunkSize
	upCfg.MultipartThreshold = cfg.Upload.MultipartThreshold
	upCfg.Concurrency = cfg.Upload.Concurrency
	upCfg.PartRetries = cfg.Upload.PartRetries
	upCfg.PartTimeout = cfg.Upload.PartTimeout
	upCfg.URLTTL = cfg.Storage.PresignTTL()
	upCfg.OnProgress = func(rec upload.PartRecord) {
		logger.Debug().
			Int32("part_number", rec.PartNumber).
			Str("status", string(rec.Status)).
			Int("progress", rec.ProgressPercent).
			Msg("part progress")
	}
	coord := upload.NewCoordinator(store, http.DefaultClient, upCfg, logger)

	res, err := coord.Upload(ctx, opts.key, opts.contentType, f, info.Size())
	if err != nil {
		return fmt.Errorf("upload %s: %w", opts.path, err)
	}
	logger.Info().
		Str("object_key", res.ObjectName).
		Str("strategy", res.Strategy.String()).
		Int("parts", res.Parts).
		Str("etag", res.ETag).
		Msg("upload finished")

	if gw == nil || !opts.register {
		return nil
	}

	kind, err := resolveKind(opts.kind, opts.contentType)
	if err != nil {
		return err
	}
	content, err := gw.CreateContent(ctx, kind, res.ObjectName)
	if err != nil {
		return fmt.Errorf("register content: %w", err)
	}

	logger.Info().
		Str("content_id", content.ID.String()).
		Str("status", content.Status).
		Msg("content registered")
	fmt.Println(content.ID)
	return nil
}

func resolveKind(kind, contentType string) (models.ContentKind, error) {
	if kind != "" {
		return models.ParseContentKind(kind)
	}
	if contentType == "" {
		return 0, errors.New("cannot infer content kind, pass -kind")
	}
	return models.KindFromMIME(contentType)
}
