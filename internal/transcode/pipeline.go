// Package transcode turns one source video into a fixed set of renditions and
// reports all of them in a single completion event.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/romariotrain/media-pipeline/internal/events"
	"github.com/romariotrain/media-pipeline/internal/kafka"
	"github.com/romariotrain/media-pipeline/internal/objectstore"
)

type Config struct {
	Profiles    []Profile
	KeyPrefix   string
	Extension   string
	ContentType string
	URLTTL      time.Duration
	JobTimeout  time.Duration
	InstanceID  string
}

func DefaultConfig() Config {
	return Config{
		Profiles:    DefaultProfiles(),
		KeyPrefix:   "transcoded",
		Extension:   "mp4",
		ContentType: "video/mp4",
		URLTTL:      time.Hour,
		JobTimeout:  30 * time.Minute,
		InstanceID:  "video-processor",
	}
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

type Pipeline struct {
	cfg       Config
	store     objectstore.Store
	codec     Codec
	publisher Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewPipeline copies cfg; later changes to the caller's profile slice are not observed.
func NewPipeline(cfg Config, store objectstore.Store, codec Codec, publisher Publisher, logger zerolog.Logger) (*Pipeline, error) {
	if err := ValidateProfiles(cfg.Profiles); err != nil {
		return nil, err
	}
	if cfg.KeyPrefix == "" || cfg.Extension == "" {
		return nil, errors.New("key prefix and extension are required")
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = time.Hour
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "video/mp4"
	}
	cfg.Profiles = slices.Clone(cfg.Profiles)

	return &Pipeline{
		cfg:       cfg,
		store:     store,
		codec:     codec,
		publisher: publisher,
		logger:    logger.With().Str("component", "transcode").Logger(),
		now:       time.Now,
	}, nil
}

func (p *Pipeline) Profiles() []Profile {
	return slices.Clone(p.cfg.Profiles)
}

// OutputKey builds "<prefix>/<objectKeyWithoutExtension>_<name>.<ext>".
func OutputKey(prefix, objectKey, name, ext string) string {
	base := strings.TrimSuffix(objectKey, path.Ext(objectKey))
	return fmt.Sprintf("%s/%s_%s.%s", strings.TrimRight(prefix, "/"), base, name, strings.TrimPrefix(ext, "."))
}

// HandleMessage is the bus handler for transcode requests. Undecodable
// payloads are logged and dropped.
func (p *Pipeline) HandleMessage(ctx context.Context, msg kafka.Message) error {
	req, err := events.Decode[events.TranscodeRequest](msg.Value)
	if err != nil {
		p.logger.Error().
			Err(fmt.Errorf("%w: %w", ErrMalformedRequest, err)).
			Str("key", msg.Key).
			Msg("dropping transcode request")
		return nil
	}
	return p.OnTranscodeRequest(ctx, req)
}

// OnTranscodeRequest runs every rendition and publishes exactly one completion.
// A request without a source key is dropped without a completion.
func (p *Pipeline) OnTranscodeRequest(ctx context.Context, req events.TranscodeRequest) error {
	objectKey := req.SourceKey()
	if objectKey == "" {
		p.logger.Warn().
			Err(ErrMalformedRequest).
			Str("content_id", req.ContentID).
			Msg("transcode request has no object key, dropping")
		return nil
	}

	log := p.logger.With().Str("object_key", objectKey).Str("content_id", req.ContentID).Logger()
	log.Info().Str("requested_by", req.RequestedBy).Msg("transcode requested")

	completion := p.Transcode(ctx, objectKey)
	completion.ContentID = req.ContentID

	if err := p.publisher.Publish(ctx, events.TopicTranscodeCompleted, objectKey, completion); err != nil {
		return fmt.Errorf("publish completion for %s: %w", objectKey, err)
	}

	log.Info().Bool("any_succeeded", completion.AnySucceeded()).Msg("transcode completed")
	return nil
}

// Transcode runs one job per profile and waits for all of them. A failing job
// never cancels the others. Results follow profile order.
func (p *Pipeline) Transcode(ctx context.Context, objectKey string) events.TranscodeCompletion {
	results := make([]events.RenditionResult, len(p.cfg.Profiles))

	var wg sync.WaitGroup
	for i, profile := range p.cfg.Profiles {
		wg.Go(func() {
			results[i] = p.runRendition(ctx, objectKey, profile)
		})
	}
	wg.Wait()

	return events.TranscodeCompletion{
		ObjectKey:   objectKey,
		Results:     results,
		CompletedAt: p.now().UTC(),
		CompletedBy: p.cfg.InstanceID,
	}
}

func (p *Pipeline) runRendition(ctx context.Context, objectKey string, profile Profile) (res events.RenditionResult) {
	outputKey := OutputKey(p.cfg.KeyPrefix, objectKey, profile.Name, p.cfg.Extension)
	res = events.RenditionResult{ResolutionName: profile.Name, OutputKey: outputKey}

	log := p.logger.With().
		Str("object_key", objectKey).
		Str("resolution", profile.Name).
		Str("output_key", outputKey).
		Logger()

	fail := func(err error) events.RenditionResult {
		log.Error().Err(err).Msg("rendition failed")
		res.ETag = ""
		res.Error = err.Error()
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			res = fail(&RenditionError{Resolution: profile.Name, Stage: "panic", Err: fmt.Errorf("%v", r)})
		}
	}()

	jobCtx := ctx
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}

	sourceURL, err := p.store.PresignGetURL(jobCtx, objectKey, p.cfg.URLTTL)
	if err != nil {
		return fail(&RenditionError{Resolution: profile.Name, Stage: "sign", Err: err})
	}

	log.Info().Msg("rendition started")
	started := time.Now()

	pr, pw := io.Pipe()
	codecErr := make(chan error, 1)
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("codec panic: %v", r)
			}
			// nil closes the pipe with io.EOF
			pw.CloseWithError(err)
			codecErr <- err
		}()
		err = p.codec.Transcode(jobCtx, sourceURL, profile, pw)
	}()

	info, putErr := p.store.PutStream(jobCtx, outputKey, pr, p.cfg.ContentType)
	// unblocks the codec if the upload stopped reading early
	pr.CloseWithError(io.ErrClosedPipe)
	cErr := <-codecErr

	if (cErr != nil || putErr != nil) && timedOut(ctx, jobCtx) {
		return fail(&RenditionError{Resolution: profile.Name, Stage: "timeout", Err: ErrTimeout})
	}
	if cErr != nil {
		return fail(&RenditionError{Resolution: profile.Name, Stage: "codec", Err: cErr})
	}
	if putErr != nil {
		return fail(&RenditionError{Resolution: profile.Name, Stage: "upload", Err: putErr})
	}
	if info.ETag == "" {
		return fail(&RenditionError{Resolution: profile.Name, Stage: "upload", Err: errors.New("store returned no etag")})
	}

	log.Info().Dur("took", time.Since(started)).Str("etag", info.ETag).Msg("rendition uploaded")
	res.ETag = info.ETag
	return res
}

// timedOut reports a job deadline expiry that the caller's context did not cause.
func timedOut(parent, job context.Context) bool {
	return errors.Is(job.Err(), context.DeadlineExceeded) && parent.Err() == nil
}
