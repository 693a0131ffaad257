// Package listener applies transcode completions from the bus to the catalog.
package listener

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/romariotrain/media-pipeline/internal/events"
	"github.com/romariotrain/media-pipeline/internal/kafka"
	"github.com/romariotrain/media-pipeline/internal/media/models"
)

type CompletionApplier interface {
	ApplyCompletion(ctx context.Context, completion events.TranscodeCompletion) (*models.Content, error)
}

type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler kafka.Handler) error
}

type Listener struct {
	svc    CompletionApplier
	logger zerolog.Logger
}

func New(svc CompletionApplier, logger zerolog.Logger) *Listener {
	return &Listener{
		svc:    svc,
		logger: logger.With().Str("component", "completion-listener").Logger(),
	}
}

func (l *Listener) Register(ctx context.Context, sub Subscriber) error {
	return sub.Subscribe(ctx, events.TopicTranscodeCompleted, l.HandleMessage)
}

// HandleMessage never fails on input it can not use: malformed messages and
// completions for unknown contents are logged and dropped.
func (l *Listener) HandleMessage(ctx context.Context, msg kafka.Message) error {
	completion, err := events.Decode[events.TranscodeCompletion](msg.Value)
	if err != nil {
		l.logger.Warn().Err(err).Str("topic", msg.Topic).Str("key", msg.Key).Msg("dropping undecodable completion")
		return nil
	}

	log := l.logger.With().
		Str("content_id", completion.ContentID).
		Str("object_key", completion.ObjectKey).
		Logger()

	content, err := l.svc.ApplyCompletion(ctx, completion)
	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrInvalidArgument):
		log.Warn().Err(err).Msg("completion does not match any content")
		return nil
	case err != nil:
		return err
	}

	log.Info().
		Str("status", string(content.Status)).
		Int("renditions", len(content.Renditions)).
		Msg("completion applied")
	return nil
}
