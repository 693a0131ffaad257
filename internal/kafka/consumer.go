package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

// Handler processes one delivered message. Returned errors are logged only.
type Handler func(ctx context.Context, msg Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type ConsumerConfig struct {
	Brokers        []string
	Topic          string
	GroupID        string
	ClientID       string
	ConnectTimeout time.Duration
	RetryBackoff   time.Duration
	// HandlerTimeout bounds one handler call. Zero leaves it unbounded.
	HandlerTimeout time.Duration
	Logger         zerolog.Logger
}

// commitTimeout bounds the offset commit that follows every handler call.
const commitTimeout = 10 * time.Second

type Consumer struct {
	reader         messageReader
	handler        Handler
	topic          string
	backoff        time.Duration
	handlerTimeout time.Duration
	logger         zerolog.Logger

	stopped context.Context
	stop    context.CancelFunc
}

func NewConsumer(cfg ConsumerConfig, handler Handler) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("brokers list is empty")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is empty")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("group id is empty")
	}
	if handler == nil {
		return nil, errors.New("handler is nil")
	}

	return newConsumer(newKafkaReader(cfg), cfg, handler), nil
}

// newKafkaReader joins the consumer group; offsets are committed explicitly.
func newKafkaReader(cfg ConsumerConfig) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
		Dialer: &kafkago.Dialer{
			ClientID: cfg.ClientID,
			Timeout:  cfg.ConnectTimeout,
		},
	})
}

func newConsumer(reader messageReader, cfg ConsumerConfig, handler Handler) *Consumer {
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	stopped, stop := context.WithCancel(context.Background())
	return &Consumer{
		reader:         reader,
		handler:        handler,
		topic:          cfg.Topic,
		backoff:        backoff,
		handlerTimeout: cfg.HandlerTimeout,
		logger:         cfg.Logger.With().Str("component", "kafka_consumer").Str("topic", cfg.Topic).Logger(),
		stopped:        stopped,
		stop:           stop,
	}
}

// Run fetches until ctx is cancelled, Shutdown is called or the reader is
// closed. Cancellation only stops fetching: a message already fetched is
// handled under a context detached from ctx and then committed, whatever the
// outcome.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info().Msg("consumer started")
	defer c.logger.Info().Msg("consumer stopped")

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	release := context.AfterFunc(c.stopped, cancel)
	defer release()

	for fetchCtx.Err() == nil {
		msg, err := c.reader.FetchMessage(fetchCtx)
		if err != nil {
			if fetchCtx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			c.logger.Error().Err(err).Msg("fetch failed")
			select {
			case <-fetchCtx.Done():
				return
			case <-time.After(c.backoff):
			}
			continue
		}

		c.dispatch(context.WithoutCancel(ctx), msg)
		c.commit(context.WithoutCancel(ctx), msg)
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafkago.Message) {
	ctx, cancel := context.WithTimeout(ctx, commitTimeout)
	defer cancel()

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error().
			Err(err).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("commit failed")
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg kafkago.Message) {
	log := c.logger.With().
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Str("key", string(msg.Key)).
		Logger()

	if c.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.handlerTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Err(fmt.Errorf("panic: %v", r)).Msg("handler panicked")
		}
	}()

	err := c.handler(ctx, Message{Topic: msg.Topic, Key: string(msg.Key), Value: msg.Value})
	if err != nil {
		log.Error().Err(err).Msg("handler failed")
	}
}

// Shutdown stops fetching. A handler already running finishes and its
// message is committed before Run returns.
func (c *Consumer) Shutdown() {
	c.stop()
}

func (c *Consumer) Close() error {
	c.stop()
	return c.reader.Close()
}
