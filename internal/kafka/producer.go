package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

var (
	ErrProducerClosed = errors.New("producer is closed")
	ErrBrokerConnect  = errors.New("broker connect failed")
	ErrBrokerPublish  = errors.New("broker publish failed")
)

type ProducerConfig struct {
	Brokers      []string
	ClientID     string
	MaxRetries   int
	RetryBackoff time.Duration
	WriteTimeout time.Duration
	BatchSize    int
	Async        bool
	Logger       zerolog.Logger
}

// Message is one record; Key selects the partition, so records with the same
// key keep their relative order.
type Message struct {
	Topic string
	Key   string
	Value []byte
}

type metrics struct {
	MessagesPublished atomic.Int64
	MessagesFailed    atomic.Int64
	RetriesTotal      atomic.Int64
	PublishDuration   atomic.Int64 // nanoseconds
}

type Metrics struct {
	MessagesPublished int64
	MessagesFailed    int64
	RetriesTotal      int64
	AvgPublishTime    time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type Producer struct {
	writer  messageWriter
	config  ProducerConfig
	logger  zerolog.Logger
	metrics metrics
	closed  atomic.Bool
}

func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid producer config: %w", err)
	}
	setDefaults(&cfg)

	transport := &kafkago.Transport{ClientID: cfg.ClientID}
	writer := &kafkago.Writer{
		Addr: kafkago.TCP(cfg.Brokers...),
		// same key, same partition
		Balancer:     &kafkago.Hash{},
		BatchSize:    cfg.BatchSize,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafkago.RequireAll,
		Async:        cfg.Async,
		// retries are driven by Publish
		MaxAttempts:            1,
		AllowAutoTopicCreation: true,
		Transport:              transport,
	}

	return &Producer{
		writer: writer,
		config: cfg,
		logger: cfg.Logger.With().Str("component", "kafka_producer").Logger(),
	}, nil
}

func validateConfig(cfg *ProducerConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New("brokers list is empty")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("max_retries cannot be negative")
	}
	if cfg.RetryBackoff < 0 {
		return errors.New("retry_backoff cannot be negative")
	}
	if cfg.WriteTimeout < 0 {
		return errors.New("write_timeout cannot be negative")
	}
	return nil
}

func setDefaults(cfg *ProducerConfig) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	return p.PublishBatch(ctx, []Message{{Topic: topic, Key: key, Value: value}})
}

func (p *Producer) PublishBatch(ctx context.Context, messages []Message) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if len(messages) == 0 {
		return nil
	}

	msgs := make([]kafkago.Message, len(messages))
	for i, m := range messages {
		if m.Topic == "" {
			return fmt.Errorf("message %d: topic is empty", i)
		}
		msgs[i] = kafkago.Message{Topic: m.Topic, Key: []byte(m.Key), Value: m.Value}
	}

	start := time.Now()
	err := p.writeWithRetry(ctx, msgs)
	p.metrics.PublishDuration.Add(int64(time.Since(start)))

	if err != nil {
		p.metrics.MessagesFailed.Add(int64(len(msgs)))
		p.logger.Error().
			Err(err).
			Str("topic", messages[0].Topic).
			Int("count", len(msgs)).
			Msg("publish failed")
		return fmt.Errorf("kafka publish: %w", err)
	}

	p.metrics.MessagesPublished.Add(int64(len(msgs)))
	return nil
}

func (p *Producer) writeWithRetry(ctx context.Context, msgs []kafkago.Message) error {
	var lastErr error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			p.metrics.RetriesTotal.Add(1)
			// linear backoff
			backoff := p.config.RetryBackoff * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := p.writer.WriteMessages(ctx, msgs...)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetriableError(err) {
			return err
		}
		p.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_retries", p.config.MaxRetries).
			Msg("retrying publish")
	}
	return fmt.Errorf("after %d retries: %w", p.config.MaxRetries, lastErr)
}

func isRetriableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var kerr kafkago.Error
	if errors.As(err, &kerr) {
		return kerr.Temporary()
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"invalid", "too large", "authorization", "unsupported"} {
		if strings.Contains(msg, s) {
			return false
		}
	}
	return true
}

func (p *Producer) GetMetrics() Metrics {
	published := p.metrics.MessagesPublished.Load()
	m := Metrics{
		MessagesPublished: published,
		MessagesFailed:    p.metrics.MessagesFailed.Load(),
		RetriesTotal:      p.metrics.RetriesTotal.Load(),
	}
	if published > 0 {
		m.AvgPublishTime = time.Duration(p.metrics.PublishDuration.Load() / published)
	}
	return m
}

// HealthCheck dials the first reachable broker.
func (p *Producer) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	dialer := &kafkago.Dialer{Timeout: 3 * time.Second, ClientID: p.config.ClientID}
	var lastErr error
	for _, broker := range p.config.Brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("%w: %w", ErrBrokerConnect, lastErr)
}

func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return errors.New("producer already closed")
	}
	p.logger.Info().
		Int64("published", p.metrics.MessagesPublished.Load()).
		Int64("failed", p.metrics.MessagesFailed.Load()).
		Msg("closing producer")
	return p.writer.Close()
}
