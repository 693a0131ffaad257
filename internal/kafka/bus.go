package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrNotStarted        = errors.New("bus is not started")
	ErrAlreadySubscribed = errors.New("topic already has a handler")
)

type BusConfig struct {
	Brokers        []string
	ClientID       string
	GroupID        string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	RetryBackoff   time.Duration
	MaxRetries     int
	HandlerTimeout time.Duration
	Logger         zerolog.Logger
}

// Bus owns one producer and one consumer per subscribed topic.
// Start must be called before Subscribe.
type Bus struct {
	cfg      BusConfig
	producer *Producer
	logger   zerolog.Logger

	mu        sync.Mutex
	started   bool
	connected bool
	consumers map[string]*Consumer
	wg        sync.WaitGroup

	dial      func(ctx context.Context) error
	newReader func(topic string) (messageReader, error)
}

func NewBus(cfg BusConfig) (*Bus, error) {
	producer, err := NewProducer(ProducerConfig{
		Brokers:      cfg.Brokers,
		ClientID:     cfg.ClientID,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		WriteTimeout: cfg.RequestTimeout,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	b := &Bus{
		cfg:       cfg,
		producer:  producer,
		logger:    cfg.Logger.With().Str("component", "bus").Logger(),
		consumers: make(map[string]*Consumer),
	}
	b.dial = producer.HealthCheck
	b.newReader = b.kafkaReader
	return b, nil
}

func (b *Bus) kafkaReader(topic string) (messageReader, error) {
	cfg := b.consumerConfig(topic)
	if cfg.GroupID == "" {
		return nil, errors.New("group id is empty")
	}
	return newKafkaReader(cfg), nil
}

func (b *Bus) consumerConfig(topic string) ConsumerConfig {
	return ConsumerConfig{
		Brokers:        b.cfg.Brokers,
		Topic:          topic,
		GroupID:        b.cfg.GroupID,
		ClientID:       b.cfg.ClientID,
		ConnectTimeout: b.cfg.ConnectTimeout,
		RetryBackoff:   b.cfg.RetryBackoff,
		HandlerTimeout: b.cfg.HandlerTimeout,
		Logger:         b.cfg.Logger,
	}
}

// Start checks broker connectivity. A failure is logged and the bus keeps
// running degraded; the client reconnects on the next publish or fetch.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return nil
	}
	b.started = true

	dialCtx := ctx
	if b.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, b.cfg.ConnectTimeout)
		defer cancel()
	}

	if err := b.dial(dialCtx); err != nil {
		b.logger.Error().
			Err(fmt.Errorf("%w: %w", ErrBrokerConnect, err)).
			Strs("brokers", b.cfg.Brokers).
			Msg("kafka unavailable, continuing degraded")
		return nil
	}

	b.connected = true
	b.logger.Info().Strs("brokers", b.cfg.Brokers).Msg("kafka connected")
	return nil
}

// Connected reports whether the startup connectivity check succeeded.
func (b *Bus) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Subscribe registers the single handler for topic and starts consuming in
// the background until ctx is cancelled or Stop is called.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return ErrNotStarted
	}
	if _, ok := b.consumers[topic]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadySubscribed, topic)
	}
	if handler == nil {
		return errors.New("handler is nil")
	}

	reader, err := b.newReader(topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	consumer := newConsumer(reader, b.consumerConfig(topic), handler)
	b.consumers[topic] = consumer

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		consumer.Run(ctx)
	}()

	b.logger.Info().Str("topic", topic).Str("group_id", b.cfg.GroupID).Msg("subscribed")
	return nil
}

// Publish JSON-encodes payload and sends it keyed by key.
// json.RawMessage payloads are sent as is.
func (b *Bus) Publish(ctx context.Context, topic, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}

	if err := b.producer.Publish(ctx, topic, key, value); err != nil {
		b.logger.Error().Err(err).Str("topic", topic).Str("key", key).Msg("publish failed")
		return fmt.Errorf("%w: %w", ErrBrokerPublish, err)
	}

	b.logger.Debug().Str("topic", topic).Str("key", key).Msg("published")
	return nil
}

func (b *Bus) Metrics() Metrics {
	return b.producer.GetMetrics()
}

// Stop halts fetching, waits until in-flight handlers return (bounded by
// ctx), then closes the consumers and the producer. Failures are logged one
// by one and never returned.
func (b *Bus) Stop(ctx context.Context) {
	b.mu.Lock()
	consumers := b.consumers
	b.consumers = make(map[string]*Consumer)
	b.mu.Unlock()

	for _, c := range consumers {
		c.Shutdown()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn().Msg("consumers did not drain in time")
	}

	for topic, c := range consumers {
		if err := c.Close(); err != nil {
			b.logger.Warn().Err(err).Str("topic", topic).Msg("close consumer failed")
		}
	}

	if err := b.producer.Close(); err != nil {
		b.logger.Warn().Err(err).Msg("close producer failed")
	}
	b.logger.Info().Msg("bus stopped")
}
