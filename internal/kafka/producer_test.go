package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu       sync.Mutex
	errs     []error
	calls    int
	messages []kafkago.Message
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.calls++
	if len(w.errs) > 0 {
		err := w.errs[0]
		w.errs = w.errs[1:]
		if err != nil {
			return err
		}
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func newTestProducer(t *testing.T, w *fakeWriter) *Producer {
	t.Helper()
	producer, err := NewProducer(ProducerConfig{
		Brokers:      []string{"localhost:9092"},
		RetryBackoff: time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	producer.writer = w
	return producer
}

func TestNewProducer_Success(t *testing.T) {
	cfg := ProducerConfig{
		Brokers:  []string{"localhost:9092"},
		ClientID: "video-processor",
		Logger:   zerolog.Nop(),
	}

	producer, err := NewProducer(cfg)

	require.NoError(t, err)
	assert.NotNil(t, producer)
	assert.Equal(t, "video-processor", producer.config.ClientID)
	assert.Equal(t, 3, producer.config.MaxRetries) // default
	assert.Equal(t, 100*time.Millisecond, producer.config.RetryBackoff)
}

func TestNewProducer_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  ProducerConfig
		wantErr string
	}{
		{
			name: "empty brokers",
			config: ProducerConfig{
				Brokers: []string{},
				Logger:  zerolog.Nop(),
			},
			wantErr: "brokers list is empty",
		},
		{
			name: "negative max retries",
			config: ProducerConfig{
				Brokers:    []string{"localhost:9092"},
				MaxRetries: -1,
				Logger:     zerolog.Nop(),
			},
			wantErr: "max_retries cannot be negative",
		},
		{
			name: "negative retry backoff",
			config: ProducerConfig{
				Brokers:      []string{"localhost:9092"},
				RetryBackoff: -1 * time.Second,
				Logger:       zerolog.Nop(),
			},
			wantErr: "retry_backoff cannot be negative",
		},
		{
			name: "negative write timeout",
			config: ProducerConfig{
				Brokers:      []string{"localhost:9092"},
				WriteTimeout: -1 * time.Second,
				Logger:       zerolog.Nop(),
			},
			wantErr: "write_timeout cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			producer, err := NewProducer(tt.config)

			require.Error(t, err)
			assert.Nil(t, producer)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProducer_Defaults(t *testing.T) {
	producer, err := NewProducer(ProducerConfig{
		Brokers: []string{"localhost:9092"},
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, producer.config.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, producer.config.RetryBackoff)
	assert.Equal(t, 10*time.Second, producer.config.WriteTimeout)
	assert.Equal(t, 100, producer.config.BatchSize)
	assert.False(t, producer.config.Async)

	writer, ok := producer.writer.(*kafkago.Writer)
	require.True(t, ok)
	assert.IsType(t, &kafkago.Hash{}, writer.Balancer)
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retriable bool
	}{
		{name: "nil error", err: nil, retriable: false},
		{name: "context canceled", err: context.Canceled, retriable: false},
		{name: "context deadline exceeded", err: context.DeadlineExceeded, retriable: false},
		{name: "connection refused", err: errors.New("connection refused"), retriable: true},
		{name: "connection reset", err: errors.New("connection reset by peer"), retriable: true},
		{name: "timeout", err: errors.New("i/o timeout"), retriable: true},
		{name: "leader not available", err: kafkago.LeaderNotAvailable, retriable: true},
		{name: "message too large", err: kafkago.MessageSizeTooLarge, retriable: false},
		{name: "invalid message", err: errors.New("invalid message format"), retriable: false},
		{name: "authorization failed", err: errors.New("authorization failed"), retriable: false},
		{name: "unknown error (default retriable)", err: errors.New("some random error"), retriable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retriable, isRetriableError(tt.err))
		})
	}
}

func TestProducer_PublishUsesTopicAndKey(t *testing.T) {
	w := &fakeWriter{}
	producer := newTestProducer(t, w)

	err := producer.Publish(context.Background(), "video.processing.completed", "abc.mp4", []byte(`{}`))
	require.NoError(t, err)

	require.Len(t, w.messages, 1)
	assert.Equal(t, "video.processing.completed", w.messages[0].Topic)
	assert.Equal(t, []byte("abc.mp4"), w.messages[0].Key)
	assert.Equal(t, int64(1), producer.GetMetrics().MessagesPublished)
}

func TestProducer_PublishRetriesTransientErrors(t *testing.T) {
	w := &fakeWriter{errs: []error{errors.New("connection refused"), kafkago.LeaderNotAvailable, nil}}
	producer := newTestProducer(t, w)

	err := producer.Publish(context.Background(), "t", "k", []byte("v"))
	require.NoError(t, err)

	assert.Equal(t, 3, w.calls)
	m := producer.GetMetrics()
	assert.Equal(t, int64(2), m.RetriesTotal)
	assert.Equal(t, int64(1), m.MessagesPublished)
}

func TestProducer_PublishStopsOnPermanentError(t *testing.T) {
	w := &fakeWriter{errs: []error{kafkago.MessageSizeTooLarge}}
	producer := newTestProducer(t, w)

	err := producer.Publish(context.Background(), "t", "k", []byte("v"))
	require.Error(t, err)

	assert.Equal(t, 1, w.calls)
	assert.Equal(t, int64(1), producer.GetMetrics().MessagesFailed)
}

func TestProducer_PublishGivesUpAfterMaxRetries(t *testing.T) {
	boom := errors.New("connection refused")
	w := &fakeWriter{errs: []error{boom, boom, boom, boom, boom}}
	producer := newTestProducer(t, w)

	err := producer.Publish(context.Background(), "t", "k", []byte("v"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, w.calls) // first try + 3 retries
}

func TestProducer_PublishBatchRequiresTopic(t *testing.T) {
	producer := newTestProducer(t, &fakeWriter{})

	err := producer.PublishBatch(context.Background(), []Message{{Key: "k", Value: []byte("v")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic is empty")
}

func TestProducer_GetMetrics(t *testing.T) {
	producer := newTestProducer(t, &fakeWriter{})

	metrics := producer.GetMetrics()
	assert.Equal(t, int64(0), metrics.MessagesPublished)
	assert.Equal(t, int64(0), metrics.MessagesFailed)
	assert.Equal(t, int64(0), metrics.RetriesTotal)

	producer.metrics.MessagesPublished.Add(10)
	producer.metrics.MessagesFailed.Add(2)
	producer.metrics.RetriesTotal.Add(5)
	producer.metrics.PublishDuration.Add(int64(100 * time.Millisecond))

	metrics = producer.GetMetrics()
	assert.Equal(t, int64(10), metrics.MessagesPublished)
	assert.Equal(t, int64(2), metrics.MessagesFailed)
	assert.Equal(t, int64(5), metrics.RetriesTotal)
	assert.Equal(t, 10*time.Millisecond, metrics.AvgPublishTime)
}

func TestProducer_GetMetrics_NoPublished(t *testing.T) {
	producer := newTestProducer(t, &fakeWriter{})
	producer.metrics.PublishDuration.Add(int64(100 * time.Millisecond))

	assert.Equal(t, time.Duration(0), producer.GetMetrics().AvgPublishTime)
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	producer := newTestProducer(t, w)

	require.NoError(t, producer.Close())
	assert.True(t, producer.closed.Load())
	assert.True(t, w.closed)

	err := producer.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already closed")
}

func TestProducer_UseAfterClose(t *testing.T) {
	producer := newTestProducer(t, &fakeWriter{})
	producer.closed.Store(true)

	err := producer.Publish(context.Background(), "t", "test-key", []byte("test-value"))
	assert.ErrorIs(t, err, ErrProducerClosed)

	err = producer.PublishBatch(context.Background(), []Message{
		{Topic: "t", Key: "key1", Value: []byte("value1")},
		{Topic: "t", Key: "key2", Value: []byte("value2")},
	})
	assert.ErrorIs(t, err, ErrProducerClosed)

	err = producer.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "producer is closed")
}

func TestProducer_PublishBatch_EmptyMessages(t *testing.T) {
	producer := newTestProducer(t, &fakeWriter{})
	assert.NoError(t, producer.PublishBatch(context.Background(), []Message{}))
}

func TestSetDefaults(t *testing.T) {
	cfg := ProducerConfig{}
	setDefaults(&cfg)

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 100, cfg.BatchSize)
}

func TestSetDefaults_DoesNotOverrideExisting(t *testing.T) {
	cfg := ProducerConfig{
		MaxRetries:   5,
		RetryBackoff: 200 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		BatchSize:    50,
	}
	setDefaults(&cfg)

	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 50, cfg.BatchSize)
}

func BenchmarkProducer_GetMetrics(b *testing.B) {
	producer, err := NewProducer(ProducerConfig{
		Brokers: []string{"localhost:9092"},
		Logger:  zerolog.Nop(),
	})
	require.NoError(b, err)

	producer.metrics.MessagesPublished.Add(1000)
	producer.metrics.PublishDuration.Add(int64(1000 * time.Millisecond))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = producer.GetMetrics()
	}
}
