package transcode

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/media-pipeline/internal/events"
	"github.com/romariotrain/media-pipeline/internal/kafka"
	"github.com/romariotrain/media-pipeline/internal/objectstore"
)

type fakeCodec struct {
	delays map[string]time.Duration
	fail   map[string]error
	block  bool

	mu       sync.Mutex
	finished []string
	inputs   []string
}

func (c *fakeCodec) Transcode(ctx context.Context, inputURL string, p Profile, out io.Writer) error {
	c.mu.Lock()
	c.inputs = append(c.inputs, inputURL)
	c.mu.Unlock()

	if c.block {
		<-ctx.Done()
		return ctx.Err()
	}

	time.Sleep(c.delays[p.Name])
	defer func() {
		c.mu.Lock()
		c.finished = append(c.finished, p.Name)
		c.mu.Unlock()
	}()

	if _, err := io.WriteString(out, "rendition-"+p.Name); err != nil {
		return err
	}
	return c.fail[p.Name]
}

type published struct {
	topic   string
	key     string
	payload any
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (r *recordingPublisher) Publish(_ context.Context, topic, key string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, published{topic: topic, key: key, payload: payload})
	return r.err
}

func newTestPipeline(t *testing.T, codec Codec, cfg Config) (*Pipeline, *objectstore.Memory, *recordingPublisher) {
	t.Helper()

	store := objectstore.NewMemory()
	store.PutObject("abc123.mp4", []byte("source-video"), "video/mp4")
	pub := &recordingPublisher{}

	p, err := NewPipeline(cfg, store, codec, pub, zerolog.Nop())
	require.NoError(t, err)
	return p, store, pub
}

func resultNames(results []events.RenditionResult) []string {
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.ResolutionName
	}
	return names
}

func TestOutputKey(t *testing.T) {
	tests := []struct {
		prefix, key, name, ext string
		want                   string
	}{
		{"transcoded", "abc123.mp4", "720p", "mp4", "transcoded/abc123_720p.mp4"},
		{"transcoded/", "abc123.mov", "1080p", ".mp4", "transcoded/abc123_1080p.mp4"},
		{"transcoded", "no-extension", "480p", "mp4", "transcoded/no-extension_480p.mp4"},
		{"out", "dir/clip.v2.mkv", "720p", "mp4", "out/dir/clip.v2_720p.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, OutputKey(tt.prefix, tt.key, tt.name, tt.ext))
		})
	}
}

func TestTranscode_AllSucceed(t *testing.T) {
	codec := &fakeCodec{}
	p, store, _ := newTestPipeline(t, codec, DefaultConfig())

	completion := p.Transcode(context.Background(), "abc123.mp4")

	require.Len(t, completion.Results, 3)
	assert.Equal(t, []string{"1080p", "720p", "480p"}, resultNames(completion.Results))
	for _, r := range completion.Results {
		assert.NotEmpty(t, r.ETag)
		assert.Empty(t, r.Error)

		data, ok := store.Object(r.OutputKey)
		require.True(t, ok, r.OutputKey)
		assert.Equal(t, "rendition-"+r.ResolutionName, string(data))
	}
	assert.Equal(t, "transcoded/abc123_720p.mp4", completion.Results[1].OutputKey)
	assert.Equal(t, "video-processor", completion.CompletedBy)
	assert.Equal(t, "abc123.mp4", completion.ObjectKey)
}

func TestTranscode_ResultsFollowProfileOrder(t *testing.T) {
	codec := &fakeCodec{delays: map[string]time.Duration{
		"1080p": 60 * time.Millisecond,
		"720p":  30 * time.Millisecond,
		"480p":  0,
	}}
	p, _, _ := newTestPipeline(t, codec, DefaultConfig())

	completion := p.Transcode(context.Background(), "abc123.mp4")

	codec.mu.Lock()
	finished := append([]string(nil), codec.finished...)
	codec.mu.Unlock()

	assert.Equal(t, []string{"480p", "720p", "1080p"}, finished)
	assert.Equal(t, []string{"1080p", "720p", "480p"}, resultNames(completion.Results))
}

func TestTranscode_FailuresAreIsolated(t *testing.T) {
	codec := &fakeCodec{fail: map[string]error{
		"1080p": errors.New("exit status 1"),
		"480p":  errors.New("exit status 1"),
	}}
	p, store, _ := newTestPipeline(t, codec, DefaultConfig())

	completion := p.Transcode(context.Background(), "abc123.mp4")

	require.Len(t, completion.Results, 3)
	for _, r := range completion.Results {
		if r.ResolutionName == "720p" {
			assert.NotEmpty(t, r.ETag)
			assert.Empty(t, r.Error)
			continue
		}
		assert.Empty(t, r.ETag)
		assert.Contains(t, r.Error, "codec")
		_, ok := store.Object(r.OutputKey)
		assert.False(t, ok, "failed rendition must not be stored")
	}
	assert.True(t, completion.AnySucceeded())
}

func TestTranscode_MissingSource(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeCodec{}, DefaultConfig())

	completion := p.Transcode(context.Background(), "missing.mp4")

	require.Len(t, completion.Results, 3)
	for _, r := range completion.Results {
		assert.Empty(t, r.ETag)
		assert.Contains(t, r.Error, "sign")
	}
}

func TestTranscode_JobTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JobTimeout = 50 * time.Millisecond
	p, _, _ := newTestPipeline(t, &fakeCodec{block: true}, cfg)

	completion := p.Transcode(context.Background(), "abc123.mp4")

	require.Len(t, completion.Results, 3)
	for _, r := range completion.Results {
		assert.Contains(t, r.Error, ErrTimeout.Error())
	}
}

type panickingCodec struct{}

func (panickingCodec) Transcode(context.Context, string, Profile, io.Writer) error {
	panic("codec exploded")
}

func TestTranscode_CodecPanicBecomesResult(t *testing.T) {
	p, _, _ := newTestPipeline(t, panickingCodec{}, DefaultConfig())

	completion := p.Transcode(context.Background(), "abc123.mp4")

	require.Len(t, completion.Results, 3)
	for _, r := range completion.Results {
		assert.Contains(t, r.Error, "codec exploded")
	}
}

func TestOnTranscodeRequest_PublishesOneCompletion(t *testing.T) {
	codec := &fakeCodec{fail: map[string]error{"1080p": errors.New("boom"), "720p": errors.New("boom")}}
	p, _, pub := newTestPipeline(t, codec, DefaultConfig())

	err := p.OnTranscodeRequest(context.Background(), events.TranscodeRequest{
		ContentID: "content-1",
		ObjectKey: "abc123.mp4",
	})
	require.NoError(t, err)

	require.Len(t, pub.msgs, 1)
	msg := pub.msgs[0]
	assert.Equal(t, events.TopicTranscodeCompleted, msg.topic)
	assert.Equal(t, "abc123.mp4", msg.key)

	completion, ok := msg.payload.(events.TranscodeCompletion)
	require.True(t, ok)
	assert.Equal(t, "content-1", completion.ContentID)
	assert.Len(t, completion.Results, 3)
}

func TestOnTranscodeRequest_MissingObjectKey(t *testing.T) {
	codec := &fakeCodec{}
	p, _, pub := newTestPipeline(t, codec, DefaultConfig())

	err := p.OnTranscodeRequest(context.Background(), events.TranscodeRequest{ContentID: "content-1"})

	assert.NoError(t, err)
	assert.Empty(t, pub.msgs)
	assert.Empty(t, codec.inputs)
}

func TestOnTranscodeRequest_PublishError(t *testing.T) {
	p, _, pub := newTestPipeline(t, &fakeCodec{}, DefaultConfig())
	pub.err = kafka.ErrBrokerPublish

	err := p.OnTranscodeRequest(context.Background(), events.TranscodeRequest{ObjectKey: "abc123.mp4"})
	assert.ErrorIs(t, err, kafka.ErrBrokerPublish)
}

func TestHandleMessage(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		published int
	}{
		{"valid request", `{"contentId":"c1","objectKey":"abc123.mp4"}`, 1},
		{"nested object key", `{"contentId":"c1","metadata":{"objectKey":"abc123.mp4"}}`, 1},
		{"no object key", `{"contentId":"c1"}`, 0},
		{"not json", `not-json`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, pub := newTestPipeline(t, &fakeCodec{}, DefaultConfig())

			err := p.HandleMessage(context.Background(), kafka.Message{
				Topic: events.TopicTranscodeRequests,
				Key:   "c1",
				Value: []byte(tt.value),
			})

			assert.NoError(t, err)
			assert.Len(t, pub.msgs, tt.published)
		})
	}
}

func TestNewPipeline_CopiesProfiles(t *testing.T) {
	cfg := DefaultConfig()
	p, _, _ := newTestPipeline(t, &fakeCodec{}, cfg)

	cfg.Profiles[0].Name = "mutated"
	assert.Equal(t, "1080p", p.Profiles()[0].Name)

	got := p.Profiles()
	got[0].Name = "mutated"
	assert.Equal(t, "1080p", p.Profiles()[0].Name)
}

func TestNewPipeline_RejectsBadConfig(t *testing.T) {
	store := objectstore.NewMemory()

	cfg := DefaultConfig()
	cfg.Profiles = nil
	_, err := NewPipeline(cfg, store, &fakeCodec{}, &recordingPublisher{}, zerolog.Nop())
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.KeyPrefix = ""
	_, err = NewPipeline(cfg, store, &fakeCodec{}, &recordingPublisher{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestCompletionWireFormat(t *testing.T) {
	p, _, _ := newTestPipeline(t, &fakeCodec{fail: map[string]error{"480p": errors.New("boom")}}, DefaultConfig())

	data, err := json.Marshal(p.Transcode(context.Background(), "abc123.mp4"))
	require.NoError(t, err)

	s := string(data)
	assert.True(t, strings.Contains(s, `"resolutionName":"1080p"`))
	assert.True(t, strings.Contains(s, `"completedBy":"video-processor"`))
	assert.False(t, strings.Contains(s, `"contentId"`))
}
