package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscodeRequest_SourceKey(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"top level", `{"contentId":"c1","objectKey":"a.mp4"}`, "a.mp4"},
		{"nested metadata", `{"contentId":"c1","metadata":{"objectKey":"b.mp4"}}`, "b.mp4"},
		{"top level wins", `{"objectKey":"a.mp4","metadata":{"objectKey":"b.mp4"}}`, "a.mp4"},
		{"missing", `{"contentId":"c1"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := Decode[TranscodeRequest]([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.SourceKey())
		})
	}
}

func TestTranscodeCompletion_AnySucceeded(t *testing.T) {
	c := TranscodeCompletion{Results: []RenditionResult{
		{ResolutionName: "1080p", Error: "ffmpeg exited"},
		{ResolutionName: "720p", ETag: "abc"},
	}}
	assert.True(t, c.AnySucceeded())

	c.Results[1] = RenditionResult{ResolutionName: "720p", Error: "upload failed"}
	assert.False(t, c.AnySucceeded())
}
