package transcode

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProfiles_Defaults(t *testing.T) {
	profiles, err := LoadProfiles("")
	require.NoError(t, err)
	assert.Equal(t, DefaultProfiles(), profiles)
	require.NoError(t, ValidateProfiles(profiles))
}

func TestLoadProfiles_FromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	content := `profiles:
  - name: 720p
    width: 1280
    height: 720
    videoBitrate: 1000k
  - name: 360p
    width: 640
    height: 360
    videoBitrate: 400k
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	profiles, err := LoadProfiles(path)
	require.NoError(t, err)
	assert.Equal(t, []Profile{
		{Name: "720p", Width: 1280, Height: 720, VideoBitrate: "1000k"},
		{Name: "360p", Width: 640, Height: 360, VideoBitrate: "400k"},
	}, profiles)
}

func TestLoadProfiles_Errors(t *testing.T) {
	_, err := LoadProfiles(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles: []\n"), 0o600))
	_, err = LoadProfiles(path)
	assert.Error(t, err)
}

func TestValidateProfiles(t *testing.T) {
	tests := []struct {
		name     string
		profiles []Profile
		wantErr  string
	}{
		{"empty", nil, "at least one profile"},
		{"no name", []Profile{{Width: 2, Height: 2, VideoBitrate: "1k"}}, "name is empty"},
		{"duplicate", []Profile{
			{Name: "a", Width: 2, Height: 2, VideoBitrate: "1k"},
			{Name: "a", Width: 2, Height: 2, VideoBitrate: "1k"},
		}, "duplicate name"},
		{"odd width", []Profile{{Name: "a", Width: 3, Height: 2, VideoBitrate: "1k"}}, "must be even"},
		{"zero height", []Profile{{Name: "a", Width: 2, Height: 0, VideoBitrate: "1k"}}, "must be positive"},
		{"bad bitrate", []Profile{{Name: "a", Width: 2, Height: 2, VideoBitrate: "fast"}}, "invalid video bitrate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProfiles(tt.profiles)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFFmpegArgs(t *testing.T) {
	f := NewFFmpeg("")
	assert.Equal(t, "ffmpeg", f.Path)

	args := strings.Join(f.Args("http://store/abc.mp4?token=x", Profile{Name: "720p", Width: 1280, Height: 720, VideoBitrate: "1000k"}), " ")

	assert.Contains(t, args, "-i http://store/abc.mp4?token=x")
	assert.Contains(t, args, "-c:v libx264")
	assert.Contains(t, args, "-c:a aac")
	assert.Contains(t, args, "-b:v 1000k")
	assert.Contains(t, args, "-b:a 128k")
	assert.Contains(t, args, "-ac 2")
	assert.Contains(t, args, "-ar 44100")
	assert.Contains(t, args, "-s 1280x720")
	assert.Contains(t, args, "-movflags +frag_keyframe+empty_moov")
	assert.Contains(t, args, "-pix_fmt yuv420p")
	assert.True(t, strings.HasSuffix(args, "-f mp4 pipe:1"))
}

func TestFFmpeg_MissingBinary(t *testing.T) {
	f := NewFFmpeg(filepath.Join(t.TempDir(), "no-such-ffmpeg"))

	var out bytes.Buffer
	err := f.Transcode(context.Background(), "http://example/x.mp4", DefaultProfiles()[0], &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1080p")
	assert.Zero(t, out.Len())
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{max: 5}
	_, _ = tb.Write([]byte("hello "))
	_, _ = tb.Write([]byte("world"))
	assert.Equal(t, "world", tb.String())
}
