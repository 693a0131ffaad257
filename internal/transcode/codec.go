package transcode

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
)

// Codec converts the media at inputURL into one rendition written to out.
type Codec interface {
	Transcode(ctx context.Context, inputURL string, p Profile, out io.Writer) error
}

// FFmpeg runs the ffmpeg binary, reading the source over HTTP and writing a
// fragmented MP4 to stdout so the output can be streamed without seeking.
type FFmpeg struct {
	Path string
}

func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path}
}

func (f *FFmpeg) Args(inputURL string, p Profile) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputURL,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-b:v", p.VideoBitrate,
		"-b:a", "128k",
		"-ac", "2",
		"-ar", "44100",
		"-s", strconv.Itoa(p.Width) + "x" + strconv.Itoa(p.Height),
		"-preset", "medium",
		"-crf", "23",
		"-movflags", "+frag_keyframe+empty_moov",
		"-avoid_negative_ts", "make_zero",
		"-pix_fmt", "yuv420p",
		"-f", "mp4",
		"pipe:1",
	}
}

func (f *FFmpeg) Transcode(ctx context.Context, inputURL string, p Profile, out io.Writer) error {
	cmd := exec.CommandContext(ctx, f.Path, f.Args(inputURL, p)...)
	cmd.Stdout = out

	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if tail := stderr.String(); tail != "" {
			return fmt.Errorf("ffmpeg %s: %w: %s", p.Name, err, tail)
		}
		return fmt.Errorf("ffmpeg %s: %w", p.Name, err)
	}
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
