package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultFFmpegPath    = "ffmpeg"
	defaultFFmpegTimeout = 2 * time.Hour
	stderrTailBytes      = 2048
)

// CommandRunner runs an external command and returns its stderr.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// FFmpeg decodes media containers to PCM WAV using the ffmpeg binary.
type FFmpeg struct {
	path    string
	timeout time.Duration
	runner  CommandRunner
}

// FFmpegOption configures an FFmpeg.
type FFmpegOption func(*FFmpeg)

// WithCommandRunner replaces the process runner, mainly for tests.
func WithCommandRunner(r CommandRunner) FFmpegOption {
	return func(f *FFmpeg) {
		f.runner = r
	}
}

// NewFFmpeg creates an FFmpeg wrapper. Empty path and non-positive timeout use defaults.
func NewFFmpeg(path string, timeout time.Duration, opts ...FFmpegOption) *FFmpeg {
	if path == "" {
		path = defaultFFmpegPath
	}
	if timeout <= 0 {
		timeout = defaultFFmpegTimeout
	}
	f := &FFmpeg{
		path:    path,
		timeout: timeout,
		runner:  execRunner{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WAVPath returns the path of the audio extracted from src: same directory
// and stem, .wav extension.
func WAVPath(src string) string {
	return strings.TrimSuffix(src, filepath.Ext(src)) + ".wav"
}

// ExtractAudio writes the audio track of video to WAVPath(video.Path) and
// returns the probed result. The source file is left in place.
func (f *FFmpeg) ExtractAudio(ctx context.Context, video File) (File, error) {
	dst := WAVPath(video.Path)
	if err := f.Decode(ctx, video.Path, dst); err != nil {
		return File{}, err
	}
	out, err := Probe(dst)
	if err != nil {
		return File{}, fmt.Errorf("%w: output not readable: %v", ErrExtraction, err)
	}
	return out, nil
}

// Decode converts any container ffmpeg understands into a 16-bit PCM WAV at dst.
// A failed conversion removes whatever was written to dst.
func (f *FFmpeg) Decode(ctx context.Context, src, dst string) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-y",
		"-i", src,
		"-vn",
		"-acodec", "pcm_s16le",
		"-rf64", "auto",
		"-f", "wav",
		dst,
	}

	stderr, err := f.runner.Run(ctx, f.path, args...)
	if err != nil {
		_ = os.Remove(dst)
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return fmt.Errorf("%w: %s: ffmpeg timed out after %v", ErrExtraction, src, f.timeout)
		case ctx.Err() != nil:
			return fmt.Errorf("%w: %s: ffmpeg interrupted: %w", ErrExtraction, src, ctx.Err())
		}
		return fmt.Errorf("%w: %s: %v: %s", ErrExtraction, src, err, tail(stderr))
	}
	return nil
}

func tail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > stderrTailBytes {
		s = "..." + s[len(s)-stderrTailBytes:]
	}
	return s
}
