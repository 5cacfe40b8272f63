package audio

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ErrTooLong is returned when a file decodes to more audio than allowed.
var ErrTooLong = errors.New("audio exceeds the decode limit")

// Decoder turns an audio file into PCM in a fixed format.
type Decoder interface {
	Decode(ctx context.Context, path string) ([]byte, error)
}

// FFmpeg decodes files by running the ffmpeg binary.
type FFmpeg struct {
	Path        string // Binary, defaults to "ffmpeg" on PATH
	Format      Format
	MaxDuration time.Duration // Zero means no limit
}

// NewFFmpeg creates an ffmpeg decoder producing PCM in format f.
func NewFFmpeg(path string, f Format) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path, Format: f}
}

// Decode runs ffmpeg and returns interleaved s16le samples, trimmed to whole
// frames. Output past MaxDuration kills ffmpeg and fails with ErrTooLong
// before the rest of the file is buffered.
func (d *FFmpeg) Decode(ctx context.Context, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, d.Path, d.args(path)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrapf(err, "ffmpeg decode %s", path)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "ffmpeg decode %s", path)
	}

	var r io.Reader = stdout
	limit := d.limit()
	if limit > 0 {
		r = io.LimitReader(stdout, limit+1)
	}
	out, readErr := io.ReadAll(r)
	if limit > 0 && int64(len(out)) > limit {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, errors.Wrapf(ErrTooLong, "ffmpeg decode %s: longer than %s", path, FormatDuration(d.MaxDuration))
	}

	if err := cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, errors.Wrapf(err, "ffmpeg decode %s: %s", path, msg)
		}
		return nil, errors.Wrapf(err, "ffmpeg decode %s", path)
	}
	if readErr != nil {
		return nil, errors.Wrapf(readErr, "ffmpeg decode %s", path)
	}

	frame := d.Format.FrameSize()
	if rem := len(out) % frame; rem != 0 {
		out = out[:len(out)-rem]
	}
	if len(out) == 0 {
		return nil, errors.Newf("ffmpeg decode %s: no audio", path)
	}

	zlog.Trace().Msgf("audio: decoded %s (%d bytes, %s)", path, len(out), d.Format.Duration(int64(len(out))))
	return out, nil
}

// limit returns the byte cap for MaxDuration, or 0 when unlimited.
func (d *FFmpeg) limit() int64 {
	if d.MaxDuration <= 0 {
		return 0
	}
	return d.Format.Offset(d.MaxDuration)
}

func (d *FFmpeg) args(path string) []string {
	return []string{
		"-nostdin",
		"-i", path,
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(d.Format.SampleRate),
		"-ac", strconv.Itoa(d.Format.ChannelCount),
		"-loglevel", "error",
		"pipe:1",
	}
}
