package audio

import (
	"context"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/domain/media"
)

// Output creates players on an audio device.
type Output interface {
	NewPlayer(r io.Reader) Player
}

// Config holds backend configuration.
type Config struct {
	Format        Format
	PollInterval  time.Duration // How often handles check for end of media
	DecodeTimeout time.Duration // Upper bound for decoding one file
	MaxDuration   time.Duration // Longest decoded file accepted, zero means no limit
}

// Default backend timings.
const (
	DefaultPollInterval  = 20 * time.Millisecond
	DefaultDecodeTimeout = 2 * time.Minute
)

// Backend opens audio files as media handles. Files are decoded completely
// on Open so that playback, seeking and duration are exact.
type Backend struct {
	out     Output
	decoder Decoder
	cfg     Config
}

var _ media.Backend = (*Backend)(nil)

// NewBackend creates a backend rendering through out.
func NewBackend(out Output, decoder Decoder, cfg Config) *Backend {
	if cfg.Format.SampleRate == 0 || cfg.Format.ChannelCount == 0 {
		cfg.Format = DefaultFormat()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.DecodeTimeout <= 0 {
		cfg.DecodeTimeout = DefaultDecodeTimeout
	}
	return &Backend{out: out, decoder: decoder, cfg: cfg}
}

// Open decodes path and returns a handle ready to play.
func (b *Backend) Open(path string, cb media.Callbacks) (media.Handle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.DecodeTimeout)
	defer cancel()

	start := time.Now()
	data, err := b.decode(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}

	src := newPCMSource(data)
	h := newHandle(b.out.NewPlayer(src), src, b.cfg.Format, cb, b.cfg.PollInterval)

	zlog.Debug().Msgf("audio: opened %s (%s, decoded in %s)", path, FormatDuration(h.Duration()), time.Since(start).Round(time.Millisecond))
	return h, nil
}

// Length decodes path and returns its playback length.
func (b *Backend) Length(ctx context.Context, path string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.DecodeTimeout)
	defer cancel()

	data, err := b.decode(ctx, path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to measure %s", path)
	}
	return b.cfg.Format.Duration(int64(len(data))), nil
}

func (b *Backend) decode(ctx context.Context, path string) ([]byte, error) {
	data, err := b.decoder.Decode(ctx, path)
	if err != nil {
		return nil, err
	}
	if b.cfg.MaxDuration > 0 && int64(len(data)) > b.cfg.Format.Offset(b.cfg.MaxDuration) {
		return nil, errors.Wrapf(ErrTooLong, "%s is longer than %s", FormatDuration(b.cfg.Format.Duration(int64(len(data)))), FormatDuration(b.cfg.MaxDuration))
	}
	return data, nil
}
