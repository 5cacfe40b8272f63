// Package otoout renders PCM on the system audio device with oto.
package otoout

import (
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ebitengine/oto/v3"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/infra/audio"
)

// Context is the process-wide oto context. Only one may exist.
type Context struct {
	ctx *oto.Context
}

var _ audio.Output = (*Context)(nil)

// New opens the audio device for format f and waits until it is ready.
func New(f audio.Format, buffer time.Duration) (*Context, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   f.SampleRate,
		ChannelCount: f.ChannelCount,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   buffer,
	})
	if err != nil {
		return nil, errors.Wrap(err, "cannot create oto context")
	}
	<-ready

	zlog.Info().Msgf("audio: output ready (%s, buffer %s)", f, buffer)
	return &Context{ctx: ctx}, nil
}

// NewPlayer creates a paused player reading from r.
func (c *Context) NewPlayer(r io.Reader) audio.Player {
	return c.ctx.NewPlayer(r)
}

// Suspend pauses the device for every player.
func (c *Context) Suspend() error {
	if err := c.ctx.Suspend(); err != nil {
		return errors.Wrap(err, "cannot suspend oto context")
	}
	return nil
}

// Err reports a device error, if any.
func (c *Context) Err() error {
	return c.ctx.Err()
}
