package audio

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/cuebox/internal/domain/media"
)

// Player is one output stream reading from a PCM source. *oto.Player
// satisfies it.
type Player interface {
	Play()
	Pause()
	IsPlaying() bool
	Seek(offset int64, whence int) (int64, error)
	SetVolume(v float64)
	Volume() float64
	BufferedSize() int
	Err() error
}

// handle binds one decoded file to a player. A watcher goroutine turns the
// player running dry into exactly one OnEnd per playback run.
type handle struct {
	mu      sync.Mutex
	player  Player
	src     *pcmSource
	format  Format
	cb      media.Callbacks
	running bool // Play was called and neither Pause, Stop nor the end followed
	closed  bool

	cancel context.CancelFunc
	done   chan struct{}
}

func newHandle(p Player, src *pcmSource, f Format, cb media.Callbacks, poll time.Duration) *handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{
		player: p,
		src:    src,
		format: f,
		cb:     cb,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.watch(ctx, poll)
	return h
}

func (h *handle) watch(ctx context.Context, poll time.Duration) {
	defer close(h.done)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.check()
		}
	}
}

// check fires the end or error callback once the player stops on its own.
func (h *handle) check() {
	h.mu.Lock()
	if !h.running || h.closed {
		h.mu.Unlock()
		return
	}
	if err := h.player.Err(); err != nil {
		h.running = false
		h.player.Pause()
		onError := h.cb.OnError
		h.mu.Unlock()

		if onError != nil {
			onError(errors.Wrap(err, "audio output failed"))
		}
		return
	}
	if h.player.IsPlaying() {
		h.mu.Unlock()
		return
	}
	h.running = false
	onEnd := h.cb.OnEnd
	h.mu.Unlock()

	if onEnd != nil {
		onEnd()
	}
}

func (h *handle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return errors.New("audio handle closed")
	}
	// Playing from the very end would report the end immediately; rewind.
	if h.src.offset() >= h.src.size() && h.player.BufferedSize() == 0 {
		if _, err := h.player.Seek(0, io.SeekStart); err != nil {
			return errors.Wrap(err, "failed to rewind")
		}
	}
	h.player.Play()
	h.running = true
	return nil
}

func (h *handle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.running = false
	h.player.Pause()
	return nil
}

func (h *handle) Stop() error {
	return h.Pause()
}

func (h *handle) Seek(pos time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	off := h.format.Offset(pos)
	if off > h.src.size() {
		off = h.src.size()
	}
	if _, err := h.player.Seek(off, io.SeekStart); err != nil {
		return errors.Wrapf(err, "failed to seek to %s", pos)
	}
	return nil
}

func (h *handle) SetVolume(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.player.SetVolume(v)
}

func (h *handle) Volume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.player.Volume()
}

// Position is the read offset minus what is still queued in the output.
func (h *handle) Position() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	played := h.src.offset() - int64(h.player.BufferedSize())
	if played < 0 {
		played = 0
	}
	return h.format.Duration(played)
}

func (h *handle) Duration() time.Duration {
	return h.format.Duration(h.src.size())
}

// Close stops output and the watcher. Further calls are no-ops. It may run on
// the watcher goroutine itself (from an OnEnd hook), so it does not wait.
func (h *handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.running = false
	h.player.Pause()
	h.mu.Unlock()

	h.cancel()
	return nil
}
