package playback

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/osa030/cuebox/internal/domain/media"
)

// fakeBackend records every opened handle. Callbacks are fired by the test.
type fakeBackend struct {
	mu      sync.Mutex
	handles []*fakeHandle
	openErr error
	playErr error
}

func (b *fakeBackend) Open(path string, cb media.Callbacks) (media.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openErr != nil {
		return nil, b.openErr
	}
	h := &fakeHandle{path: path, cb: cb, volume: 1, playErr: b.playErr}
	b.handles = append(b.handles, h)
	return h, nil
}

func (b *fakeBackend) opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handles)
}

func (b *fakeBackend) handle(i int) *fakeHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handles[i]
}

func (b *fakeBackend) last() *fakeHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handles[len(b.handles)-1]
}

type fakeHandle struct {
	mu      sync.Mutex
	path    string
	cb      media.Callbacks
	playing bool
	volume  float64
	pos     time.Duration
	closed  bool
	playErr error
}

func (h *fakeHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.playErr != nil {
		return h.playErr
	}
	h.playing = true
	return nil
}

func (h *fakeHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playing = false
	return nil
}

func (h *fakeHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playing = false
	return nil
}

func (h *fakeHandle) Seek(pos time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pos = pos
	return nil
}

func (h *fakeHandle) SetVolume(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.volume = v
}

func (h *fakeHandle) Volume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.volume
}

func (h *fakeHandle) Position() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos
}

func (h *fakeHandle) Duration() time.Duration {
	return 10 * time.Second
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.playing = false
	return nil
}

func (h *fakeHandle) isPlaying() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// finish simulates the media reaching its end.
func (h *fakeHandle) finish() {
	h.mu.Lock()
	h.playing = false
	h.mu.Unlock()
	h.cb.OnEnd()
}

// fail simulates an asynchronous decode error.
func (h *fakeHandle) fail(err error) {
	h.mu.Lock()
	h.playing = false
	h.mu.Unlock()
	h.cb.OnError(err)
}

// fakeClock is a settable clock for idle tracking.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 19, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// audioFile creates an empty file standing in for audio on disk.
func audioFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))
	return path
}
