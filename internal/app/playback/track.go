package playback

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/domain/media"
)

// CompletionHook runs when a track's media reaches its end.
type CompletionHook func(t *Track)

// Hooks are the caller's callbacks for one acquisition of a track.
type Hooks struct {
	// OnComplete run in order when the media ends. The pool's release always
	// runs after them.
	OnComplete []CompletionHook
	// OnFailure runs when the backend reports an error after playback started.
	// The pool's release runs after it; OnComplete hooks do not run.
	OnFailure func(t *Track, err error)
}

// Track is one reusable unit of playback capacity: a decoder handle plus its
// own state. Tracks are owned by a Pool.
type Track struct {
	mu sync.Mutex

	id         string
	handle     media.Handle
	generation uint64 // identifies the current binding; stale callbacks are ignored
	state      State
	filePath   string
	pooled     bool
	disposed   bool
	lastUsedAt time.Time
	volume     float64

	hooks   Hooks
	release CompletionHook

	now func() time.Time
}

func newTrack(now func() time.Time) *Track {
	return &Track{
		id:         uuid.New().String(),
		state:      StateStopped,
		lastUsedAt: now(),
		volume:     1,
		now:        now,
	}
}

// ID returns the unique track identifier.
func (t *Track) ID() string {
	return t.id
}

// State returns the track state (stopped, playing or paused).
func (t *Track) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsPlaying reports whether the track is playing.
func (t *Track) IsPlaying() bool {
	return t.State() == StatePlaying
}

// FilePath returns the bound file, or "" when no file is loaded.
func (t *Track) FilePath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filePath
}

// Pooled reports whether the track sits in the pool's available list.
func (t *Track) Pooled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pooled
}

// LastUsedAt returns when the track last changed state.
func (t *Track) LastUsedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastUsedAt
}

// Play starts or resumes playback.
func (t *Track) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.handle == nil {
		return errors.Mark(errors.Newf("no audio loaded on track %s", t.id), ErrBackendFailure)
	}
	if t.state == StatePlaying {
		return nil
	}
	if err := t.handle.Play(); err != nil {
		return backendFailure(err, "failed to play %s", t.filePath)
	}
	t.setStateLocked(StatePlaying)
	return nil
}

// Pause pauses a playing track. Other states are left alone.
func (t *Track) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.handle == nil || t.state != StatePlaying {
		return
	}
	if err := t.handle.Pause(); err != nil {
		zlog.Warn().Err(err).Msgf("playback: failed to pause track %s", t.id)
		return
	}
	t.setStateLocked(StatePaused)
}

// Stop halts playback and rewinds to the beginning.
func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// SetVolume sets linear gain, clamped to [0, 1].
func (t *Track) SetVolume(v float64) {
	v = clampVolume(v)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.volume = v
	if t.handle != nil {
		t.handle.SetVolume(v)
	}
}

// Volume returns the track gain.
func (t *Track) Volume() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.volume
}

// Position returns the current playback position.
func (t *Track) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.handle == nil {
		return 0
	}
	return t.handle.Position()
}

// Duration returns the total length of the loaded media.
func (t *Track) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.handle == nil {
		return 0
	}
	return t.handle.Duration()
}

// nextGeneration reserves the identifier for the next binding.
func (t *Track) nextGeneration() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation + 1
}

// bind attaches a freshly opened handle. The previous handle, if any, is closed.
func (t *Track) bind(h media.Handle, gen uint64, path string, hooks Hooks, release CompletionHook) {
	t.mu.Lock()
	old := t.handle
	t.handle = h
	t.generation = gen
	t.filePath = path
	t.pooled = false
	t.hooks = hooks
	t.release = release
	t.handle.SetVolume(t.volume)
	t.setStateLocked(StateStopped)
	t.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			zlog.Warn().Err(err).Msgf("playback: failed to close previous handle on track %s", t.id)
		}
	}
}

// reset prepares the track for reuse from the pool.
func (t *Track) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.hooks = Hooks{}
	t.release = nil
	t.pooled = true
	t.lastUsedAt = t.now()
}

// dispose releases the decoder. Safe to call more than once.
func (t *Track) dispose() {
	t.mu.Lock()
	h := t.handle
	t.handle = nil
	t.filePath = ""
	t.hooks = Hooks{}
	t.release = nil
	t.disposed = true
	t.setStateLocked(StateStopped)
	t.mu.Unlock()

	if h != nil {
		if err := h.Close(); err != nil {
			zlog.Warn().Err(err).Msgf("playback: failed to close handle on track %s", t.id)
		}
	}
}

// callbacks returns backend callbacks bound to generation gen.
func (t *Track) callbacks(gen uint64) media.Callbacks {
	return media.Callbacks{
		OnEnd:   func() { t.handleEnd(gen) },
		OnError: func(err error) { t.handleError(gen, err) },
	}
}

// handleEnd runs on the backend's goroutine when the media reaches its end.
func (t *Track) handleEnd(gen uint64) {
	t.mu.Lock()
	if gen != t.generation || t.disposed || t.pooled {
		t.mu.Unlock()
		return
	}
	t.setStateLocked(StateStopped)
	if err := t.handle.Seek(0); err != nil {
		zlog.Warn().Err(err).Msgf("playback: failed to rewind track %s", t.id)
	}
	hooks := t.hooks.OnComplete
	release := t.release
	t.hooks = Hooks{}
	t.release = nil
	t.mu.Unlock()

	zlog.Debug().Msgf("playback: track ended: id=%s hooks=%d", t.id, len(hooks))

	for i, h := range hooks {
		t.runHook(i, h)
	}
	if release != nil {
		t.runHook(len(hooks), release)
	}
}

// handleError runs on the backend's goroutine when decoding or output fails.
func (t *Track) handleError(gen uint64, err error) {
	t.mu.Lock()
	if gen != t.generation || t.disposed || t.pooled {
		t.mu.Unlock()
		return
	}
	t.stopLocked()
	onFailure := t.hooks.OnFailure
	release := t.release
	t.hooks = Hooks{}
	t.release = nil
	path := t.filePath
	t.mu.Unlock()

	zlog.Error().Err(err).Msgf("playback: media error on track %s (%s)", t.id, path)

	if onFailure != nil {
		func() {
			defer t.recoverHook("failure")
			onFailure(t, errors.Mark(err, ErrBackendFailure))
		}()
	}
	if release != nil {
		t.runHook(0, release)
	}
}

func (t *Track) runHook(i int, h CompletionHook) {
	defer t.recoverHook(i)
	h(t)
}

func (t *Track) recoverHook(which any) {
	if r := recover(); r != nil {
		zlog.Error().Msgf("playback: hook %v panicked on track %s: %v", which, t.id, r)
	}
}

// stopLocked must be called with t.mu held.
func (t *Track) stopLocked() {
	if t.handle == nil {
		t.setStateLocked(StateStopped)
		return
	}
	if err := t.handle.Stop(); err != nil {
		zlog.Warn().Err(err).Msgf("playback: failed to stop track %s", t.id)
	}
	if err := t.handle.Seek(0); err != nil {
		zlog.Warn().Err(err).Msgf("playback: failed to rewind track %s", t.id)
	}
	t.setStateLocked(StateStopped)
}

// setStateLocked must be called with t.mu held.
func (t *Track) setStateLocked(s State) {
	t.state = s
	t.lastUsedAt = t.now()
}

func clampVolume(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
