package playback

import (
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/domain/media"
)

// Pool defaults.
const (
	DefaultInitialSize   = 5
	DefaultMaxSize       = 20
	DefaultCullInterval  = 10 * time.Second
	DefaultIdleThreshold = 30 * time.Second
)

// PoolConfig holds track pool configuration.
type PoolConfig struct {
	InitialSize int              // Resident tracks kept after release (min 1)
	MaxSize     int              // Upper bound on resident tracks (min InitialSize)
	Volume      float64          // Initial gain, zero selects full gain
	Now         func() time.Time // Clock used for idle tracking, defaults to time.Now
}

// Pool hands out reusable tracks, reclaims them after use, and bounds how many
// exist at once.
//
// Every track is in exactly one of available or active while the pool is
// alive. A track being bound to a new file in Acquire is counted in reserved
// and is in neither.
type Pool struct {
	mu sync.Mutex

	backend   media.Backend
	available []*Track          // FIFO, index 0 is reused first
	active    map[string]*Track // Keyed by track id
	reserved  int               // Tracks taken out by an in-flight Acquire

	initialSize int
	maxSize     int
	volume      float64
	disposed    bool
	now         func() time.Time

	// Culling schedule. cullMu serialises EnableCulling and DisableCulling.
	cullMu sync.Mutex
	culler *culler
}

// NewPool creates an empty pool. Call Prewarm to create the resident tracks.
func NewPool(backend media.Backend, cfg PoolConfig) *Pool {
	initial := max(1, cfg.InitialSize)
	maxSize := max(initial, cfg.MaxSize)
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	volume := cfg.Volume
	if volume == 0 {
		volume = 1
	}

	return &Pool{
		backend:     backend,
		available:   make([]*Track, 0, initial),
		active:      make(map[string]*Track),
		initialSize: initial,
		maxSize:     maxSize,
		volume:      clampVolume(volume),
		now:         now,
	}
}

// Prewarm creates up to n idle tracks so the first cues start without
// allocation. Repeated calls add more tracks but never grow the pool past
// its maximum size. Returns the number of tracks created.
func (p *Pool) Prewarm(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed || n <= 0 {
		return 0
	}
	room := p.maxSize - p.totalLocked()
	if n > room {
		n = room
	}
	for i := 0; i < n; i++ {
		t := newTrack(p.now)
		t.pooled = true
		t.volume = p.volume
		p.available = append(p.available, t)
	}

	zlog.Debug().Msgf("playback: prewarmed %d tracks (available=%d)", max(n, 0), len(p.available))
	return max(n, 0)
}

// Acquire binds a track to the file at path and hands it to the caller, who
// has exclusive use of it until it is released. When the media ends, the
// hooks run in order and the pool then releases the track.
//
// It never blocks waiting for capacity: it fails with ErrPoolExhausted when
// maxSize tracks already exist.
func (p *Pool) Acquire(path string, hooks Hooks) (*Track, error) {
	if path == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "empty file path")
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(ErrNotFound, "%s", path)
		}
		return nil, backendFailure(err, "failed to stat %s", path)
	}

	t, reused, err := p.reserve()
	if err != nil {
		return nil, err
	}

	gen := t.nextGeneration()
	h, err := p.backend.Open(path, t.callbacks(gen))
	if err != nil {
		p.unreserve(t, reused)
		return nil, backendFailure(err, "failed to open %s", path)
	}
	t.bind(h, gen, path, hooks, p.Release)

	p.mu.Lock()
	p.reserved--
	if p.disposed {
		p.mu.Unlock()
		t.dispose()
		return nil, errors.Wrapf(ErrPoolDisposed, "acquire %s", path)
	}
	t.SetVolume(p.volume)
	p.active[t.id] = t
	active := len(p.active)
	p.mu.Unlock()

	zlog.Debug().Msgf("playback: acquired track %s for %s (reused=%t, active=%d)", t.id, path, reused, active)
	return t, nil
}

// reserve takes the first available track, or creates one while under maxSize.
func (p *Pool) reserve() (*Track, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed {
		return nil, false, errors.WithStack(ErrPoolDisposed)
	}

	if len(p.available) > 0 {
		t := p.available[0]
		p.available[0] = nil
		p.available = p.available[1:]
		p.reserved++
		return t, true, nil
	}

	if p.totalLocked() >= p.maxSize {
		return nil, false, errors.Wrapf(ErrPoolExhausted, "%d tracks in use", p.maxSize)
	}
	t := newTrack(p.now)
	t.volume = p.volume
	p.reserved++
	return t, false, nil
}

// unreserve puts a track back after a failed open, leaving counts as they were.
func (p *Pool) unreserve(t *Track, reused bool) {
	p.mu.Lock()
	p.reserved--
	keep := reused && !p.disposed
	if keep {
		p.available = append([]*Track{t}, p.available...)
	}
	p.mu.Unlock()

	if !keep {
		t.dispose()
	}
}

// Release returns a track to the pool. It is kept for reuse while fewer than
// initialSize tracks are available and disposed otherwise. Releasing nil, an
// unknown track, or an already released track does nothing.
func (p *Pool) Release(t *Track) {
	if t == nil {
		return
	}

	p.mu.Lock()
	if cur, ok := p.active[t.id]; !ok || cur != t {
		p.mu.Unlock()
		return
	}
	delete(p.active, t.id)
	t.reset()
	keep := !p.disposed && len(p.available) < p.initialSize
	if keep {
		p.available = append(p.available, t)
	}
	available := len(p.available)
	p.mu.Unlock()

	if !keep {
		t.dispose()
	}
	zlog.Debug().Msgf("playback: released track %s (kept=%t, available=%d)", t.id, keep, available)
}

// ForceRelease stops and releases the active track with the given id.
func (p *Pool) ForceRelease(id string) {
	t := p.Track(id)
	if t == nil {
		return
	}
	t.Stop()
	p.Release(t)
}

// ReleaseStopped releases every active track that is not playing or paused.
// Tracks stopped by StopAll never reach their end, so nothing else would
// return them to the pool.
func (p *Pool) ReleaseStopped() int {
	var stopped []*Track
	for _, t := range p.ActiveTracks() {
		if t.State() == StateStopped {
			stopped = append(stopped, t)
		}
	}
	for _, t := range stopped {
		p.Release(t)
	}
	return len(stopped)
}

// Cull disposes every available track idle for longer than idle at now.
// Active tracks are never touched. Returns the number disposed.
func (p *Pool) Cull(now time.Time, idle time.Duration) int {
	if idle < 0 {
		idle = 0
	}

	p.mu.Lock()
	kept := make([]*Track, 0, len(p.available))
	var culled []*Track
	for _, t := range p.available {
		if now.Sub(t.LastUsedAt()) > idle {
			culled = append(culled, t)
		} else {
			kept = append(kept, t)
		}
	}
	p.available = kept
	p.mu.Unlock()

	for _, t := range culled {
		t.dispose()
	}
	if len(culled) > 0 {
		zlog.Debug().Msgf("playback: culled %d idle tracks (available=%d)", len(culled), len(kept))
	}
	return len(culled)
}

// StopAll stops every active track.
func (p *Pool) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, t := range p.active {
		t.Stop()
	}
}

// PauseAll pauses every playing track.
func (p *Pool) PauseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, t := range p.active {
		if t.State() == StatePlaying {
			t.Pause()
		}
	}
}

// ResumeAll resumes every paused track. Stopped tracks stay stopped.
func (p *Pool) ResumeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, t := range p.active {
		if t.State() != StatePaused {
			continue
		}
		if err := t.Play(); err != nil {
			zlog.Warn().Err(err).Msgf("playback: failed to resume track %s", t.id)
		}
	}
}

// SetVolumeAll sets the gain of every track, clamped to [0, 1]. Tracks created
// later start at the same gain.
func (p *Pool) SetVolumeAll(v float64) {
	v = clampVolume(v)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.volume = v
	for _, t := range p.active {
		t.SetVolume(v)
	}
	for _, t := range p.available {
		t.SetVolume(v)
	}
}

// Volume returns the pool gain.
func (p *Pool) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Track returns the active track with the given id, or nil.
func (p *Pool) Track(id string) *Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active[id]
}

// ActiveTracks returns a snapshot of the active tracks.
func (p *Pool) ActiveTracks() []*Track {
	p.mu.Lock()
	defer p.mu.Unlock()

	tracks := make([]*Track, 0, len(p.active))
	for _, t := range p.active {
		tracks = append(tracks, t)
	}
	return tracks
}

// ActiveStates returns the state of every active track.
func (p *Pool) ActiveStates() []State {
	p.mu.Lock()
	defer p.mu.Unlock()

	states := make([]State, 0, len(p.active))
	for _, t := range p.active {
		states = append(states, t.State())
	}
	return states
}

// ActiveCount returns the number of tracks in use.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// AvailableCount returns the number of idle tracks.
func (p *Pool) AvailableCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available)
}

// TotalCount returns the number of resident tracks.
func (p *Pool) TotalCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active) + len(p.available)
}

// Dispose stops the culling schedule and disposes every track. The pool is
// unusable afterwards. Calling it again does nothing.
func (p *Pool) Dispose() {
	p.DisableCulling()

	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	tracks := make([]*Track, 0, len(p.active)+len(p.available))
	for _, t := range p.active {
		tracks = append(tracks, t)
	}
	tracks = append(tracks, p.available...)
	p.active = make(map[string]*Track)
	p.available = nil
	p.mu.Unlock()

	for _, t := range tracks {
		t.dispose()
	}
	zlog.Debug().Msgf("playback: pool disposed (%d tracks)", len(tracks))
}

func (p *Pool) totalLocked() int {
	return len(p.active) + len(p.available) + p.reserved
}
