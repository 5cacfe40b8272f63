package playback

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/app/schedule"
	"github.com/osa030/cuebox/internal/domain/cue"
)

// SequencerConfig holds sequencer configuration.
type SequencerConfig struct {
	Messages        *Messages // Status templates, defaults to DefaultMessages()
	EventBufferSize int       // Per-subscriber buffer, defaults to 64
}

// Sequencer turns a request to play a cue into a timed sequence:
// pre-wait, playback, post-wait, then a cue-complete event for auto-follow.
//
// Lock order is sequencer, then pool, then track. Track completion hooks run
// without pool or track locks held and take the sequencer lock themselves.
type Sequencer struct {
	mu sync.Mutex

	pool      *Pool
	scheduler schedule.Scheduler
	messages  *Messages

	currentCue     *cue.Cue
	currentTrackID string
	preWait        schedule.Timer // nil when no pre-wait is pending
	postWait       schedule.Timer // nil when no post-wait is pending
	lastState      State
	closed         bool
	epoch          uint64 // Bumped by Stop; hooks from an older epoch are ignored

	subsMu  sync.RWMutex
	subs    map[string]*Subscription
	bufSize int
}

// NewSequencer creates a sequencer driving tracks from pool.
func NewSequencer(pool *Pool, scheduler schedule.Scheduler, cfg SequencerConfig) *Sequencer {
	msgs := cfg.Messages
	if msgs == nil {
		msgs = DefaultMessages()
	}
	size := cfg.EventBufferSize
	if size <= 0 {
		size = defaultEventBufferSize
	}

	return &Sequencer{
		pool:      pool,
		scheduler: scheduler,
		messages:  msgs,
		lastState: StateStopped,
		subs:      make(map[string]*Subscription),
		bufSize:   size,
	}
}

// Subscribe registers a new event consumer.
func (s *Sequencer) Subscribe() *Subscription {
	sub := newSubscription(uuid.New().String(), s.bufSize)

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subs[sub.ID] = sub
	return sub
}

// Unsubscribe removes a consumer and closes its Done channel.
func (s *Sequencer) Unsubscribe(id string) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if sub, ok := s.subs[id]; ok {
		delete(s.subs, id)
		sub.close()
	}
}

// PlayCue starts the sequence for c. Failures are reported as status events
// and leave the sequencer state unchanged.
func (s *Sequencer) PlayCue(c *cue.Cue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if c == nil {
		s.statusLocked(MsgNoCue, nil, nil)
		return
	}
	if !c.HasAudio() {
		s.statusLocked(MsgNoAudio, c, nil)
		return
	}

	zlog.Debug().Msgf("playback: play cue: %s", c)

	if c.PreWait <= 0 {
		s.startPlaybackLocked(c)
		return
	}

	cancelTimer(&s.preWait)
	s.currentCue = c

	var timer schedule.Timer
	timer = s.scheduler.AfterFunc(c.PreWait, func() {
		s.onPreWaitElapsed(c, timer)
	})
	s.preWait = timer

	s.statusLocked(MsgPreWait, c, nil)
	s.publishStateLocked()
}

func (s *Sequencer) onPreWaitElapsed(c *cue.Cue, timer schedule.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Replaced by a newer pre-wait or cleared by Stop.
	if s.closed || s.preWait != timer {
		return
	}
	s.preWait = nil

	if !s.startPlaybackLocked(c) && s.currentCue == c {
		s.currentCue = nil
		s.publishStateLocked()
	}
}

// startPlaybackLocked acquires a track for c and plays it.
// Must be called with s.mu held.
func (s *Sequencer) startPlaybackLocked(c *cue.Cue) bool {
	epoch := s.epoch
	t, err := s.pool.Acquire(c.FilePath, Hooks{
		OnComplete: []CompletionHook{
			func(*Track) { s.publishState() },
			func(t *Track) { s.handleCueComplete(epoch, c, t) },
		},
		OnFailure: func(t *Track, err error) { s.handleTrackFailure(epoch, c, t, err) },
	})
	if err != nil {
		s.reportLocked(c, err)
		return false
	}

	prevCue, prevTrackID := s.currentCue, s.currentTrackID
	s.currentCue = c
	s.currentTrackID = t.ID()

	if err := t.Play(); err != nil {
		s.currentCue, s.currentTrackID = prevCue, prevTrackID
		s.pool.Release(t)
		s.reportLocked(c, err)
		return false
	}

	s.statusLocked(MsgPlaying, c, nil)
	s.publishStateLocked()
	return true
}

// handleCueComplete runs as a track completion hook, before the pool
// releases the track. A completion that raced with Stop is dropped.
func (s *Sequencer) handleCueComplete(epoch uint64, c *cue.Cue, t *Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || epoch != s.epoch {
		return
	}

	current := s.currentTrackID == t.ID()
	if current {
		s.currentTrackID = ""
	}
	s.statusLocked(MsgCueComplete, c, nil)

	if !c.Follows() {
		if current && s.currentCue == c {
			s.currentCue = nil
		}
		s.publishStateLocked()
		return
	}

	if c.PostWait <= 0 {
		s.completeLocked(c)
		return
	}

	cancelTimer(&s.postWait)

	var timer schedule.Timer
	timer = s.scheduler.AfterFunc(c.PostWait, func() {
		s.onPostWaitElapsed(c, timer)
	})
	s.postWait = timer

	s.statusLocked(MsgPostWait, c, nil)
	s.publishStateLocked()
}

func (s *Sequencer) onPostWaitElapsed(c *cue.Cue, timer schedule.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.postWait != timer {
		return
	}
	s.postWait = nil
	s.completeLocked(c)
}

// completeLocked signals that c finished and the next cue should follow.
// Must be called with s.mu held.
func (s *Sequencer) completeLocked(c *cue.Cue) {
	if s.currentCue == c && s.currentTrackID == "" {
		s.currentCue = nil
	}
	s.publishStateLocked()

	zlog.Debug().Msgf("playback: cue complete, auto-follow: %s", c)
	s.emitLocked(Event{
		Type:  EventCueComplete,
		State: s.lastState,
		Cue:   c,
	})
}

// handleTrackFailure runs when the backend fails after playback started. Only
// the affected track stops; the pool releases it afterwards.
func (s *Sequencer) handleTrackFailure(epoch uint64, c *cue.Cue, t *Track, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || epoch != s.epoch {
		return
	}
	if s.currentTrackID == t.ID() {
		s.currentTrackID = ""
		if s.currentCue == c {
			s.currentCue = nil
		}
	}

	msg := s.messages.Render(MsgTrackFailed, MessageData{Cue: c, Err: err})
	zlog.Error().Err(err).Msgf("playback: %s", msg)

	s.emitLocked(Event{
		Type:    EventTrackFailed,
		State:   s.stateLocked(),
		Message: msg,
		Cue:     c,
		TrackID: t.ID(),
		Err:     err,
	})
	s.emitLocked(Event{
		Type:    EventStatus,
		State:   s.stateLocked(),
		Message: msg,
		Cue:     c,
		TrackID: t.ID(),
	})
	s.publishStateLocked()
}

// Pause pauses every playing track and whichever wait is counting down.
func (s *Sequencer) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pool.PauseAll()
	if s.preWait != nil {
		s.preWait.Pause()
	}
	if s.postWait != nil {
		s.postWait.Pause()
	}
	s.statusLocked(MsgPaused, s.currentCue, nil)
	s.publishStateLocked()
}

// Resume resumes paused tracks and waits.
func (s *Sequencer) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pool.ResumeAll()
	if s.preWait != nil {
		s.preWait.Resume()
	}
	if s.postWait != nil {
		s.postWait.Resume()
	}
	s.statusLocked(MsgResumed, s.currentCue, nil)
	s.publishStateLocked()
}

// Stop stops all tracks, cancels both waits, and forgets the current cue.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.statusLocked(MsgStopped, nil, nil)
	s.publishStateLocked()
}

func (s *Sequencer) stopLocked() {
	s.epoch++
	s.pool.StopAll()
	if n := s.pool.ReleaseStopped(); n > 0 {
		zlog.Debug().Msgf("playback: returned %d stopped tracks to the pool", n)
	}
	cancelTimer(&s.preWait)
	cancelTimer(&s.postWait)
	s.currentCue = nil
	s.currentTrackID = ""
}

// SetVolume sets the gain of every track.
func (s *Sequencer) SetVolume(v float64) {
	s.pool.SetVolumeAll(v)
}

// State returns the aggregate playback state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// CurrentCue returns the cue being sequenced, or nil.
func (s *Sequencer) CurrentCue() *cue.Cue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentCue
}

// CurrentTrackID returns the id of the track playing the current cue, or "".
func (s *Sequencer) CurrentTrackID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTrackID
}

// Close stops playback and closes every subscription. The pool is left to
// its owner.
func (s *Sequencer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.stopLocked()
	s.closed = true
	s.mu.Unlock()

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for id, sub := range s.subs {
		delete(s.subs, id)
		sub.close()
	}
}

func (s *Sequencer) stateLocked() State {
	return Aggregate(s.pool.ActiveStates(), timerStatus(s.preWait), timerStatus(s.postWait))
}

func (s *Sequencer) publishState() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.publishStateLocked()
}

// publishStateLocked emits EventStateChanged when the aggregate state differs
// from the last one published.
func (s *Sequencer) publishStateLocked() {
	state := s.stateLocked()
	if state == s.lastState {
		return
	}
	zlog.Debug().Msgf("playback: state %s -> %s", s.lastState, state)
	s.lastState = state
	s.emitLocked(Event{
		Type:  EventStateChanged,
		State: state,
		Cue:   s.currentCue,
	})
}

func (s *Sequencer) statusLocked(kind MessageKind, c *cue.Cue, err error) {
	msg := s.messages.Render(kind, MessageData{Cue: c, Err: err})
	zlog.Info().Msgf("playback: %s", msg)
	s.emitLocked(Event{
		Type:    EventStatus,
		State:   s.stateLocked(),
		Message: msg,
		Cue:     c,
	})
}

// reportLocked converts a pool or backend failure into a status event.
func (s *Sequencer) reportLocked(c *cue.Cue, err error) {
	kind := MsgLoadError
	switch {
	case errors.Is(err, ErrNotFound):
		kind = MsgFileMissing
	case errors.Is(err, ErrPoolExhausted):
		kind = MsgPoolExhausted
	}
	zlog.Warn().Err(err).Msgf("playback: failed to start %s", c)
	s.statusLocked(kind, c, err)
}

func (s *Sequencer) emitLocked(e Event) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	for _, sub := range s.subs {
		if !sub.send(e) {
			zlog.Warn().Msgf("playback: subscriber %s is full, dropped %s event", sub.ID, e.Type)
		}
	}
}

func cancelTimer(t *schedule.Timer) {
	if *t != nil {
		(*t).Cancel()
		*t = nil
	}
}

func timerStatus(t schedule.Timer) schedule.Status {
	if t == nil {
		return schedule.StatusStopped
	}
	return t.Status()
}
