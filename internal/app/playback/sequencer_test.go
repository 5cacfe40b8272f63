package playback

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/cuebox/internal/app/schedule"
	"github.com/osa030/cuebox/internal/domain/cue"
)

type sequencerFixture struct {
	seq     *Sequencer
	pool    *Pool
	backend *fakeBackend
	sched   *schedule.Manual
	sub     *Subscription
}

func newSequencerFixture(t *testing.T, initial, maxSize int) *sequencerFixture {
	t.Helper()
	backend := &fakeBackend{}
	pool := NewPool(backend, PoolConfig{InitialSize: initial, MaxSize: maxSize})
	pool.Prewarm(initial)
	sched := schedule.NewManual()
	seq := NewSequencer(pool, sched, SequencerConfig{EventBufferSize: 256})
	t.Cleanup(func() {
		seq.Close()
		pool.Dispose()
	})
	return &sequencerFixture{
		seq:     seq,
		pool:    pool,
		backend: backend,
		sched:   sched,
		sub:     seq.Subscribe(),
	}
}

// drain returns every event delivered so far.
func (f *sequencerFixture) drain() []Event {
	var events []Event
	for {
		select {
		case e := <-f.sub.Events:
			events = append(events, e)
		default:
			return events
		}
	}
}

func ofType(events []Event, typ EventType) []Event {
	var out []Event
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func messages(events []Event) []string {
	var out []string
	for _, e := range ofType(events, EventStatus) {
		out = append(out, e.Message)
	}
	return out
}

func testCue(t *testing.T, number int, preWait, postWait time.Duration, follow bool) *cue.Cue {
	t.Helper()
	return &cue.Cue{
		Number:     number,
		Name:       "Cue",
		PreWait:    preWait,
		PostWait:   postWait,
		AutoFollow: follow,
		FilePath:   audioFile(t, "cue.wav"),
	}
}

func TestSequencer_PreWaitPlaybackPostWait(t *testing.T) {
	f := newSequencerFixture(t, 2, 4)
	c := testCue(t, 1, 5*time.Second, 3*time.Second, true)

	f.seq.PlayCue(c)
	assert.Equal(t, []time.Duration{5 * time.Second}, f.sched.Scheduled())
	assert.Equal(t, StatePreWait, f.seq.State())
	assert.Same(t, c, f.seq.CurrentCue())
	assert.Equal(t, 0, f.backend.opened())

	f.sched.Advance(4 * time.Second)
	assert.Equal(t, 0, f.backend.opened())

	f.sched.Advance(time.Second)
	require.Equal(t, 1, f.backend.opened())
	assert.True(t, f.backend.last().isPlaying())
	assert.Equal(t, StatePlaying, f.seq.State())
	assert.NotEmpty(t, f.seq.CurrentTrackID())

	f.backend.last().finish()
	assert.Equal(t, []time.Duration{5 * time.Second, 3 * time.Second}, f.sched.Scheduled())
	assert.Equal(t, StatePostWait, f.seq.State())
	assert.Empty(t, f.seq.CurrentTrackID())
	assert.Equal(t, 0, f.pool.ActiveCount())
	assert.Empty(t, ofType(f.drain(), EventCueComplete))

	f.sched.Advance(2 * time.Second)
	assert.Empty(t, ofType(f.drain(), EventCueComplete))

	f.sched.Advance(time.Second)
	complete := ofType(f.drain(), EventCueComplete)
	require.Len(t, complete, 1)
	assert.Same(t, c, complete[0].Cue)

	f.sched.Advance(time.Minute)
	assert.Empty(t, ofType(f.drain(), EventCueComplete))
	assert.Len(t, f.sched.Scheduled(), 2)
	assert.Equal(t, StateStopped, f.seq.State())
	assert.Nil(t, f.seq.CurrentCue())
}

func TestSequencer_NoAutoFollowNeverCompletes(t *testing.T) {
	for _, postWait := range []time.Duration{0, 3 * time.Second} {
		t.Run(postWait.String(), func(t *testing.T) {
			f := newSequencerFixture(t, 1, 2)
			c := testCue(t, 1, 0, postWait, false)

			f.seq.PlayCue(c)
			require.Equal(t, 1, f.backend.opened())
			f.backend.last().finish()
			f.sched.Advance(time.Minute)

			events := f.drain()
			assert.Empty(t, ofType(events, EventCueComplete))
			assert.Contains(t, messages(events), "Cue complete: Cue")
			assert.Empty(t, f.sched.Scheduled())
			assert.Equal(t, StateStopped, f.seq.State())
			assert.Nil(t, f.seq.CurrentCue())
		})
	}
}

func TestSequencer_AutoFollowWithoutPostWait(t *testing.T) {
	f := newSequencerFixture(t, 1, 2)
	c := testCue(t, 4, 0, 0, true)

	f.seq.PlayCue(c)
	f.backend.last().finish()

	complete := ofType(f.drain(), EventCueComplete)
	require.Len(t, complete, 1)
	assert.Equal(t, 4, complete[0].Cue.Number)
	assert.Empty(t, f.sched.Scheduled())
}

func TestSequencer_CompletionHookSeesTrackBeforeRelease(t *testing.T) {
	f := newSequencerFixture(t, 1, 2)
	c := testCue(t, 1, 0, 0, true)

	f.seq.PlayCue(c)
	f.backend.last().finish()

	events := f.drain()
	var sawComplete bool
	for _, e := range events {
		if e.Type == EventStatus && e.Message == "Cue complete: Cue" {
			sawComplete = true
		}
	}
	assert.True(t, sawComplete)
	// Track is back in the pool once every hook has run.
	assert.Equal(t, 0, f.pool.ActiveCount())
	assert.Equal(t, 1, f.pool.AvailableCount())
}

func TestSequencer_InvalidCues(t *testing.T) {
	tests := []struct {
		name string
		cue  *cue.Cue
		want string
	}{
		{name: "nil cue", cue: nil, want: "No cue to play"},
		{name: "empty path", cue: &cue.Cue{Number: 2}, want: "Cue 2 has no audio file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSequencerFixture(t, 1, 1)

			f.seq.PlayCue(tt.cue)

			assert.Equal(t, []string{tt.want}, messages(f.drain()))
			assert.Equal(t, 0, f.backend.opened())
			assert.Empty(t, f.sched.Scheduled())
			assert.Nil(t, f.seq.CurrentCue())
			assert.Equal(t, StateStopped, f.seq.State())
		})
	}
}

func TestSequencer_AcquireFailuresBecomeStatus(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		f := newSequencerFixture(t, 1, 1)
		c := &cue.Cue{Number: 1, Name: "Rain", FilePath: audioFile(t, "x.wav") + ".gone"}

		f.seq.PlayCue(c)

		assert.Equal(t, []string{"Audio file missing: x.wav.gone"}, messages(f.drain()))
		assert.Nil(t, f.seq.CurrentCue())
		assert.Equal(t, 1, f.pool.AvailableCount())
		assert.Equal(t, 0, f.pool.ActiveCount())
	})

	t.Run("missing file after pre-wait", func(t *testing.T) {
		f := newSequencerFixture(t, 1, 1)
		c := &cue.Cue{Number: 1, Name: "Rain", PreWait: time.Second, FilePath: audioFile(t, "x.wav") + ".gone"}

		f.seq.PlayCue(c)
		f.sched.Advance(time.Second)

		assert.Contains(t, messages(f.drain()), "Audio file missing: x.wav.gone")
		assert.Nil(t, f.seq.CurrentCue())
		assert.Equal(t, StateStopped, f.seq.State())
	})

	t.Run("pool exhausted", func(t *testing.T) {
		f := newSequencerFixture(t, 1, 1)
		first := testCue(t, 1, 0, 0, false)
		second := &cue.Cue{Number: 2, Name: "Wind", FilePath: first.FilePath}

		f.seq.PlayCue(first)
		f.drain()
		f.seq.PlayCue(second)

		assert.Equal(t, []string{"Too many cues playing, cannot start Wind"}, messages(f.drain()))
		assert.Same(t, first, f.seq.CurrentCue())
		assert.Equal(t, StatePlaying, f.seq.State())
	})

	t.Run("play error", func(t *testing.T) {
		f := newSequencerFixture(t, 1, 1)
		f.backend.playErr = errors.New("no output device")
		c := testCue(t, 1, 0, 0, true)

		f.seq.PlayCue(c)

		msgs := messages(f.drain())
		require.Len(t, msgs, 1)
		assert.Contains(t, msgs[0], "Error loading audio:")
		assert.Contains(t, msgs[0], "no output device")
		assert.Nil(t, f.seq.CurrentCue())
		assert.Empty(t, f.seq.CurrentTrackID())
		assert.Equal(t, 0, f.pool.ActiveCount())
		assert.Equal(t, StateStopped, f.seq.State())
	})
}

func TestSequencer_PlayingDominates(t *testing.T) {
	f := newSequencerFixture(t, 3, 3)

	f.seq.PlayCue(testCue(t, 1, 0, 0, false))
	f.seq.PlayCue(testCue(t, 2, 0, 0, false))
	f.seq.PlayCue(testCue(t, 3, 5*time.Second, 0, false))
	require.Equal(t, 3, f.pool.AvailableCount()+f.pool.ActiveCount())

	tracks := f.pool.ActiveTracks()
	require.Len(t, tracks, 2)
	tracks[0].Pause()
	assert.Equal(t, StatePlaying, f.seq.State())

	tracks[1].Pause()
	assert.Equal(t, StatePaused, f.seq.State())
}

func TestSequencer_PauseResumeDuringPreWait(t *testing.T) {
	f := newSequencerFixture(t, 1, 1)
	c := testCue(t, 1, 5*time.Second, 0, false)

	f.seq.PlayCue(c)
	f.sched.Advance(2 * time.Second)

	f.seq.Pause()
	assert.Equal(t, StatePaused, f.seq.State())
	f.sched.Advance(time.Minute)
	assert.Equal(t, 0, f.backend.opened())

	f.seq.Resume()
	assert.Equal(t, StatePreWait, f.seq.State())
	f.sched.Advance(2 * time.Second)
	assert.Equal(t, 0, f.backend.opened())
	f.sched.Advance(time.Second)
	assert.Equal(t, 1, f.backend.opened())
	assert.Equal(t, StatePlaying, f.seq.State())
}

func TestSequencer_PauseResumeDuringPostWait(t *testing.T) {
	f := newSequencerFixture(t, 1, 1)
	c := testCue(t, 1, 0, 3*time.Second, true)

	f.seq.PlayCue(c)
	f.backend.last().finish()
	assert.Equal(t, StatePostWait, f.seq.State())

	f.seq.Pause()
	assert.Equal(t, StatePaused, f.seq.State())
	f.sched.Advance(time.Minute)
	assert.Empty(t, ofType(f.drain(), EventCueComplete))

	f.seq.Resume()
	f.sched.Advance(3 * time.Second)
	assert.Len(t, ofType(f.drain(), EventCueComplete), 1)
}

func TestSequencer_PauseResumePlayback(t *testing.T) {
	f := newSequencerFixture(t, 1, 1)

	f.seq.PlayCue(testCue(t, 1, 0, 0, false))
	h := f.backend.last()

	f.seq.Pause()
	assert.Equal(t, StatePaused, f.seq.State())
	assert.False(t, h.isPlaying())

	f.seq.Resume()
	assert.Equal(t, StatePlaying, f.seq.State())
	assert.True(t, h.isPlaying())

	events := f.drain()
	var states []State
	for _, e := range ofType(events, EventStateChanged) {
		states = append(states, e.State)
	}
	assert.Equal(t, []State{StatePlaying, StatePaused, StatePlaying}, states)
	assert.Contains(t, messages(events), "Paused")
	assert.Contains(t, messages(events), "Resumed")
}

func TestSequencer_StopDuringPreWait(t *testing.T) {
	f := newSequencerFixture(t, 1, 1)

	f.seq.PlayCue(testCue(t, 1, 5*time.Second, 0, true))
	f.seq.Stop()

	assert.Equal(t, 0, f.sched.Pending())
	f.sched.Advance(time.Minute)
	assert.Equal(t, 0, f.backend.opened())
	assert.Equal(t, StateStopped, f.seq.State())
	assert.Nil(t, f.seq.CurrentCue())
}

func TestSequencer_StopDuringPlayback(t *testing.T) {
	f := newSequencerFixture(t, 2, 2)

	f.seq.PlayCue(testCue(t, 1, 0, 0, true))
	f.seq.PlayCue(testCue(t, 2, 0, 0, true))
	require.Equal(t, 2, f.pool.ActiveCount())
	h := f.backend.last()

	f.seq.Stop()

	assert.Equal(t, 0, f.pool.ActiveCount())
	assert.Equal(t, 2, f.pool.AvailableCount())
	assert.Empty(t, f.seq.CurrentTrackID())
	assert.Nil(t, f.seq.CurrentCue())
	assert.Equal(t, StateStopped, f.seq.State())
	assert.Contains(t, messages(f.drain()), "Stopped")

	// A late end report after stop triggers nothing.
	h.finish()
	assert.Empty(t, ofType(f.drain(), EventCueComplete))
}

func TestSequencer_StopDuringPostWait(t *testing.T) {
	f := newSequencerFixture(t, 1, 1)

	f.seq.PlayCue(testCue(t, 1, 0, 3*time.Second, true))
	f.backend.last().finish()
	f.seq.Stop()
	f.sched.Advance(time.Minute)

	assert.Empty(t, ofType(f.drain(), EventCueComplete))
	assert.Equal(t, StateStopped, f.seq.State())
}

func TestSequencer_StopWinsOverInFlightTrackEnd(t *testing.T) {
	tests := []struct {
		name string
		end  func(h *fakeHandle)
	}{
		{"end of media", func(h *fakeHandle) { h.finish() }},
		{"backend failure", func(h *fakeHandle) { h.fail(errors.New("device lost")) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSequencerFixture(t, 1, 1)
			f.seq.PlayCue(testCue(t, 1, 0, 3*time.Second, true))
			tr := f.pool.Track(f.seq.CurrentTrackID())
			require.NotNil(t, tr)
			h := f.backend.last()
			f.drain()

			// Hold the sequencer so the track's hooks block mid-flight,
			// then stop underneath them.
			f.seq.mu.Lock()
			ended := make(chan struct{})
			go func() {
				defer close(ended)
				tt.end(h)
			}()
			require.Eventually(t, func() bool { return tr.State() == StateStopped }, 2*time.Second, time.Millisecond)
			f.seq.stopLocked()
			f.seq.mu.Unlock()
			<-ended

			assert.Equal(t, StateStopped, f.seq.State())
			assert.Zero(t, f.sched.Pending())
			f.sched.Advance(time.Minute)

			events := f.drain()
			assert.Empty(t, ofType(events, EventCueComplete))
			assert.Empty(t, ofType(events, EventTrackFailed))
			assert.Equal(t, 0, f.pool.ActiveCount())
			assert.Equal(t, 1, f.pool.AvailableCount())
		})
	}
}

func TestSequencer_NewPreWaitReplacesOld(t *testing.T) {
	f := newSequencerFixture(t, 2, 2)
	a := testCue(t, 1, 5*time.Second, 0, false)
	b := testCue(t, 2, 2*time.Second, 0, false)

	f.seq.PlayCue(a)
	f.seq.PlayCue(b)
	assert.Equal(t, 1, f.sched.Pending())
	assert.Same(t, b, f.seq.CurrentCue())

	f.sched.Advance(10 * time.Second)
	require.Equal(t, 1, f.backend.opened())
	assert.Same(t, b, f.seq.CurrentCue())
}

func TestSequencer_TrackFailure(t *testing.T) {
	f := newSequencerFixture(t, 2, 2)
	a := testCue(t, 1, 0, 0, true)
	b := testCue(t, 2, 0, 0, true)

	f.seq.PlayCue(a)
	f.seq.PlayCue(b)
	f.drain()

	f.backend.handle(1).fail(errors.New("decoder crashed"))

	events := f.drain()
	failed := ofType(events, EventTrackFailed)
	require.Len(t, failed, 1)
	assert.Same(t, b, failed[0].Cue)
	assert.Contains(t, failed[0].Message, "decoder crashed")
	assert.True(t, errors.Is(failed[0].Err, ErrBackendFailure))
	assert.Empty(t, ofType(events, EventCueComplete))

	// The other cue keeps playing.
	assert.Equal(t, 1, f.pool.ActiveCount())
	assert.True(t, f.backend.handle(0).isPlaying())
	assert.Equal(t, StatePlaying, f.seq.State())
	assert.Empty(t, f.seq.CurrentTrackID())
}

func TestSequencer_SetVolume(t *testing.T) {
	f := newSequencerFixture(t, 1, 1)
	f.seq.PlayCue(testCue(t, 1, 0, 0, false))

	f.seq.SetVolume(0.5)
	assert.Equal(t, 0.5, f.backend.last().Volume())
}

func TestSequencer_Subscriptions(t *testing.T) {
	f := newSequencerFixture(t, 1, 1)
	other := f.seq.Subscribe()

	f.seq.Unsubscribe(other.ID)
	select {
	case <-other.Done:
	default:
		t.Fatal("expected unsubscribed Done to be closed")
	}

	f.seq.PlayCue(nil)
	assert.Len(t, f.drain(), 1)
	assert.Empty(t, other.Events)

	f.seq.Close()
	select {
	case <-f.sub.Done:
	default:
		t.Fatal("expected Done to be closed after Close")
	}

	// Closed sequencers ignore requests.
	f.seq.PlayCue(testCue(t, 1, 0, 0, false))
	assert.Equal(t, 0, f.backend.opened())
}
