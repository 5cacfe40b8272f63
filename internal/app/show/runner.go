// Package show runs a cue list: it keeps the standby cursor, fires cues on
// GO and follows auto-follow chains to the end of the list.
package show

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/app/notification"
	"github.com/osa030/cuebox/internal/app/playback"
	"github.com/osa030/cuebox/internal/domain/cue"
	"github.com/osa030/cuebox/internal/domain/cuelist"
)

var (
	ErrNotStarted     = errors.New("show is not started")
	ErrAlreadyStarted = errors.New("show is already started")
	ErrClosed         = errors.New("show is closed")
	ErrCueNotFound    = errors.New("cue not found")
)

// Player is the playback engine the runner drives.
// *playback.Sequencer satisfies it.
type Player interface {
	PlayCue(c *cue.Cue)
	Pause()
	Resume()
	Stop()
	SetVolume(v float64)
	State() playback.State
	CurrentCue() *cue.Cue
	Subscribe() *playback.Subscription
	Unsubscribe(id string)
}

// Broadcaster delivers notifications to watchers.
type Broadcaster interface {
	Broadcast(n *notification.Notification)
}

// Config holds runner configuration.
type Config struct {
	AutoStandby bool               // Move standby to the next cue after GO
	Messages    *playback.Messages // Status templates, defaults to playback.DefaultMessages()
	OutboxSize  int                // Pending runner notifications, defaults to 64
}

// Status is a snapshot of the show.
type Status struct {
	ShowName      string
	Phase         Phase
	State         playback.State
	Standby       *cue.Cue
	Current       *cue.Cue
	LastFired     *cue.Cue
	LastMessage   string
	CueCount      int
	TotalDuration time.Duration
}

// Runner owns the operator-facing side of a show.
//
// Lock order is runner, then player. The player never calls back into the
// runner; its events arrive on a subscription drained by the runner's loop.
type Runner struct {
	mu sync.Mutex

	list        *cuelist.CueList
	player      Player
	notifier    Broadcaster
	messages    *playback.Messages
	autoStandby bool

	phase       Phase
	standby     *cue.Cue
	lastFired   *cue.Cue // Only this cue's completion advances the show
	lastMessage string

	sub    *playback.Subscription
	outbox chan *notification.Notification
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner creates a runner for list. notifier may be nil.
func NewRunner(list *cuelist.CueList, player Player, notifier Broadcaster, cfg Config) *Runner {
	msgs := cfg.Messages
	if msgs == nil {
		msgs = playback.DefaultMessages()
	}
	size := cfg.OutboxSize
	if size <= 0 {
		size = 64
	}

	return &Runner{
		list:        list,
		player:      player,
		notifier:    notifier,
		messages:    msgs,
		autoStandby: cfg.AutoStandby,
		phase:       PhaseIdle,
		outbox:      make(chan *notification.Notification, size),
	}
}

// Start subscribes to the player, puts the first cue in standby and begins
// following playback events until ctx is done or Close is called.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.phase {
	case PhaseIdle:
	case PhaseClosed:
		return ErrClosed
	default:
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.sub = r.player.Subscribe()

	zlog.Info().Msgf("show: starting %q with %d cues", r.list.Name, r.list.Len())
	r.setPhaseLocked(PhaseReady)
	r.moveStandbyLocked(r.list.First())

	go r.loop(ctx, r.sub, r.done)
	return nil
}

func (r *Runner) loop(ctx context.Context, sub *playback.Subscription, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done:
			return
		case e := <-sub.Events:
			r.handleEvent(e)
		case n := <-r.outbox:
			r.broadcast(n)
		}
	}
}

// Go fires the standby cue.
func (r *Runner) Go() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkStartedLocked(); err != nil {
		return err
	}

	c := r.standby
	if c == nil {
		r.statusLocked(playback.MsgNoCue, nil)
		return nil
	}

	zlog.Info().Msgf("show: GO %s", c)
	r.fireLocked(c)
	if r.autoStandby {
		r.moveStandbyLocked(r.list.After(c.Number))
	}
	return nil
}

// GoTo puts the cue with the given number in standby without firing it.
func (r *Runner) GoTo(number int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkStartedLocked(); err != nil {
		return err
	}

	c, ok := r.list.ByNumber(number)
	if !ok {
		return errors.Wrapf(ErrCueNotFound, "cue %d", number)
	}
	if r.phase == PhaseEnded {
		r.setPhaseLocked(PhaseReady)
	}
	r.moveStandbyLocked(c)
	return nil
}

// Pause pauses playback and any running wait.
func (r *Runner) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkStartedLocked(); err != nil {
		return err
	}
	r.player.Pause()
	return nil
}

// Resume resumes paused playback and waits.
func (r *Runner) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkStartedLocked(); err != nil {
		return err
	}
	r.player.Resume()
	return nil
}

// Stop stops everything and breaks any auto-follow chain. Standby is kept.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkStartedLocked(); err != nil {
		return err
	}
	r.stopLocked()
	return nil
}

// Panic stops everything and returns standby to the first cue.
func (r *Runner) Panic() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkStartedLocked(); err != nil {
		return err
	}
	zlog.Warn().Msg("show: panic")
	r.stopLocked()
	r.moveStandbyLocked(r.list.First())
	return nil
}

// SetVolume sets the master volume.
func (r *Runner) SetVolume(v float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkStartedLocked(); err != nil {
		return err
	}
	r.player.SetVolume(v)
	return nil
}

// Status returns a snapshot of the show.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Status{
		ShowName:      r.list.Name,
		Phase:         r.phase,
		State:         r.player.State(),
		Standby:       r.standby,
		Current:       r.player.CurrentCue(),
		LastFired:     r.lastFired,
		LastMessage:   r.lastMessage,
		CueCount:      r.list.Len(),
		TotalDuration: r.list.TotalDuration(),
	}
}

// List returns the cue list being run.
func (r *Runner) List() *cuelist.CueList {
	return r.list
}

// Close stops following playback events. The player is left to its owner.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.phase == PhaseClosed {
		r.mu.Unlock()
		return
	}
	r.phase = PhaseClosed
	cancel, done, sub := r.cancel, r.done, r.sub
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.player.Unsubscribe(sub.ID)
	zlog.Info().Msg("show: closed")
}

func (r *Runner) handleEvent(e playback.Event) {
	r.mu.Lock()
	if r.phase == PhaseClosed {
		r.mu.Unlock()
		return
	}

	n := &notification.Notification{
		State:   e.State.String(),
		Message: e.Message,
		Cue:     e.Cue,
		Phase:   r.phase.String(),
	}
	switch e.Type {
	case playback.EventStatus:
		n.Kind = notification.KindStatus
		r.lastMessage = e.Message
	case playback.EventStateChanged:
		n.Kind = notification.KindState
	case playback.EventTrackFailed:
		n.Kind = notification.KindTrackFailed
	case playback.EventCueComplete:
		n.Kind = notification.KindCueComplete
		r.followLocked(e.Cue)
	}
	r.mu.Unlock()

	r.broadcast(n)
}

// followLocked plays the cue after c when c is the last cue fired.
// Must be called with r.mu held.
func (r *Runner) followLocked(c *cue.Cue) {
	if r.phase != PhaseRunning || c == nil || r.lastFired != c {
		zlog.Debug().Msgf("show: ignoring completion of %s", c)
		return
	}

	next := r.list.After(c.Number)
	if next == nil {
		r.lastFired = nil
		r.setPhaseLocked(PhaseEnded)
		r.statusLocked(playback.MsgEndOfList, c)
		return
	}

	zlog.Info().Msgf("show: auto-follow %s", next)
	r.fireLocked(next)
	if r.autoStandby {
		r.moveStandbyLocked(r.list.After(next.Number))
	}
}

func (r *Runner) fireLocked(c *cue.Cue) {
	r.lastFired = c
	r.setPhaseLocked(PhaseRunning)
	r.player.PlayCue(c)
}

func (r *Runner) stopLocked() {
	r.player.Stop()
	r.lastFired = nil
	r.setPhaseLocked(PhaseReady)
}

func (r *Runner) checkStartedLocked() error {
	switch r.phase {
	case PhaseIdle:
		return ErrNotStarted
	case PhaseClosed:
		return ErrClosed
	}
	return nil
}

func (r *Runner) moveStandbyLocked(c *cue.Cue) {
	r.standby = c

	n := &notification.Notification{Kind: notification.KindStandby, Cue: c}
	if c != nil {
		n.Message = r.messages.Render(playback.MsgStandby, playback.MessageData{Cue: c})
		zlog.Info().Msgf("show: %s", n.Message)
	}
	r.enqueueLocked(n)
}

func (r *Runner) setPhaseLocked(p Phase) {
	if r.phase == p {
		return
	}
	zlog.Debug().Msgf("show: phase %s -> %s", r.phase, p)
	r.phase = p
	r.enqueueLocked(&notification.Notification{Kind: notification.KindPhase})
}

func (r *Runner) statusLocked(kind playback.MessageKind, c *cue.Cue) {
	msg := r.messages.Render(kind, playback.MessageData{Cue: c})
	zlog.Info().Msgf("show: %s", msg)
	r.lastMessage = msg
	r.enqueueLocked(&notification.Notification{
		Kind:    notification.KindStatus,
		Message: msg,
		Cue:     c,
	})
}

// enqueueLocked queues a runner notification for the loop to broadcast, so
// that every broadcast happens on one goroutine and keeps its order.
func (r *Runner) enqueueLocked(n *notification.Notification) {
	n.Phase = r.phase.String()
	select {
	case r.outbox <- n:
	default:
		zlog.Warn().Msgf("show: outbox full, dropped %s notification", n.Kind)
	}
}

func (r *Runner) broadcast(n *notification.Notification) {
	if r.notifier == nil {
		return
	}
	r.notifier.Broadcast(n)
}
