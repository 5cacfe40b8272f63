package trigger

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ErrRejected marks an action refused by a guard.
var ErrRejected = errors.New("action rejected")

// Target is what actions drive. *show.Runner satisfies it.
type Target interface {
	Go() error
	GoTo(number int) error
	Pause() error
	Resume() error
	Stop() error
	Panic() error
}

// Dispatcher runs actions through the guard chain and applies them to the
// target. It is shared by every trigger source and the remote control.
type Dispatcher struct {
	target Target
	guards *Chain
	now    func() time.Time
}

// NewDispatcher creates a dispatcher. guards may be nil.
func NewDispatcher(target Target, guards *Chain) *Dispatcher {
	if guards == nil {
		guards = NewChain()
	}
	return &Dispatcher{
		target: target,
		guards: guards,
		now:    time.Now,
	}
}

// Dispatch applies one action.
func (d *Dispatcher) Dispatch(a Action) error {
	if result := d.guards.Execute(a, d.now()); !result.Accepted {
		zlog.Info().Msgf("trigger: rejected %s: %s", a, result.Code)
		return errors.Wrapf(ErrRejected, "%s: %s", a.Command, result.Code)
	}

	zlog.Debug().Msgf("trigger: %s", a)

	switch a.Command {
	case CmdGo:
		if a.HasCue {
			if err := d.target.GoTo(a.Cue); err != nil {
				return err
			}
		}
		return d.target.Go()
	case CmdGoTo:
		if !a.HasCue {
			return errors.New("goto requires a cue number")
		}
		return d.target.GoTo(a.Cue)
	case CmdPause:
		return d.target.Pause()
	case CmdResume:
		return d.target.Resume()
	case CmdStop:
		return d.target.Stop()
	case CmdPanic:
		return d.target.Panic()
	default:
		return errors.Newf("unsupported command: %d", a.Command)
	}
}

// Run starts every source and dispatches their actions until ctx is done.
// A failing source is logged and does not stop the others.
func (d *Dispatcher) Run(ctx context.Context, sources []Source) {
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(s Source) {
			defer wg.Done()

			zlog.Info().Msgf("trigger: source %s started", s.Name())
			err := s.Run(ctx, func(a Action) {
				if err := d.Dispatch(a); err != nil && !errors.Is(err, ErrRejected) {
					zlog.Warn().Err(err).Msgf("trigger: %s failed", a)
				}
			})
			if err != nil {
				zlog.Error().Err(err).Msgf("trigger: source %s stopped", s.Name())
				return
			}
			zlog.Info().Msgf("trigger: source %s stopped", s.Name())
		}(src)
	}
	wg.Wait()
}
