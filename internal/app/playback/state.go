// Package playback provides the cue playback engine: a pool of reusable
// tracks, the cue sequencer that drives them, and the aggregate state shown
// to operators.
package playback

import "github.com/osa030/cuebox/internal/app/schedule"

// State represents the playback state.
type State int

const (
	StateStopped  State = iota // Nothing playing, position at zero
	StatePlaying               // Audio is playing
	StatePaused                // Audio or a wait is paused
	StatePreWait               // Counting down before a cue starts
	StatePostWait              // Counting down after a cue, before auto-follow
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StatePreWait:
		return "pre_wait"
	case StatePostWait:
		return "post_wait"
	default:
		return "unknown"
	}
}

// Aggregate collapses the states of all active tracks and both wait timers
// into the single value shown to the operator. Tracks take precedence over
// timers; a single playing track makes the whole engine PLAYING.
func Aggregate(tracks []State, preWait, postWait schedule.Status) State {
	if len(tracks) > 0 {
		allPaused := true
		for _, s := range tracks {
			if s == StatePlaying {
				return StatePlaying
			}
			if s != StatePaused {
				allPaused = false
			}
		}
		if allPaused {
			return StatePaused
		}
	}

	switch {
	case preWait == schedule.StatusRunning:
		return StatePreWait
	case postWait == schedule.StatusRunning:
		return StatePostWait
	case preWait == schedule.StatusPaused, postWait == schedule.StatusPaused:
		return StatePaused
	default:
		return StateStopped
	}
}
