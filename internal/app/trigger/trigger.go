// Package trigger turns operator input (console keys, MIDI notes, MIDI Show
// Control) into show commands.
package trigger

import (
	"context"
	"fmt"
)

// Command is an operator command.
type Command int

const (
	CmdGo     Command = iota // Fire the standby cue
	CmdGoTo                  // Put a cue in standby
	CmdPause                 // Pause playback and waits
	CmdResume                // Resume playback and waits
	CmdStop                  // Stop everything
	CmdPanic                 // Stop everything and return to the first cue
)

// String returns the string representation of the command.
func (c Command) String() string {
	switch c {
	case CmdGo:
		return "go"
	case CmdGoTo:
		return "goto"
	case CmdPause:
		return "pause"
	case CmdResume:
		return "resume"
	case CmdStop:
		return "stop"
	case CmdPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// Action is one command from a trigger source.
type Action struct {
	Command Command
	Cue     int  // Target cue number when HasCue is set
	HasCue  bool // GO with a cue number fires that cue; GOTO always has one
	Source  string
}

// String returns a short description for logs.
func (a Action) String() string {
	if a.HasCue {
		return fmt.Sprintf("%s %d (%s)", a.Command, a.Cue, a.Source)
	}
	return fmt.Sprintf("%s (%s)", a.Command, a.Source)
}

// Source produces actions from one input device.
type Source interface {
	// Name returns the source name (used in config).
	Name() string
	// Run delivers actions to emit until ctx is done or the input ends.
	Run(ctx context.Context, emit func(Action)) error
}
