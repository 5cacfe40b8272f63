// Package cue provides the Cue domain entity.
package cue

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// Cue represents one scheduled audio-playback instruction.
// Cues are owned by the cue list; the sequencer only references them.
type Cue struct {
	Number     int           `validate:"gte=0"` // Cue number shown to the operator
	Name       string        // Display name
	Duration   time.Duration `validate:"gte=0"` // Informational only
	PreWait    time.Duration `validate:"gte=0"` // Delay before audio starts
	PostWait   time.Duration `validate:"gte=0"` // Delay after audio ends, before auto-follow
	AutoFollow bool          // Trigger the next cue when this one completes
	FilePath   string        `validate:"required"` // Audio file on disk
}

var validate = validator.New()

// Validate checks the cue's field bounds.
func (c *Cue) Validate() error {
	if c == nil {
		return errors.New("cue is nil")
	}
	if err := validate.Struct(c); err != nil {
		return errors.Wrapf(err, "invalid cue %d", c.Number)
	}
	return nil
}

// HasAudio reports whether the cue points at an audio file.
func (c *Cue) HasAudio() bool {
	return c != nil && c.FilePath != ""
}

// Follows reports whether completing this cue should advance the show.
func (c *Cue) Follows() bool {
	return c != nil && c.AutoFollow
}

// String returns a short human-readable description.
func (c *Cue) String() string {
	if c == nil {
		return "<no cue>"
	}
	return fmt.Sprintf("Cue #%d: %s (%s)", c.Number, c.Name, c.FilePath)
}
