//go:build !cgo

package trigger

import (
	"gitlab.com/gomidi/midi/v2/drivers"
)

// OpenMIDIDriver fails: RtMidi needs cgo.
func OpenMIDIDriver() (drivers.Driver, error) {
	return nil, ErrNoMIDIDriver
}
