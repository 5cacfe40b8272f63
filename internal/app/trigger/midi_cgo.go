//go:build cgo

package trigger

import (
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// OpenMIDIDriver opens the RtMidi driver.
func OpenMIDIDriver() (drivers.Driver, error) {
	d, err := rtmididrv.New()
	if err != nil {
		return nil, err
	}
	return d, nil
}
