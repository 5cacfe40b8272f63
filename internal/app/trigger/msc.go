package trigger

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// MIDI Show Control framing: F0 7F <device> 02 <format> <command> <data> F7.
const (
	sysExStart  = 0xF0
	sysExEnd    = 0xF7
	universalRT = 0x7F
	mscSubID    = 0x02
	mscAllCall  = 0x7F
)

// MSC command bytes handled by cuebox.
const (
	MSCGo     byte = 0x01
	MSCStop   byte = 0x02
	MSCResume byte = 0x03
	MSCLoad   byte = 0x05
	MSCAllOff byte = 0x08
	MSCReset  byte = 0x0A
)

// MSC is a decoded MIDI Show Control message.
type MSC struct {
	DeviceID byte
	Format   byte
	Command  byte
	Cue      int
	HasCue   bool
}

// ParseMSC decodes a MIDI Show Control SysEx message. The F0 and F7 framing
// bytes are optional. Only the integer part of the Q_number is kept; cue
// numbers in a show are whole numbers.
func ParseMSC(data []byte) (MSC, error) {
	if len(data) > 0 && data[0] == sysExStart {
		data = data[1:]
	}
	if len(data) > 0 && data[len(data)-1] == sysExEnd {
		data = data[:len(data)-1]
	}
	if len(data) < 4 || data[0] != universalRT || data[2] != mscSubID {
		return MSC{}, errors.New("not a MIDI Show Control message")
	}

	m := MSC{
		DeviceID: data[1],
		Format:   data[3],
	}
	if len(data) < 5 {
		return MSC{}, errors.New("MIDI Show Control message has no command")
	}
	m.Command = data[4]

	// Q_number runs up to the first 00 delimiter.
	q := data[5:]
	if i := bytes.IndexByte(q, 0x00); i >= 0 {
		q = q[:i]
	}
	if len(q) > 0 {
		whole, _, _ := strings.Cut(string(q), ".")
		n, err := strconv.Atoi(whole)
		if err != nil || n < 0 {
			return MSC{}, errors.Newf("invalid MSC cue number: %q", string(q))
		}
		m.Cue, m.HasCue = n, true
	}
	return m, nil
}

// Action maps an MSC command to a show action. STOP pauses so that RESUME
// can continue; ALL_OFF stops; RESET panics.
func (m MSC) Action() (Action, bool) {
	a := Action{Source: "msc", Cue: m.Cue, HasCue: m.HasCue}
	switch m.Command {
	case MSCGo:
		a.Command = CmdGo
	case MSCStop:
		a.Command = CmdPause
	case MSCResume:
		a.Command = CmdResume
	case MSCLoad:
		if !m.HasCue {
			return Action{}, false
		}
		a.Command = CmdGoTo
	case MSCAllOff:
		a.Command = CmdStop
	case MSCReset:
		a.Command = CmdPanic
	default:
		return Action{}, false
	}
	return a, true
}

// Addressed reports whether the message targets deviceID.
func (m MSC) Addressed(deviceID byte) bool {
	return m.DeviceID == mscAllCall || deviceID == mscAllCall || m.DeviceID == deviceID
}
