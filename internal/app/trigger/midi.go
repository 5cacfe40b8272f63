package trigger

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/osa030/cuebox/internal/infra/logger"
)

// ErrNoMIDIDriver is returned when the binary was built without a MIDI driver.
var ErrNoMIDIDriver = errors.New("no MIDI driver available")

// MIDIConfig represents the settings of a midi trigger.
// A note of -1 disables that command. Note and device fields are pointers so
// that an explicit 0 survives defaulting.
type MIDIConfig struct {
	Port       string `mapstructure:"port" validate:"required"`        // Input port name or name prefix
	Channel    int    `mapstructure:"channel" validate:"gte=0,lte=16"` // 1-16, 0 listens on every channel
	GoNote     *int   `mapstructure:"go_note" default:"60" validate:"omitempty,gte=-1,lte=127"`
	PauseNote  *int   `mapstructure:"pause_note" default:"62" validate:"omitempty,gte=-1,lte=127"`
	ResumeNote *int   `mapstructure:"resume_note" default:"64" validate:"omitempty,gte=-1,lte=127"`
	StopNote   *int   `mapstructure:"stop_note" default:"65" validate:"omitempty,gte=-1,lte=127"`
	PanicNote  *int   `mapstructure:"panic_note" default:"67" validate:"omitempty,gte=-1,lte=127"`
	MSC        *bool  `mapstructure:"msc" default:"true"`                                         // Accept MIDI Show Control SysEx
	DeviceID   *int   `mapstructure:"device_id" default:"127" validate:"omitempty,gte=0,lte=127"` // MSC device, 127 is all-call
}

// MSCEnabled reports whether MIDI Show Control messages are honoured.
func (c MIDIConfig) MSCEnabled() bool {
	return c.MSC == nil || *c.MSC
}

// MSCDevice returns the MSC device this trigger answers to.
func (c MIDIConfig) MSCDevice() byte {
	if c.DeviceID == nil {
		return mscAllCall
	}
	return byte(*c.DeviceID)
}

// noteOf returns the note in p, or -1 when unset.
func noteOf(p *int) int {
	if p == nil {
		return -1
	}
	return *p
}

// MIDISource listens on one MIDI input port.
type MIDISource struct {
	cfg        MIDIConfig
	notes      map[uint8]Command
	openDriver func() (drivers.Driver, error)
	log        zerolog.Logger
}

// NewMIDISource validates the note mapping and creates a MIDI source using
// the platform driver.
func NewMIDISource(cfg MIDIConfig) (*MIDISource, error) {
	notes := make(map[uint8]Command)
	for _, m := range []struct {
		note int
		cmd  Command
	}{
		{noteOf(cfg.GoNote), CmdGo},
		{noteOf(cfg.PauseNote), CmdPause},
		{noteOf(cfg.ResumeNote), CmdResume},
		{noteOf(cfg.StopNote), CmdStop},
		{noteOf(cfg.PanicNote), CmdPanic},
	} {
		if m.note < 0 {
			continue
		}
		if prev, dup := notes[uint8(m.note)]; dup {
			return nil, errors.Newf("note %d is mapped to both %s and %s", m.note, prev, m.cmd)
		}
		notes[uint8(m.note)] = m.cmd
	}

	return &MIDISource{
		cfg:        cfg,
		notes:      notes,
		openDriver: OpenMIDIDriver,
		log:        logger.Component("midi"),
	}, nil
}

func (s *MIDISource) Name() string {
	return "midi"
}

// Run opens the configured port and emits actions until ctx is done.
func (s *MIDISource) Run(ctx context.Context, emit func(Action)) error {
	driver, err := s.openDriver()
	if err != nil {
		return errors.Wrap(err, "failed to open MIDI driver")
	}
	defer driver.Close()

	in, err := findInput(driver, s.cfg.Port)
	if err != nil {
		return err
	}
	if err := in.Open(); err != nil {
		return errors.Wrapf(err, "failed to open MIDI input %s", in)
	}
	defer in.Close()

	var opts []midi.Option
	if s.cfg.MSCEnabled() {
		opts = append(opts, midi.UseSysEx())
	}
	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		if a, ok := s.Translate(msg); ok {
			emit(a)
		}
	}, opts...)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on MIDI input %s", in)
	}
	defer stop()

	s.log.Info().Msgf("listening on %s", in)
	<-ctx.Done()
	return nil
}

// Translate maps a MIDI message to an action. Note-on with velocity zero is
// a note-off and is ignored.
func (s *MIDISource) Translate(msg midi.Message) (Action, bool) {
	if len(msg) > 0 && msg[0] == sysExStart {
		if !s.cfg.MSCEnabled() {
			return Action{}, false
		}
		m, err := ParseMSC(msg)
		if err != nil {
			s.log.Debug().Err(err).Msg("ignoring SysEx")
			return Action{}, false
		}
		if !m.Addressed(s.cfg.MSCDevice()) {
			return Action{}, false
		}
		a, ok := m.Action()
		if !ok {
			s.log.Debug().Msgf("ignoring MSC command 0x%02X", m.Command)
		}
		return a, ok
	}

	var ch, key, vel uint8
	if !msg.GetNoteOn(&ch, &key, &vel) || vel == 0 {
		return Action{}, false
	}
	if s.cfg.Channel != 0 && int(ch)+1 != s.cfg.Channel {
		return Action{}, false
	}
	cmd, ok := s.notes[key]
	if !ok {
		return Action{}, false
	}
	return Action{Command: cmd, Source: "midi"}, true
}

// ListMIDIInputs returns the names of the available MIDI input ports.
func ListMIDIInputs() ([]string, error) {
	driver, err := OpenMIDIDriver()
	if err != nil {
		return nil, err
	}
	defer driver.Close()

	ins, err := driver.Ins()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list MIDI inputs")
	}
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	return names, nil
}

// findInput picks the port named name, or the first whose name starts with it.
func findInput(driver drivers.Driver, name string) (drivers.In, error) {
	ins, err := driver.Ins()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list MIDI inputs")
	}
	for _, in := range ins {
		if in.String() == name {
			return in, nil
		}
	}
	for _, in := range ins {
		if strings.HasPrefix(in.String(), name) {
			return in, nil
		}
	}
	return nil, errors.Newf("MIDI input %q not found", name)
}
