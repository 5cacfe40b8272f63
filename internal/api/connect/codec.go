package connect

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/cuebox/internal/app/notification"
	"github.com/osa030/cuebox/internal/app/show"
	"github.com/osa030/cuebox/internal/domain/cue"
)

// StatusMessage is the wire shape of GetStatus. Cue numbers are -1 when
// there is no such cue.
type StatusMessage struct {
	Show         string  `mapstructure:"show"`
	Phase        string  `mapstructure:"phase"`
	State        string  `mapstructure:"state"`
	StandbyCue   int     `mapstructure:"standby_cue"`
	StandbyName  string  `mapstructure:"standby_name"`
	CurrentCue   int     `mapstructure:"current_cue"`
	CurrentName  string  `mapstructure:"current_name"`
	LastMessage  string  `mapstructure:"last_message"`
	CueCount     int     `mapstructure:"cue_count"`
	TotalSeconds float64 `mapstructure:"total_seconds"`
}

// EventMessage is the wire shape of one Watch event.
type EventMessage struct {
	SequenceNo uint64 `mapstructure:"sequence_no"`
	Time       string `mapstructure:"time"`
	Kind       string `mapstructure:"kind"`
	State      string `mapstructure:"state"`
	Phase      string `mapstructure:"phase"`
	Message    string `mapstructure:"message"`
	Cue        int    `mapstructure:"cue"`
	CueName    string `mapstructure:"cue_name"`
}

// ResultMessage is the wire shape of a command result.
type ResultMessage struct {
	Success bool   `mapstructure:"success"`
	Message string `mapstructure:"message"`
}

func encodeStatus(st show.Status) (*structpb.Struct, error) {
	standby, standbyName := cueFields(st.Standby)
	current, currentName := cueFields(st.Current)
	return structpb.NewStruct(map[string]any{
		"show":          st.ShowName,
		"phase":         st.Phase.String(),
		"state":         st.State.String(),
		"standby_cue":   standby,
		"standby_name":  standbyName,
		"current_cue":   current,
		"current_name":  currentName,
		"last_message":  st.LastMessage,
		"cue_count":     st.CueCount,
		"total_seconds": st.TotalDuration.Seconds(),
	})
}

func encodeNotification(n *notification.Notification) (*structpb.Struct, error) {
	number, name := cueFields(n.Cue)
	return structpb.NewStruct(map[string]any{
		"sequence_no": n.SequenceNo,
		"time":        n.Time.Format(time.RFC3339Nano),
		"kind":        string(n.Kind),
		"state":       n.State,
		"phase":       n.Phase,
		"message":     n.Message,
		"cue":         number,
		"cue_name":    name,
	})
}

func encodeResult(success bool, message string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"success": success,
		"message": message,
	})
}

// DecodeStatus converts a GetStatus response.
func DecodeStatus(s *structpb.Struct) (StatusMessage, error) {
	var m StatusMessage
	return m, decode(s, &m)
}

// DecodeEvent converts one Watch message.
func DecodeEvent(s *structpb.Struct) (EventMessage, error) {
	var m EventMessage
	return m, decode(s, &m)
}

// DecodeResult converts a command response.
func DecodeResult(s *structpb.Struct) (ResultMessage, error) {
	var m ResultMessage
	return m, decode(s, &m)
}

// decode maps a struct onto out. JSON numbers arrive as float64, so input
// is weakly typed.
func decode(s *structpb.Struct, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(s.AsMap()); err != nil {
		return errors.Wrap(err, "failed to decode message")
	}
	return nil
}

func cueFields(c *cue.Cue) (int, string) {
	if c == nil {
		return -1, ""
	}
	return c.Number, c.Name
}
