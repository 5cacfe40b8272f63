package playback

import (
	"bytes"
	"sort"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/domain/cue"
)

// MessageKind identifies a status message template.
type MessageKind string

const (
	MsgNoCue         MessageKind = "no_cue"
	MsgNoAudio       MessageKind = "no_audio"
	MsgPreWait       MessageKind = "pre_wait"
	MsgPlaying       MessageKind = "playing"
	MsgCueComplete   MessageKind = "cue_complete"
	MsgPostWait      MessageKind = "post_wait"
	MsgPaused        MessageKind = "paused"
	MsgResumed       MessageKind = "resumed"
	MsgStopped       MessageKind = "stopped"
	MsgFileMissing   MessageKind = "file_missing"
	MsgPoolExhausted MessageKind = "pool_exhausted"
	MsgLoadError     MessageKind = "load_error"
	MsgTrackFailed   MessageKind = "track_failed"
	MsgEndOfList     MessageKind = "end_of_list"
	MsgStandby       MessageKind = "standby"
)

var defaultMessages = map[MessageKind]string{
	MsgNoCue:         `No cue to play`,
	MsgNoAudio:       `Cue {{ .Cue.Number }} has no audio file`,
	MsgPreWait:       `Pre-wait: {{ printf "%.1f" .Cue.PreWait.Seconds }}s for {{ .Cue.Name | default "untitled" }}`,
	MsgPlaying:       `Playing: {{ .Cue.Name | default "untitled" }}`,
	MsgCueComplete:   `Cue complete: {{ .Cue.Name | default "untitled" }}`,
	MsgPostWait:      `Post-wait: {{ printf "%.1f" .Cue.PostWait.Seconds }}s`,
	MsgPaused:        `Paused`,
	MsgResumed:       `Resumed`,
	MsgStopped:       `Stopped`,
	MsgFileMissing:   `Audio file missing: {{ .Cue.FilePath | base }}`,
	MsgPoolExhausted: `Too many cues playing, cannot start {{ .Cue.Name | default "untitled" }}`,
	MsgLoadError:     `Error loading audio: {{ .Err | toString | trunc 200 }}`,
	MsgTrackFailed:   `Playback error on {{ .Cue.Name | default "untitled" }}: {{ .Err | toString | trunc 200 }}`,
	MsgEndOfList:     `End of cue list`,
	MsgStandby:       `Standby: cue {{ .Cue.Number }} {{ .Cue.Name }}`,
}

// MessageData is the template context for status messages.
type MessageData struct {
	Cue *cue.Cue
	Err error
}

// Messages renders status messages from text templates with sprig functions.
type Messages struct {
	templates map[MessageKind]*template.Template
}

// NewMessages parses the built-in templates, replacing any kinds present in
// overrides. Unknown override keys are rejected.
func NewMessages(overrides map[string]string) (*Messages, error) {
	m := &Messages{templates: make(map[MessageKind]*template.Template, len(defaultMessages))}

	for kind, text := range defaultMessages {
		if err := m.parse(kind, text); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		kind := MessageKind(k)
		if _, ok := defaultMessages[kind]; !ok {
			return nil, errors.Newf("unknown message kind: %s", k)
		}
		if overrides[k] == "" {
			continue
		}
		if err := m.parse(kind, overrides[k]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// DefaultMessages returns the built-in templates.
func DefaultMessages() *Messages {
	m, err := NewMessages(nil)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Messages) parse(kind MessageKind, text string) error {
	tmpl, err := template.New(string(kind)).Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(text)
	if err != nil {
		return errors.Wrapf(err, "failed to parse message template %s", kind)
	}
	m.templates[kind] = tmpl
	return nil
}

// Render executes the template for kind. A cue of nil renders as an empty cue.
func (m *Messages) Render(kind MessageKind, data MessageData) string {
	if data.Cue == nil {
		data.Cue = &cue.Cue{}
	}
	tmpl, ok := m.templates[kind]
	if !ok {
		return string(kind)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		zlog.Warn().Err(err).Msgf("playback: failed to render message %s", kind)
		return string(kind)
	}
	return buf.String()
}
