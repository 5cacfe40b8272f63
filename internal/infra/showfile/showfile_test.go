package showfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	data := []byte(`
name: Friday evening
cues:
  - number: 10
    name: House music
    file: audio/house.mp3
    duration: 180
    post_wait: 2.5
    auto_follow: true
  - name: Welcome
    file: /srv/sfx/welcome.wav
    pre_wait: 1
  - number: 30
    file: ./sfx/../sfx/thunder.wav
`)

	list, err := Parse(data, "/shows/friday")
	require.NoError(t, err)

	assert.Equal(t, "Friday evening", list.Name)
	require.Equal(t, 3, list.Len())

	cues := list.Cues()
	assert.Equal(t, 10, cues[0].Number)
	assert.Equal(t, "House music", cues[0].Name)
	assert.Equal(t, filepath.Join("/shows/friday", "audio/house.mp3"), cues[0].FilePath)
	assert.Equal(t, 3*time.Minute, cues[0].Duration)
	assert.Equal(t, 2500*time.Millisecond, cues[0].PostWait)
	assert.True(t, cues[0].AutoFollow)

	assert.Equal(t, 11, cues[1].Number)
	assert.Equal(t, "/srv/sfx/welcome.wav", cues[1].FilePath)
	assert.Equal(t, time.Second, cues[1].PreWait)
	assert.False(t, cues[1].AutoFollow)

	assert.Equal(t, 30, cues[2].Number)
	assert.Equal(t, filepath.Join("/shows/friday", "sfx/thunder.wav"), cues[2].FilePath)
}

func TestParse_Defaults(t *testing.T) {
	list, err := Parse([]byte("cues:\n  - file: a.wav\n  - file: b.wav\n"), "")
	require.NoError(t, err)

	assert.Equal(t, "Untitled show", list.Name)
	cues := list.Cues()
	assert.Equal(t, 1, cues[0].Number)
	assert.Equal(t, 2, cues[1].Number)
	assert.Equal(t, "a.wav", cues[0].FilePath)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		errMsg string
	}{
		{name: "bad yaml", data: "cues: [", errMsg: "failed to parse"},
		{name: "no cues", data: "name: empty\n", errMsg: "Cues"},
		{name: "missing file", data: "cues:\n  - name: x\n", errMsg: "File"},
		{name: "negative pre-wait", data: "cues:\n  - file: a.wav\n    pre_wait: -1\n", errMsg: "PreWait"},
		{name: "negative number", data: "cues:\n  - file: a.wav\n    number: -2\n", errMsg: "Number"},
		{name: "duplicate number", data: "cues:\n  - file: a.wav\n    number: 2\n  - file: b.wav\n    number: 2\n", errMsg: "duplicate cue number 2"},
		{name: "implicit duplicate", data: "cues:\n  - file: a.wav\n  - file: b.wav\n    number: 1\n", errMsg: "duplicate cue number 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), "/shows")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "audio"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "audio", "one.wav"), []byte("RIFF"), 0o644))

	show := filepath.Join(dir, "show.yaml")
	require.NoError(t, os.WriteFile(show, []byte(`
name: Test
cues:
  - file: audio/one.wav
  - file: audio/two.wav
`), 0o644))

	list, err := Load(show)
	require.NoError(t, err)
	require.Equal(t, 2, list.Len())
	assert.Equal(t, filepath.Join(dir, "audio", "one.wav"), list.First().FilePath)

	missing := Missing(list)
	require.Len(t, missing, 1)
	assert.Equal(t, 2, missing[0].Number)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read show file")
}
