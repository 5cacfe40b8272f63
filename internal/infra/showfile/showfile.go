// Package showfile loads cue lists from YAML show files.
//
// A show file looks like:
//
//	name: Friday evening
//	cues:
//	  - number: 1
//	    name: House music
//	    file: audio/house.mp3
//	    post_wait: 2.5
//	    auto_follow: true
//	  - name: Thunder
//	    file: /srv/sfx/thunder.wav
//	    pre_wait: 1
//
// Times are in seconds. Cues without a number take the previous number plus
// one. Relative file paths are resolved against the show file's directory.
package showfile

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/osa030/cuebox/internal/domain/cue"
	"github.com/osa030/cuebox/internal/domain/cuelist"
)

// File is the on-disk layout of a show.
type File struct {
	Name string  `yaml:"name" default:"Untitled show"`
	Cues []Entry `yaml:"cues" validate:"required,min=1,dive"`
}

// Entry is one cue in a show file.
type Entry struct {
	Number     *int    `yaml:"number" validate:"omitempty,gte=0"`
	Name       string  `yaml:"name"`
	File       string  `yaml:"file" validate:"required"`
	Duration   float64 `yaml:"duration" validate:"gte=0"`
	PreWait    float64 `yaml:"pre_wait" validate:"gte=0"`
	PostWait   float64 `yaml:"post_wait" validate:"gte=0"`
	AutoFollow bool    `yaml:"auto_follow"`
}

// Load reads and validates the show file at path.
func Load(path string) (*cuelist.CueList, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve show file path %s", path)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read show file")
	}

	list, err := Parse(data, filepath.Dir(abs))
	if err != nil {
		return nil, errors.Wrapf(err, "show file %s", path)
	}

	zlog.Info().Msgf("showfile: loaded %q with %d cues from %s", list.Name, list.Len(), abs)
	return list, nil
}

// Parse decodes a show file. Relative cue paths are joined to baseDir.
func Parse(data []byte, baseDir string) (*cuelist.CueList, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse show file")
	}
	if err := defaults.Set(&f); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(&f); err != nil {
		return nil, errors.Wrap(err, "show file validation failed")
	}

	cues := make([]*cue.Cue, 0, len(f.Cues))
	next := 1
	for _, e := range f.Cues {
		number := next
		if e.Number != nil {
			number = *e.Number
		}
		next = number + 1

		cues = append(cues, &cue.Cue{
			Number:     number,
			Name:       e.Name,
			Duration:   seconds(e.Duration),
			PreWait:    seconds(e.PreWait),
			PostWait:   seconds(e.PostWait),
			AutoFollow: e.AutoFollow,
			FilePath:   resolve(baseDir, e.File),
		})
	}

	return cuelist.New(f.Name, cues)
}

// Missing returns the cues whose audio file does not exist.
func Missing(list *cuelist.CueList) []*cue.Cue {
	var missing []*cue.Cue
	for _, c := range list.Cues() {
		if _, err := os.Stat(c.FilePath); err != nil {
			missing = append(missing, c)
		}
	}
	return missing
}

func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) || baseDir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(baseDir, path)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
