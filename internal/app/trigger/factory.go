package trigger

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuebox/internal/infra/config"
)

// NewSourcesFromConfig creates trigger sources from configuration. stdin is
// the reader used by console triggers.
func NewSourcesFromConfig(triggers []config.TriggerConfig, stdin io.Reader) ([]Source, error) {
	sources := make([]Source, 0, len(triggers))
	consoles := 0

	for i, tcfg := range triggers {
		var src Source
		var err error
		zlog.Debug().Msgf("creating trigger: index=%d type=%s settings=%+v", i+1, tcfg.Type, tcfg.Settings)

		switch tcfg.Type {
		case "stdin":
			consoles++
			if consoles > 1 {
				return nil, errors.Newf("only one stdin trigger is allowed (trigger index %d)", i)
			}
			src = NewConsoleSource(stdin)

		case "midi":
			var mcfg MIDIConfig
			if err = DecodeSettings(tcfg.Settings, &mcfg); err == nil {
				src, err = NewMIDISource(mcfg)
			}

		default:
			return nil, errors.Newf("unsupported trigger type: %s (trigger index %d)", tcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create trigger (index %d, type %s)", i, tcfg.Type)
		}

		sources = append(sources, src)
		zlog.Info().Msgf("registered trigger: index=%d type=%s", i+1, tcfg.Type)
	}

	return sources, nil
}

// NewGuardChainFromConfig creates the guard chain for operator input.
func NewGuardChainFromConfig(cfg config.GuardsConfig) *Chain {
	chain := NewChain()
	if window := cfg.GoDebounce(); window > 0 {
		chain.Add(NewDebounceGuard(window))
		zlog.Info().Msgf("registered guard: go_debounce window=%v", window)
	}
	return chain
}

// DecodeSettings decodes a trigger settings map into out, applies defaults
// and validates the result.
func DecodeSettings(settings map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}

	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}

	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}

	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
