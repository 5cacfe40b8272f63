// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Pool     PoolConfig        `yaml:"pool"`
	Audio    AudioConfig       `yaml:"audio"`
	Control  ControlConfig     `yaml:"control"`
	Show     ShowConfig        `yaml:"show"`
	Triggers []TriggerConfig   `yaml:"triggers" validate:"dive"`
	Guards   GuardsConfig      `yaml:"guards"`
	Messages map[string]string `yaml:"messages"`
}

// PoolConfig represents track pool configuration.
type PoolConfig struct {
	InitialSize      int   `yaml:"initial_size" default:"5" validate:"gte=1"`
	MaxSize          int   `yaml:"max_size" default:"20" validate:"gtefield=InitialSize"`
	Culling          *bool `yaml:"culling" default:"true"` // Pointer so an explicit false survives defaults
	CullIntervalSec  int   `yaml:"cull_interval_sec" default:"10" validate:"gte=1"`
	IdleThresholdSec int   `yaml:"idle_threshold_sec" default:"30" validate:"gte=0"`
}

// AudioConfig represents audio output configuration.
type AudioConfig struct {
	SampleRate   int     `yaml:"sample_rate" default:"48000" validate:"oneof=22050 44100 48000 96000"`
	ChannelCount int     `yaml:"channel_count" default:"2" validate:"oneof=1 2"`
	BufferMs     int     `yaml:"buffer_ms" default:"100" validate:"gte=10,lte=2000"`
	FFmpegPath   string  `yaml:"ffmpeg_path" default:"ffmpeg"`
	Volume       float64 `yaml:"volume" default:"1.0" validate:"gte=0,lte=1"`
	MaxCueMin    *int    `yaml:"max_cue_minutes" default:"60" validate:"omitempty,gte=0"`
}

// ControlConfig represents the remote control server configuration.
type ControlConfig struct {
	Addr  string      `yaml:"addr" default:":7700"`
	Token string      `yaml:"token" validate:"required"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// ShowConfig represents the show to run.
type ShowConfig struct {
	File        string `yaml:"file" validate:"required"`
	AutoStandby *bool  `yaml:"auto_standby" default:"true"`
}

// TriggerConfig represents a single trigger source configuration.
type TriggerConfig struct {
	Type     string         `yaml:"type" validate:"required,oneof=stdin midi"`
	Settings map[string]any `yaml:"settings"`
}

// GuardsConfig represents operator input guards.
type GuardsConfig struct {
	GoDebounceMs int `yaml:"go_debounce_ms" default:"300" validate:"gte=0,lte=10000"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse decodes configuration from YAML, then applies environment overrides
// and defaults before validating.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("CUEBOX_CONTROL_TOKEN"); v != "" {
		c.Control.Token = v
	}
	if v := os.Getenv("CUEBOX_SHOW_FILE"); v != "" {
		c.Show.File = v
	}
	if v := os.Getenv("CUEBOX_CONTROL_ADDR"); v != "" {
		c.Control.Addr = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// CullingEnabled reports whether idle tracks are culled periodically.
func (p PoolConfig) CullingEnabled() bool {
	return p.Culling == nil || *p.Culling
}

// CullInterval returns the culling period.
func (p PoolConfig) CullInterval() time.Duration {
	return time.Duration(p.CullIntervalSec) * time.Second
}

// IdleThreshold returns how long an available track may sit unused.
func (p PoolConfig) IdleThreshold() time.Duration {
	return time.Duration(p.IdleThresholdSec) * time.Second
}

// AdvanceStandby reports whether standby moves to the next cue after GO.
func (s ShowConfig) AdvanceStandby() bool {
	return s.AutoStandby == nil || *s.AutoStandby
}

// Buffer returns the output buffer length.
func (a AudioConfig) Buffer() time.Duration {
	return time.Duration(a.BufferMs) * time.Millisecond
}

// MaxCueLength returns the longest audio file the engine will decode, or 0
// for no limit.
func (a AudioConfig) MaxCueLength() time.Duration {
	if a.MaxCueMin == nil {
		return 0
	}
	return time.Duration(*a.MaxCueMin) * time.Minute
}

// GoDebounce returns the minimum spacing between two GO commands.
func (g GuardsConfig) GoDebounce() time.Duration {
	return time.Duration(g.GoDebounceMs) * time.Millisecond
}
