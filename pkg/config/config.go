// Package config holds the synthesizer configuration and loads it from an
// optional YAML file and VARIANTSYNTH_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/dd0wney/cluso-variantsynth/pkg/bounds"
	"github.com/dd0wney/cluso-variantsynth/pkg/cost"
)

// ErrInvalid is returned when a configuration fails validation
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix prefixes every environment override, e.g.
// VARIANTSYNTH_POLICY_TIE_BREAK=prefer-false
const EnvPrefix = "VARIANTSYNTH"

var validate = validator.New()

// Artifacts locates the input artifacts. Paths are local files relative to
// Root, or s3://bucket/key URIs.
type Artifacts struct {
	Root           string `yaml:"root" mapstructure:"root" json:"root"`
	FeatureModel   string `yaml:"feature_model" mapstructure:"feature_model" json:"feature_model" validate:"required"`
	bounds.Sources `yaml:",inline" mapstructure:",squash"`
	// Presets is an optional YAML catalog; the built-in catalog is used when empty
	Presets string `yaml:"presets" mapstructure:"presets" json:"presets"`
}

// Policy selects the behaviors left open by the feature model itself
type Policy struct {
	SafetyFeature          string `yaml:"safety_feature" mapstructure:"safety_feature" json:"safety_feature"`
	UnknownEdges           string `yaml:"unknown_edges" mapstructure:"unknown_edges" json:"unknown_edges" validate:"oneof=lenient strict"`
	TieBreak               string `yaml:"tie_break" mapstructure:"tie_break" json:"tie_break" validate:"oneof=solver prefer-false"`
	Diagnostics            bool   `yaml:"diagnostics" mapstructure:"diagnostics" json:"diagnostics"`
	BoundFreshnessByReplay bool   `yaml:"bound_freshness_by_replay" mapstructure:"bound_freshness_by_replay" json:"bound_freshness_by_replay"`
	MaxRounds              int    `yaml:"max_rounds" mapstructure:"max_rounds" json:"max_rounds" validate:"gte=0"`
}

// Cache sizes the artifact memoization caches; 0 disables them
type Cache struct {
	Size int `yaml:"size" mapstructure:"size" json:"size" validate:"gte=0"`
}

// Logging configures the process logger
type Logging struct {
	Level  string `yaml:"level" mapstructure:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" mapstructure:"format" json:"format" validate:"oneof=json console"`
}

// Metrics configures metric export
type Metrics struct {
	// Textfile, when set, receives a prometheus text dump after each run
	Textfile string `yaml:"textfile" mapstructure:"textfile" json:"textfile"`
}

// Config is the complete synthesizer configuration
type Config struct {
	Artifacts Artifacts  `yaml:"artifacts" mapstructure:"artifacts" json:"artifacts"`
	Policy    Policy     `yaml:"policy" mapstructure:"policy" json:"policy"`
	Cost      cost.Table `yaml:"cost" mapstructure:"cost" json:"cost"`
	Cache     Cache      `yaml:"cache" mapstructure:"cache" json:"cache"`
	Workers   int        `yaml:"workers" mapstructure:"workers" json:"workers" validate:"gte=1"`
	Logging   Logging    `yaml:"logging" mapstructure:"logging" json:"logging"`
	Metrics   Metrics    `yaml:"metrics" mapstructure:"metrics" json:"metrics"`
}

// Default returns the configuration used when no file or env overrides it
func Default() *Config {
	return &Config{
		Artifacts: Artifacts{
			FeatureModel: "FM.xml",
			Sources: bounds.Sources{
				CANLogs:       "Simulink_CAN_Logs.csv",
				HILLatency:    "Simulink_HIL_Latency.csv",
				VariantTiming: "Simulink_Variant_Timing.csv",
				ReplayLogs:    "Simulink_Replay_Attacks.csv",
			},
		},
		Policy: Policy{
			SafetyFeature: "SecOC_Protection",
			UnknownEdges:  "lenient",
			TieBreak:      "solver",
		},
		Cost:    cost.DefaultTable(),
		Cache:   Cache{Size: 64},
		Workers: 4,
		Logging: Logging{Level: "info", Format: "json"},
	}
}

// Validate checks struct tags, the cost table and cross-field rules
func (c *Config) Validate() error {
	return NewChecker("config").
		Struct(c).
		Custom("cost", c.Cost.Validate).
		When(c.Metrics.Textfile != "", func(ck *Checker) {
			ck.Custom("metrics.textfile", func() error {
				if !strings.HasSuffix(c.Metrics.Textfile, ".prom") {
					return fmt.Errorf("%q must end in .prom for the textfile collector", c.Metrics.Textfile)
				}
				return nil
			})
		}).
		Validate()
}

// Option customises the viper instance before decoding, e.g. to bind
// command-line flags.
type Option func(v *viper.Viper) error

// Load reads configuration from defaults, the optional file at path and
// the environment, in increasing precedence.
func Load(path string, opts ...Option) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every leaf key so AutomaticEnv can override it
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("artifacts.root", d.Artifacts.Root)
	v.SetDefault("artifacts.feature_model", d.Artifacts.FeatureModel)
	v.SetDefault("artifacts.can_logs", d.Artifacts.CANLogs)
	v.SetDefault("artifacts.hil_latency", d.Artifacts.HILLatency)
	v.SetDefault("artifacts.variant_timing", d.Artifacts.VariantTiming)
	v.SetDefault("artifacts.replay_logs", d.Artifacts.ReplayLogs)
	v.SetDefault("artifacts.presets", d.Artifacts.Presets)

	v.SetDefault("policy.safety_feature", d.Policy.SafetyFeature)
	v.SetDefault("policy.unknown_edges", d.Policy.UnknownEdges)
	v.SetDefault("policy.tie_break", d.Policy.TieBreak)
	v.SetDefault("policy.diagnostics", d.Policy.Diagnostics)
	v.SetDefault("policy.bound_freshness_by_replay", d.Policy.BoundFreshnessByReplay)
	v.SetDefault("policy.max_rounds", d.Policy.MaxRounds)

	v.SetDefault("cost.dimensions", d.Cost.Dimensions)
	v.SetDefault("cache.size", d.Cache.Size)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
}
