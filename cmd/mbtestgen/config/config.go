package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mbtestgen/mbtestgen/pkg/bundle"
	"github.com/mbtestgen/mbtestgen/pkg/entity"
	"github.com/mbtestgen/mbtestgen/pkg/generator"
	"github.com/mbtestgen/mbtestgen/pkg/observability"
	"github.com/mbtestgen/mbtestgen/pkg/runner"
	"github.com/mbtestgen/mbtestgen/pkg/samplefile"
	"github.com/mbtestgen/mbtestgen/pkg/sampler"
)

// ErrInvalid marks configuration and usage errors
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix is the prefix of environment overrides, e.g. MBTESTGEN_NUM
const EnvPrefix = "MBTESTGEN"

// Config holds CLI configuration
type Config struct {
	Dir         string `mapstructure:"dir"`
	BundleURL   string `mapstructure:"bundle_url"`
	BundleSHA   string `mapstructure:"bundle_sha256"`
	Limit       int    `mapstructure:"limit"`
	Num         int    `mapstructure:"num"`
	Entities    string `mapstructure:"entities"`
	Out         string `mapstructure:"out"`
	Template    string `mapstructure:"template"`
	TestsDir    string `mapstructure:"tests_dir"`
	LogLevel    string `mapstructure:"log_level"`
	Output      string `mapstructure:"output"`
	MetricsFile string `mapstructure:"metrics_file"`
	Seed        uint64 `mapstructure:"seed"`

	Tracing observability.TracerConfig `mapstructure:"tracing"`

	// HasSeed is true when a seed was given by flag, env or file
	HasSeed bool `mapstructure:"-"`
}

// flagKeys maps config keys to the flag names that override them
var flagKeys = map[string]string{
	"dir":           "dir",
	"bundle_url":    "bundle-url",
	"bundle_sha256": "bundle-sha256",
	"limit":         "limit",
	"num":           "num",
	"entities":      "entities",
	"out":           "out",
	"template":      "template",
	"tests_dir":     "tests-dir",
	"log_level":     "log-level",
	"output":        "output",
	"metrics_file":  "metrics-file",
	"seed":          "seed",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dir", samplefile.DefaultDir)
	v.SetDefault("bundle_url", bundle.DefaultURL)
	v.SetDefault("bundle_sha256", "")
	v.SetDefault("limit", sampler.DefaultLimit)
	v.SetDefault("num", generator.DefaultCount)
	v.SetDefault("entities", strings.Join(entity.Names(generator.DefaultKinds()), ","))
	v.SetDefault("out", generator.DefaultOutput)
	v.SetDefault("template", "")
	v.SetDefault("tests_dir", runner.DefaultTestsDir)
	v.SetDefault("log_level", "info")
	v.SetDefault("output", string(OutputTable))
	v.SetDefault("metrics_file", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.service_name", "mbtestgen")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.insecure", true)
}

// LoadConfig loads configuration from file, environment and flags, in
// increasing order of precedence
func LoadConfig(cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Get config file path
	configFile, _ := cmd.Flags().GetString("config")
	explicit := configFile != ""
	if !explicit {
		// Default to $HOME/.mbtestgen/config.yaml
		home, err := os.UserHomeDir()
		if err == nil {
			configFile = filepath.Join(home, ".mbtestgen", "config.yaml")
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		_, statErr := os.Stat(configFile)
		switch {
		case statErr == nil:
			v.SetConfigFile(configFile)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("%w: failed to read config file: %w", ErrInvalid, err)
			}
		case explicit:
			return nil, fmt.Errorf("%w: config file %s: %w", ErrInvalid, configFile, statErr)
		}
	}

	for key, name := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %w", ErrInvalid, err)
	}
	cfg.HasSeed = v.IsSet("seed")

	// Only keys the command has a flag for are checked
	uses := func(name string) bool { return cmd.Flags().Lookup(name) != nil }
	if err := cfg.validate(uses); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that can be checked without touching the filesystem
func (c *Config) Validate() error {
	return c.validate(func(string) bool { return true })
}

func (c *Config) validate(uses func(flag string) bool) error {
	if uses("limit") && c.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalid, c.Limit)
	}
	if uses("num") && c.Num <= 0 {
		return fmt.Errorf("%w: num must be positive, got %d", ErrInvalid, c.Num)
	}
	switch OutputFormat(c.Output) {
	case OutputTable, OutputJSON, OutputYAML:
	default:
		return fmt.Errorf("%w: unknown output format %q", ErrInvalid, c.Output)
	}
	if uses("dir") && c.Dir == "" {
		return fmt.Errorf("%w: sample directory must not be empty", ErrInvalid)
	}
	if uses("entities") {
		if _, err := c.Kinds(); err != nil {
			return err
		}
	}
	return nil
}

// Kinds parses the configured entity list
func (c *Config) Kinds() ([]entity.Kind, error) {
	if strings.TrimSpace(c.Entities) == "" {
		return generator.DefaultKinds(), nil
	}
	kinds, err := entity.ParseList(c.Entities)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return kinds, nil
}
