// Package config loads macroscan settings from a config file, MACROSCAN_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jward/macroscan/internal/discover"
	"github.com/jward/macroscan/internal/logging"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "MACROSCAN"

// Config holds the complete application configuration.
type Config struct {
	AssertType string       `mapstructure:"assert_type"`
	Filter     FilterConfig `mapstructure:"filter"`
	Include    []string     `mapstructure:"include"`
	Exclude    []string     `mapstructure:"exclude"`
	DB         string       `mapstructure:"db"`
	NoCache    bool         `mapstructure:"no_cache"`
	Force      bool         `mapstructure:"force"`
	Parallel   bool         `mapstructure:"parallel"`
	Watch      WatchConfig  `mapstructure:"watch"`
	Log        LogConfig    `mapstructure:"log"`
}

// FilterConfig holds the Risor filter script, given inline or as a file.
type FilterConfig struct {
	Script     string `mapstructure:"script"`
	ScriptFile string `mapstructure:"script_file"`
}

// WatchConfig holds watch mode configuration.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SetDefaults registers the default value of every setting.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("assert_type", "macro")
	v.SetDefault("filter.script", "")
	v.SetDefault("filter.script_file", "")
	v.SetDefault("include", []string{})
	v.SetDefault("exclude", discover.DefaultExclude)
	v.SetDefault("db", ".macroscan.db")
	v.SetDefault("no_cache", false)
	v.SetDefault("force", false)
	v.SetDefault("parallel", true)
	v.SetDefault("watch.debounce", "200ms")
	v.SetDefault("log.level", "warn")
}

// Load reads configuration into v and decodes it. cfgFile names an explicit
// config file; when empty, macroscan.{toml,yaml,json} is looked up in the
// working directory and a missing file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("macroscan")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	return New(v)
}

// New decodes and validates the configuration held by v.
func New(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Filter.Script != "" && c.Filter.ScriptFile != "" {
		return errors.New("filter.script and filter.script_file are mutually exclusive")
	}
	if _, err := discover.CompileGlobs(c.Include, "include"); err != nil {
		return err
	}
	if _, err := discover.CompileGlobs(c.Exclude, "exclude"); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Watch.Debounce < 0 {
		return errors.New("watch.debounce must not be negative")
	}
	return nil
}

// FilterSource returns the filter script text, reading filter.script_file
// when set. Empty means no filter.
func (c *Config) FilterSource() (string, error) {
	if c.Filter.ScriptFile == "" {
		return c.Filter.Script, nil
	}
	data, err := os.ReadFile(c.Filter.ScriptFile)
	if err != nil {
		return "", fmt.Errorf("config: filter script: %w", err)
	}
	return string(data), nil
}

// ScriptsDir is the directory Risor imports in the filter script resolve
// against: the script file's directory, or empty for inline scripts.
func (c *Config) ScriptsDir() string {
	if c.Filter.ScriptFile == "" {
		return ""
	}
	return filepath.Dir(c.Filter.ScriptFile)
}

// DBPath returns the cache database path; empty when caching is disabled.
func (c *Config) DBPath() string {
	if c.NoCache {
		return ""
	}
	return c.DB
}
