package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/conduit-lang/metatags/runtime/scan"
)

// Config represents the metatags CLI configuration
type Config struct {
	Strategy   string       `mapstructure:"strategy"`
	Repeatable string       `mapstructure:"repeatable"`
	Filter     FilterConfig `mapstructure:"filter"`
	Cache      CacheConfig  `mapstructure:"cache"`
	Output     OutputConfig `mapstructure:"output"`
	Log        LogConfig    `mapstructure:"log"`
}

// FilterConfig lists tag namespaces excluded in addition to lang. and conduit.lang.
type FilterConfig struct {
	Packages []string `mapstructure:"packages"`
}

// CacheConfig sizes the per-store LRU caches
type CacheConfig struct {
	Size int `mapstructure:"size"`
}

// OutputConfig selects how query results are rendered
type OutputConfig struct {
	Format string `mapstructure:"format"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Repeatable container strategies understood by the CLI
const (
	RepeatableStandard = "standard"
	RepeatableNone     = "none"
)

// Output formats understood by the CLI
var Formats = []string{"table", "json", "yaml"}

// Load loads the configuration from metatags.yaml in the working directory,
// or from path when it is not empty. Environment variables prefixed with
// METATAGS_ override file values, e.g. METATAGS_CACHE_SIZE.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("strategy", scan.TypeHierarchy.String())
	v.SetDefault("repeatable", RepeatableStandard)
	v.SetDefault("filter.packages", []string{})
	v.SetDefault("cache.size", 4096)
	v.SetDefault("output.format", "table")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.development", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("metatags")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("METATAGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// SearchStrategy returns the configured search strategy
func (c *Config) SearchStrategy() scan.Strategy {
	s, _ := scan.ParseStrategy(c.Strategy)
	return s
}

// Logger builds the zap logger described by the log section
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

func validateConfig(cfg *Config) error {
	if _, err := scan.ParseStrategy(cfg.Strategy); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	switch cfg.Repeatable {
	case RepeatableStandard, RepeatableNone:
	default:
		return fmt.Errorf("repeatable must be %q or %q, got: %s", RepeatableStandard, RepeatableNone, cfg.Repeatable)
	}

	if !ValidFormat(cfg.Output.Format) {
		return fmt.Errorf("output.format must be one of %s, got: %s", strings.Join(Formats, ", "), cfg.Output.Format)
	}

	if cfg.Cache.Size <= 0 {
		return fmt.Errorf("cache.size must be positive, got: %d", cfg.Cache.Size)
	}

	for _, p := range cfg.Filter.Packages {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("filter.packages must not contain empty names")
		}
	}

	if _, err := parseLevel(cfg.Log.Level); err != nil {
		return err
	}

	return nil
}

// ValidFormat reports whether format is a known output format
func ValidFormat(format string) bool {
	for _, f := range Formats {
		if f == format {
			return true
		}
	}
	return false
}

func parseLevel(name string) (zapcore.Level, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return level, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
