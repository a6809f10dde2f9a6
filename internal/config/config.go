// Package config loads CLI settings from defaults, an optional
// .timsort.yaml file and TIMSORT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	configName = ".timsort"
	configType = "yaml"
	envPrefix  = "TIMSORT"
)

// Defaults.
const (
	DefaultParallelism = 0 // GOMAXPROCS
	DefaultGranularity = 0 // size based
	DefaultBenchSize   = 1_000_000
	DefaultBenchRounds = 3
	DefaultSeed        = 42
	DefaultNamespace   = "timsort"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the full CLI configuration.
type Config struct {
	Pool    PoolConfig    `mapstructure:"pool"`
	Bench   BenchConfig   `mapstructure:"bench"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

// PoolConfig sizes the fork/join pool and the split threshold.
type PoolConfig struct {
	Parallelism int `mapstructure:"parallelism"`
	Granularity int `mapstructure:"granularity"`
}

// BenchConfig drives the bench command.
type BenchConfig struct {
	Size   int   `mapstructure:"size"`
	Rounds int   `mapstructure:"rounds"`
	Seed   int64 `mapstructure:"seed"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// LogConfig controls zap output.
type LogConfig struct {
	Verbose bool `mapstructure:"verbose"`
}

// New returns a viper instance with defaults and env binding applied, ready
// for flags to be bound before Load.
func New() *viper.Viper {
	v := viper.New()
	applyDefaults(v)
	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file (explicit path, or .timsort.yaml in the working
// directory or $HOME) into v and decodes the result. A missing file is not an
// error.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("pool.parallelism", DefaultParallelism)
	v.SetDefault("pool.granularity", DefaultGranularity)
	v.SetDefault("bench.size", DefaultBenchSize)
	v.SetDefault("bench.rounds", DefaultBenchRounds)
	v.SetDefault("bench.seed", DefaultSeed)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.namespace", DefaultNamespace)
	v.SetDefault("log.verbose", false)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Pool.Parallelism < 0 {
		return fmt.Errorf("%w: pool.parallelism must be >= 0, got %d", ErrInvalidConfig, c.Pool.Parallelism)
	}
	if c.Pool.Granularity < 0 {
		return fmt.Errorf("%w: pool.granularity must be >= 0, got %d", ErrInvalidConfig, c.Pool.Granularity)
	}
	if c.Bench.Size < 0 {
		return fmt.Errorf("%w: bench.size must be >= 0, got %d", ErrInvalidConfig, c.Bench.Size)
	}
	if c.Bench.Rounds < 1 {
		return fmt.Errorf("%w: bench.rounds must be >= 1, got %d", ErrInvalidConfig, c.Bench.Rounds)
	}
	if c.Metrics.Namespace == "" {
		return fmt.Errorf("%w: metrics.namespace must not be empty", ErrInvalidConfig)
	}
	return nil
}
