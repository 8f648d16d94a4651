package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read by Load when no path is given and it exists
const DefaultFile = "chrono.yaml"

// Config holds the settings of the chrono tool. Values come from defaults,
// then a YAML file, then CHRONO_* environment variables.
type Config struct {
	LogLevel string `yaml:"log_level" env:"CHRONO_LOG_LEVEL"`

	Replay   ReplayConfig   `yaml:"replay"`
	Player   PlayerConfig   `yaml:"player"`
	CLI      CLIConfig      `yaml:"cli"`
	Store    StoreConfig    `yaml:"store"`
	Security SecurityConfig `yaml:"security"`
}

// ReplayConfig tunes the engine's checkpoint cache
type ReplayConfig struct {
	CheckpointInterval  int `yaml:"checkpoint_interval" env:"CHRONO_CHECKPOINT_INTERVAL"`
	CheckpointCacheSize int `yaml:"checkpoint_cache_size" env:"CHRONO_CHECKPOINT_CACHE_SIZE"`
}

// PlayerConfig configures play mode
type PlayerConfig struct {
	Interval      time.Duration `yaml:"play_interval" env:"CHRONO_PLAY_INTERVAL"`
	SkipFunctions []string      `yaml:"skip_functions" env:"CHRONO_SKIP_FUNCTIONS" envSeparator:","`
}

// CLIConfig configures the interactive debugger
type CLIConfig struct {
	Color       bool   `yaml:"color" env:"CHRONO_COLOR"`
	HistoryFile string `yaml:"history_file" env:"CHRONO_HISTORY_FILE"`
}

// StoreConfig locates the trace archive. An empty path disables it.
type StoreConfig struct {
	Path string `yaml:"store_path" env:"CHRONO_STORE_PATH"`
}

// SecurityConfig holds the hex-encoded HMAC key for trace files
type SecurityConfig struct {
	IntegrityKey string `yaml:"integrity_key" env:"CHRONO_INTEGRITY_KEY"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		LogLevel: "warn",
		Replay: ReplayConfig{
			CheckpointInterval:  64,
			CheckpointCacheSize: 32,
		},
		Player: PlayerConfig{
			Interval: 300 * time.Millisecond,
		},
		CLI: CLIConfig{
			Color: true,
		},
	}
}

// Load builds the configuration. An empty path reads DefaultFile when it
// exists; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv overrides target with environment variables
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects settings the tool cannot run with
func (c Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Replay.CheckpointInterval < 0 {
		return fmt.Errorf("checkpoint_interval must not be negative, got %d", c.Replay.CheckpointInterval)
	}
	if c.Replay.CheckpointCacheSize < 0 {
		return fmt.Errorf("checkpoint_cache_size must not be negative, got %d", c.Replay.CheckpointCacheSize)
	}
	if c.Player.Interval < 0 {
		return fmt.Errorf("play_interval must not be negative, got %s", c.Player.Interval)
	}
	if _, err := c.Key(); err != nil {
		return err
	}
	return nil
}

// Level returns the zerolog level named by LogLevel
func (c Config) Level() (zerolog.Level, error) {
	if c.LogLevel == "" {
		return zerolog.WarnLevel, nil
	}
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Key decodes the integrity key. It is nil when none is configured.
func (c Config) Key() ([]byte, error) {
	if c.Security.IntegrityKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.Security.IntegrityKey)
	if err != nil {
		return nil, fmt.Errorf("integrity_key must be hex: %w", err)
	}
	return key, nil
}
