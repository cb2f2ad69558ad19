// Package config loads server configuration from the environment, with
// an optional YAML file overlay.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development" yaml:"environment"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080" yaml:"port"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s" yaml:"read_timeout"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s" yaml:"write_timeout"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s" yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s" yaml:"shutdown_timeout"`
	} `yaml:"http"`
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info" yaml:"level"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr" yaml:"output"`
	} `yaml:"logging"`
	Loop struct {
		NumIterations    int           `env:"NUM_ITERATIONS" envDefault:"50" yaml:"num_iterations"`
		NumSave          int           `env:"NUM_SAVE" envDefault:"1" yaml:"num_save"`
		SaveDir          string        `env:"SAVE_DIR" envDefault:"data" yaml:"save_dir"`
		IterationTimeout time.Duration `env:"ITERATION_TIMEOUT" envDefault:"0" yaml:"iteration_timeout"`
		RandomSeed       int64         `env:"RANDOM_SEED" envDefault:"0" yaml:"random_seed"`
	} `yaml:"loop"`
}

// Load builds the configuration. Environment variables and built-in
// defaults are applied first; a YAML file named by CONFIG_FILE overrides
// whatever fields it sets.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the loaded values can drive a run.
func (c *Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port out of range: %d", c.HTTP.Port)
	}
	if c.Loop.NumIterations < 1 {
		return fmt.Errorf("num_iterations must be positive, got %d", c.Loop.NumIterations)
	}
	if c.Loop.NumSave < 0 {
		return fmt.Errorf("num_save must not be negative, got %d", c.Loop.NumSave)
	}
	return nil
}
