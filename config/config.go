// Package config loads the metronome configuration from YAML files.
package config

import (
	"fmt"
	"os"

	"github.com/tnicklin/metronome/logger"
	"github.com/tnicklin/metronome/store"
	"github.com/tnicklin/metronome/tick"
	"go.uber.org/config"
)

// AppConfig holds all application configuration.
type AppConfig struct {
	Logger logger.Config `yaml:"logger"`
	Clock  tick.Config   `yaml:"clock"`
	Store  store.Config  `yaml:"store"`
}

// Load merges the files that exist, in order, so later files override
// earlier ones. ${VAR} and ${VAR:default} references are expanded from the
// environment before parsing. If none of the files exist the error wraps
// os.ErrNotExist.
func Load(files ...string) (*AppConfig, error) {
	opts := []config.YAMLOption{config.Expand(os.LookupEnv)}
	found := 0
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		opts = append(opts, config.File(f))
		found++
	}
	if found == 0 {
		return nil, fmt.Errorf("no config file in %v: %w", files, os.ErrNotExist)
	}

	provider, err := config.NewYAML(opts...)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &AppConfig{}
	if err := provider.Get(config.Root).Populate(cfg); err != nil {
		return nil, fmt.Errorf("populate config: %w", err)
	}
	return cfg, nil
}

// LoadWithDefaults is Load followed by filling in unset values.
func LoadWithDefaults(files ...string) (*AppConfig, error) {
	cfg, err := Load(files...)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *AppConfig) applyDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if len(c.Logger.OutputPaths) == 0 {
		c.Logger.OutputPaths = []string{"stdout"}
	}
	c.Clock.Defaults()
	c.Store.Defaults()
}
