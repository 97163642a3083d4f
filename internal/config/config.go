// Package config loads the optional binhub.yaml project configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures project-level settings. Every field has a usable default
// so a project without a binhub.yaml works out of the box.
type Config struct {
	Version   int         `yaml:"version"`
	Manifests string      `yaml:"manifests"`
	Output    string      `yaml:"output"`
	Fetch     FetchConfig `yaml:"fetch"`
}

// FetchConfig tunes artifact retrieval.
type FetchConfig struct {
	TimeoutSeconds int    `yaml:"timeout_s"`
	Retries        int    `yaml:"retries"`
	Concurrency    int    `yaml:"concurrency"`
	UserAgent      string `yaml:"user_agent"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Version:   1,
		Manifests: "manifests",
		Output:    "output",
		Fetch: FetchConfig{
			TimeoutSeconds: 300,
			Retries:        2,
			Concurrency:    4,
			UserAgent:      "binhub/1.0",
		},
	}
}

// Load reads the YAML configuration from disk if it exists, otherwise
// returns the default configuration.
func Load(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Manifests == "" {
		c.Manifests = def.Manifests
	}
	if c.Output == "" {
		c.Output = def.Output
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		c.Fetch.TimeoutSeconds = def.Fetch.TimeoutSeconds
	}
	if c.Fetch.Retries < 0 {
		c.Fetch.Retries = def.Fetch.Retries
	}
	if c.Fetch.Concurrency <= 0 {
		c.Fetch.Concurrency = def.Fetch.Concurrency
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = def.Fetch.UserAgent
	}
}

// FetchTimeout returns the per-request timeout as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}
