package config

import (
	"fmt"
	"time"

	"github.com/craftfall/anvil/manifest"
)

// Config represents an anvil.yaml configuration file.
// All values are optional and act as defaults for anvil install flags.
// CLI flags always override config values.
type Config struct {
	// Root is the game destination directory.
	Root string `yaml:"root"`
	// CacheDir enables on-disk manifest caching when set.
	CacheDir string `yaml:"cache_dir"`
	// JavaPath is the java executable for installer transforms.
	JavaPath string `yaml:"java_path"`

	Download  DownloadConfig     `yaml:"download"`
	Endpoints manifest.Endpoints `yaml:"endpoints"`
	Adapter   AdapterConfig      `yaml:"adapter"`
}

// DownloadConfig holds transfer defaults from the config file.
type DownloadConfig struct {
	// Concurrency is the download worker budget.
	Concurrency int `yaml:"concurrency"`
	// MaxAttempts is the retry budget per candidate URL.
	MaxAttempts int `yaml:"max_attempts"`
	// BackoffBase and BackoffMax bound the retry backoff.
	BackoffBase Duration `yaml:"backoff_base"`
	BackoffMax  Duration `yaml:"backoff_max"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
