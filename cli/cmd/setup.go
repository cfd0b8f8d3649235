package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/craftfall/anvil/adapter"
	"github.com/craftfall/anvil/adapter/redis"
	"github.com/craftfall/anvil/adapter/webhook"
	anvilconfig "github.com/craftfall/anvil/cli/config"
	"github.com/craftfall/anvil/manifest"
)

// loadConfig reads the config file named by --config. No flag means an
// empty config; a bad path is an error so typos fail loudly.
func loadConfig(c *cli.Context) (*anvilconfig.Config, error) {
	path := c.String("config")
	if path == "" {
		return &anvilconfig.Config{}, nil
	}
	return anvilconfig.Load(path)
}

// resolveString returns the flag value when explicitly set, otherwise
// the config value, otherwise the flag's own default.
func resolveString(c *cli.Context, name, configVal string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	if configVal != "" {
		return configVal
	}
	return c.String(name)
}

// resolveInt is resolveString for integer flags.
func resolveInt(c *cli.Context, name string, configVal int) int {
	if c.IsSet(name) {
		return c.Int(name)
	}
	if configVal != 0 {
		return configVal
	}
	return c.Int(name)
}

// resolveDuration is resolveString for duration flags.
func resolveDuration(c *cli.Context, name string, configVal time.Duration) time.Duration {
	if c.IsSet(name) {
		return c.Duration(name)
	}
	if configVal != 0 {
		return configVal
	}
	return c.Duration(name)
}

// buildResolver creates a metadata resolver from config, with manifest
// caching enabled when a cache directory is configured.
func buildResolver(cfg *anvilconfig.Config, cacheDir string) *manifest.Resolver {
	rc := manifest.Config{Endpoints: cfg.Endpoints}
	if cacheDir != "" {
		rc.Cache = manifest.NewCache(cacheDir)
	}
	return manifest.NewResolver(rc)
}

// buildAdapters constructs the event adapters named by config. An empty
// adapter type means no adapters; unknown types are errors.
func buildAdapters(cfg *anvilconfig.Config) ([]adapter.Adapter, error) {
	ac := cfg.Adapter
	switch ac.Type {
	case "":
		return nil, nil

	case "webhook":
		if ac.URL == "" {
			return nil, fmt.Errorf("adapter type webhook requires adapter.url in config")
		}
		wc := webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Timeout: ac.Timeout.Duration,
		}
		if ac.Retries != nil {
			wc.Retries = *ac.Retries
		} else {
			wc.Retries = webhook.DefaultRetries
		}
		a, err := webhook.New(wc)
		if err != nil {
			return nil, err
		}
		return []adapter.Adapter{a}, nil

	case "redis":
		if ac.URL == "" {
			return nil, fmt.Errorf("adapter type redis requires adapter.url in config")
		}
		rc := redis.Config{
			URL:     ac.URL,
			Channel: ac.Channel,
			Timeout: ac.Timeout.Duration,
		}
		if ac.Retries != nil {
			rc.Retries = *ac.Retries
		} else {
			rc.Retries = redis.DefaultRetries
		}
		a, err := redis.New(rc)
		if err != nil {
			return nil, err
		}
		return []adapter.Adapter{a}, nil

	default:
		return nil, fmt.Errorf("unknown adapter type %q (must be webhook or redis)", ac.Type)
	}
}
